package printer

import (
	"bytes"
	"errors"
	"testing"
)

// fakeCharacteristic records every ATT write it receives.
type fakeCharacteristic struct {
	mtu      uint16
	mtuErr   error
	writes   [][]byte
	failAt   int
	accepted int
}

func (c *fakeCharacteristic) write(p []byte) (int, error) {
	if c.failAt > 0 && len(c.writes)+1 == c.failAt {
		return 0, errors.New("link lost")
	}
	c.writes = append(c.writes, append([]byte(nil), p...))
	if c.accepted > 0 && c.accepted < len(p) {
		c.writes[len(c.writes)-1] = c.writes[len(c.writes)-1][:c.accepted]
		return c.accepted, nil
	}
	return len(p), nil
}

func (c *fakeCharacteristic) getMTU() (uint16, error) { return c.mtu, c.mtuErr }

func (c *fakeCharacteristic) endpoint() *bleEndpoint {
	return &bleEndpoint{
		uuid:  "0000ff02-0000-1000-8000-00805f9b34fb",
		read:  func(p []byte) (int, error) { return copy(p, "ok"), nil },
		write: c.write,
		mtu:   c.getMTU,
	}
}

func joined(writes [][]byte) []byte {
	return bytes.Join(writes, nil)
}

func TestBLEEndpointChunksByMTU(t *testing.T) {
	c := &fakeCharacteristic{mtu: 185}
	payload := bytes.Repeat([]byte{0xAB}, 1000)
	if err := c.endpoint().Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(c.writes) != 6 {
		t.Fatalf("expected 6 chunks of at most 182 bytes, got %d", len(c.writes))
	}
	for i, w := range c.writes {
		if len(w) > 182 {
			t.Fatalf("chunk %d has %d bytes", i, len(w))
		}
	}
	if !bytes.Equal(joined(c.writes), payload) {
		t.Fatal("chunks do not reassemble the payload")
	}
}

func TestBLEEndpointCapsChunkAtAttributeLimit(t *testing.T) {
	c := &fakeCharacteristic{mtu: 1024}
	frame := Encode(NewBitmap(Width, 300)).Bytes()
	if err := c.endpoint().Write(frame); err != nil {
		t.Fatalf("write: %v", err)
	}
	for i, w := range c.writes {
		if len(w) > maxAttributeSize {
			t.Fatalf("chunk %d exceeds the attribute limit: %d bytes", i, len(w))
		}
	}
	if !bytes.Equal(joined(c.writes), frame) {
		t.Fatal("chunks do not reassemble the frame")
	}
}

func TestBLEEndpointFallsBackToDefaultMTU(t *testing.T) {
	c := &fakeCharacteristic{mtuErr: errors.New("not negotiated")}
	if err := c.endpoint().Write(make([]byte, 45)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(c.writes) != 3 || len(c.writes[0]) != minChunk || len(c.writes[2]) != 5 {
		t.Fatalf("unexpected chunking %v", c.writes)
	}
}

func TestBLEEndpointResumesShortWrites(t *testing.T) {
	c := &fakeCharacteristic{mtu: 23, accepted: 7}
	payload := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	if err := c.endpoint().Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !bytes.Equal(joined(c.writes), payload) {
		t.Fatalf("short writes lost data: %q", joined(c.writes))
	}
}

func TestBLEEndpointStopsOnWriteError(t *testing.T) {
	c := &fakeCharacteristic{mtu: 23, failAt: 2}
	err := c.endpoint().Write(make([]byte, 100))
	if err == nil {
		t.Fatal("expected write error")
	}
	if len(c.writes) != 1 {
		t.Fatalf("expected no writes after the failure, got %d", len(c.writes))
	}
}
