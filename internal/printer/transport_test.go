package printer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeEndpoint struct {
	uuid     string
	writes   [][]byte
	reads    int
	writeErr error
	readErr  error
}

func (e *fakeEndpoint) UUID() string { return e.uuid }

func (e *fakeEndpoint) Write(p []byte) error {
	e.writes = append(e.writes, append([]byte(nil), p...))
	return e.writeErr
}

func (e *fakeEndpoint) Read() ([]byte, error) {
	e.reads++
	return []byte{0x01}, e.readErr
}

type fakeSession struct {
	endpoints   []Endpoint
	disconnects int
}

func (s *fakeSession) Endpoints() ([]Endpoint, error) { return s.endpoints, nil }

func (s *fakeSession) Disconnect() error {
	s.disconnects++
	return nil
}

type fakeLink struct {
	missesBeforeHit int
	scans           int
	connects        int
	connectErr      error
	session         *fakeSession
}

func (l *fakeLink) Scan(ctx context.Context, name string, _ time.Duration) (Peripheral, error) {
	l.scans++
	if l.scans <= l.missesBeforeHit {
		return Peripheral{}, ErrDeviceNotFound
	}
	return Peripheral{Name: name, Address: "AA:BB:CC:DD:EE:FF"}, nil
}

func (l *fakeLink) Connect(context.Context, Peripheral) (Session, error) {
	l.connects++
	if l.connectErr != nil {
		return nil, l.connectErr
	}
	return l.session, nil
}

func newFixture(misses int) (*fakeLink, *fakeEndpoint, *fakeEndpoint) {
	write := &fakeEndpoint{uuid: "0000FF02-0000-1000-8000-00805F9B34FB"}
	read := &fakeEndpoint{uuid: "0000ff03-0000-1000-8000-00805f9b34fb"}
	other := &fakeEndpoint{uuid: "00002a00-0000-1000-8000-00805f9b34fb"}
	link := &fakeLink{
		missesBeforeHit: misses,
		session:         &fakeSession{endpoints: []Endpoint{other, write, read}},
	}
	return link, write, read
}

func newTestTransport(link Link, maxAttempts int) *Transport {
	return NewTransport(TransportConfig{
		DeviceName:  "M02",
		WritePrefix: "0000ff02",
		ReadPrefix:  "0000ff03",
		ScanTimeout: time.Millisecond,
		Retry:       RetryPolicy{Interval: time.Millisecond, MaxAttempts: maxAttempts},
	}, link, newLogger())
}

func TestDeliverRetriesDiscoveryUntilFound(t *testing.T) {
	link, write, read := newFixture(3)
	tr := newTestTransport(link, 0)

	frame := Encode(NewBitmap(Width, 10))
	if err := tr.Deliver(context.Background(), frame); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if link.scans != 4 {
		t.Fatalf("expected 4 scans, got %d", link.scans)
	}
	if link.connects != 1 {
		t.Fatalf("expected 1 connect, got %d", link.connects)
	}
	if len(write.writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(write.writes))
	}
	if !bytes.Equal(write.writes[0], frame.Bytes()) {
		t.Fatalf("payload differs from encoded frame")
	}
	if read.reads != 1 {
		t.Fatalf("expected 1 read, got %d", read.reads)
	}
	if link.session.disconnects != 1 {
		t.Fatalf("expected 1 disconnect, got %d", link.session.disconnects)
	}
}

func TestDeliverDiscoveryCap(t *testing.T) {
	link, _, _ := newFixture(100)
	tr := newTestTransport(link, 5)

	err := tr.Deliver(context.Background(), Encode(NewBitmap(Width, 1)))
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
	if link.scans != 5 {
		t.Fatalf("expected 5 scans, got %d", link.scans)
	}
	if link.connects != 0 {
		t.Fatalf("expected no connect, got %d", link.connects)
	}
}

func TestDeliverStopsDiscoveryOnCancel(t *testing.T) {
	link, _, _ := newFixture(1 << 30)
	tr := newTestTransport(link, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- tr.Deliver(ctx, Encode(NewBitmap(Width, 1))) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("discovery did not stop after cancellation")
	}
}

func TestDeliverMissingEndpoint(t *testing.T) {
	link, _, _ := newFixture(0)
	link.session.endpoints = link.session.endpoints[:2]
	tr := newTestTransport(link, 0)

	err := tr.Deliver(context.Background(), Encode(NewBitmap(Width, 1)))
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !errors.Is(err, ErrEndpointNotFound) {
		t.Fatalf("expected ErrEndpointNotFound, got %v", err)
	}
	if link.session.disconnects != 1 {
		t.Fatalf("expected disconnect on error path, got %d", link.session.disconnects)
	}
}

func TestDeliverWriteFailureIsNotRetried(t *testing.T) {
	link, write, read := newFixture(0)
	write.writeErr = errors.New("gatt write failed")
	tr := newTestTransport(link, 0)

	err := tr.Deliver(context.Background(), Encode(NewBitmap(Width, 1)))
	var terr *TransportError
	if !errors.As(err, &terr) || terr.Op != "write" {
		t.Fatalf("expected write TransportError, got %v", err)
	}
	if len(write.writes) != 1 || read.reads != 0 {
		t.Fatalf("expected one write and no read, got %d writes %d reads", len(write.writes), read.reads)
	}
	if link.scans != 1 || link.session.disconnects != 1 {
		t.Fatalf("expected 1 scan and 1 disconnect, got %d and %d", link.scans, link.session.disconnects)
	}
}

func TestDeliverConnectFailure(t *testing.T) {
	link, _, _ := newFixture(0)
	link.connectErr = errors.New("connection refused")
	tr := newTestTransport(link, 0)

	err := tr.Deliver(context.Background(), Encode(NewBitmap(Width, 1)))
	var terr *TransportError
	if !errors.As(err, &terr) || terr.Op != "connect" {
		t.Fatalf("expected connect TransportError, got %v", err)
	}
	if link.connects != 1 {
		t.Fatalf("expected exactly one connect attempt, got %d", link.connects)
	}
}
