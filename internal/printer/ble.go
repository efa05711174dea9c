package printer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

const (
	readBufferSize = 512

	// ATT limits: 3 bytes of opcode and handle per write, 23-byte default
	// MTU, 512-byte attribute values.
	attHeaderSize    = 3
	minChunk         = 20
	maxAttributeSize = 512
)

// BLELink scans and connects through the host Bluetooth adapter.
type BLELink struct {
	adapter *bluetooth.Adapter

	enableOnce sync.Once
	enableErr  error
	scanMu     sync.Mutex
}

func NewBLELink() *BLELink {
	return &BLELink{adapter: bluetooth.DefaultAdapter}
}

func (l *BLELink) enable() error {
	l.enableOnce.Do(func() {
		l.enableErr = l.adapter.Enable()
	})
	return l.enableErr
}

// Scan runs one scan pass bounded by timeout and returns the first device advertising name.
func (l *BLELink) Scan(ctx context.Context, name string, timeout time.Duration) (Peripheral, error) {
	if err := l.enable(); err != nil {
		return Peripheral{}, fmt.Errorf("enable bluetooth adapter: %w", err)
	}
	l.scanMu.Lock()
	defer l.scanMu.Unlock()

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-scanCtx.Done()
		_ = l.adapter.StopScan()
	}()

	found := make(chan Peripheral, 1)
	var once sync.Once
	err := l.adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
		if result.LocalName() != name {
			return
		}
		once.Do(func() {
			found <- Peripheral{
				Name:    result.LocalName(),
				Address: result.Address.String(),
				native:  result.Address,
			}
			cancel()
		})
	})
	cancel()
	<-stopped
	if err != nil {
		return Peripheral{}, fmt.Errorf("bluetooth scan: %w", err)
	}

	select {
	case p := <-found:
		return p, nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return Peripheral{}, err
	}
	return Peripheral{}, ErrDeviceNotFound
}

// Connect opens a session and enumerates every characteristic of every service.
func (l *BLELink) Connect(_ context.Context, p Peripheral) (Session, error) {
	addr, ok := p.native.(bluetooth.Address)
	if !ok {
		return nil, fmt.Errorf("peripheral %q was not discovered by this link", p.Address)
	}
	device, err := l.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, err
	}
	session := &bleSession{disconnect: device.Disconnect}

	services, err := device.DiscoverServices(nil)
	if err != nil {
		_ = session.Disconnect()
		return nil, fmt.Errorf("discover services: %w", err)
	}
	for _, svc := range services {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			_ = session.Disconnect()
			return nil, fmt.Errorf("discover characteristics of %s: %w", svc.UUID().String(), err)
		}
		for _, c := range chars {
			session.endpoints = append(session.endpoints, newBLEEndpoint(c))
		}
	}
	return session, nil
}

type bleSession struct {
	endpoints  []Endpoint
	disconnect func() error
}

func (s *bleSession) Endpoints() ([]Endpoint, error) {
	return s.endpoints, nil
}

func (s *bleSession) Disconnect() error {
	return s.disconnect()
}

// bleEndpoint adapts one GATT characteristic. The write path differs per
// platform, see newBLEEndpoint.
type bleEndpoint struct {
	uuid  string
	read  func([]byte) (int, error)
	write func([]byte) (int, error)
	mtu   func() (uint16, error)
	pause time.Duration
}

func (e *bleEndpoint) UUID() string { return e.uuid }

// Write sends p in chunks that fit one ATT write.
func (e *bleEndpoint) Write(p []byte) error {
	return writeChunked(p, chunkSize(e.mtu()), e.pause, e.write)
}

func (e *bleEndpoint) Read() ([]byte, error) {
	buf := make([]byte, readBufferSize)
	n, err := e.read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// chunkSize derives the ATT payload size from the negotiated MTU.
func chunkSize(mtu uint16, err error) int {
	if err != nil || int(mtu) <= attHeaderSize+minChunk {
		return minChunk
	}
	n := int(mtu) - attHeaderSize
	if n > maxAttributeSize {
		n = maxAttributeSize
	}
	return n
}

func writeChunked(p []byte, size int, pause time.Duration, write func([]byte) (int, error)) error {
	for off := 0; off < len(p); {
		end := off + size
		if end > len(p) {
			end = len(p)
		}
		n, err := write(p[off:end])
		if err != nil {
			return fmt.Errorf("write bytes %d-%d of %d: %w", off, end, len(p), err)
		}
		if n <= 0 || n > end-off {
			n = end - off
		}
		off += n
		if pause > 0 && off < len(p) {
			time.Sleep(pause)
		}
	}
	return nil
}
