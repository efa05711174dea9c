package button

import (
	"context"
	"fmt"
	"time"

	"github.com/loqalabs/fortune-bird/internal/bus"
	"github.com/loqalabs/fortune-bird/internal/config"
)

// Source reports button presses. Poll returns within roughly one poll
// interval; true means at least one press arrived since the last call.
type Source interface {
	Poll(ctx context.Context) (bool, error)
	Close() error
}

// Discarder is implemented by sources that buffer presses between polls.
type Discarder interface {
	Discard()
}

// DiscardPending drops presses that arrived while nobody was polling.
func DiscardPending(s Source) {
	if d, ok := s.(Discarder); ok {
		d.Discard()
	}
}

// New opens the source named by cfg.Source. The bus client is only used by the bus source.
func New(cfg config.ButtonConfig, client *bus.Client) (Source, error) {
	timeout := config.Millis(cfg.PollTimeoutMS)
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	switch cfg.Source {
	case "serial":
		return OpenSerial(cfg.SerialPort, cfg.BaudRate, cfg.PressedValue, timeout)
	case "bus":
		if client == nil {
			return nil, fmt.Errorf("button source bus requires the bus to be enabled")
		}
		return NewBusSource(client, timeout)
	default:
		return nil, fmt.Errorf("unknown button source %q", cfg.Source)
	}
}
