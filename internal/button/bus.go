package button

import (
	"context"
	"time"

	"github.com/loqalabs/fortune-bird/internal/bus"
	"github.com/loqalabs/fortune-bird/internal/protocol"
	"github.com/nats-io/nats.go"
)

// BusSource turns messages on bird.button.press into presses.
type BusSource struct {
	sub     *nats.Subscription
	presses chan struct{}
	timeout time.Duration
}

func NewBusSource(client *bus.Client, timeout time.Duration) (*BusSource, error) {
	s := &BusSource{presses: make(chan struct{}, 1), timeout: timeout}
	sub, err := client.Subscribe(protocol.SubjectButtonPress, func(*nats.Msg) { s.Press() })
	if err != nil {
		return nil, err
	}
	s.sub = sub
	return s, nil
}

// Press records a press; presses arriving before the next Poll collapse into one.
func (s *BusSource) Press() {
	select {
	case s.presses <- struct{}{}:
	default:
	}
}

// Discard drops a press still waiting to be polled.
func (s *BusSource) Discard() {
	select {
	case <-s.presses:
	default:
	}
}

func (s *BusSource) Poll(ctx context.Context) (bool, error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case <-s.presses:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (s *BusSource) Close() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}
