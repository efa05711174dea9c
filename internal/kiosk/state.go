package kiosk

import "context"

// State is the kiosk's top-level mode.
type State int

const (
	StateIdle State = iota
	StateInteraction
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInteraction:
		return "INTERACTION"
	default:
		return "UNKNOWN"
	}
}

// activity is a background goroutine with its own cancellation token.
type activity struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

func startActivity(parent context.Context, name string, fn func(ctx context.Context)) *activity {
	ctx, cancel := context.WithCancel(parent)
	a := &activity{name: name, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(a.done)
		fn(ctx)
	}()
	return a
}

func (a *activity) alive() bool {
	if a == nil {
		return false
	}
	select {
	case <-a.done:
		return false
	default:
		return true
	}
}

func (a *activity) stop() {
	if a != nil {
		a.cancel()
	}
}

func (a *activity) wait() {
	if a != nil {
		<-a.done
	}
}
