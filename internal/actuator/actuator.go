package actuator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/fortune-bird/internal/config"
)

// Actuator performs the bird's physical gesture during an interaction.
type Actuator interface {
	Perform(ctx context.Context) error
	Close() error
}

// New returns the actuator selected by cfg.Mode.
func New(cfg config.ActuatorConfig, log *slog.Logger) (Actuator, error) {
	switch cfg.Mode {
	case "", "noop":
		return Noop{}, nil
	case "scs":
		return OpenSCS(cfg, log)
	default:
		return nil, fmt.Errorf("unknown actuator mode %q", cfg.Mode)
	}
}

// Noop is used when no servo is attached.
type Noop struct{}

func (Noop) Perform(ctx context.Context) error { return ctx.Err() }

func (Noop) Close() error { return nil }

// Gesture is the sequence of goal positions for one performance:
// neutral, three min/max swings, neutral.
func Gesture(neutral, lo, hi int) []int {
	return []int{neutral, lo, hi, lo, hi, lo, hi, neutral}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

func moveTimeout(cfg config.ActuatorConfig) time.Duration {
	if cfg.MoveTimeoutMS <= 0 {
		return 3 * time.Second
	}
	return config.Millis(cfg.MoveTimeoutMS)
}
