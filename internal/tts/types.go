package tts

import (
	"context"
	"fmt"

	"github.com/loqalabs/fortune-bird/internal/config"
)

// Request describes one utterance to synthesize into OutputPath.
type Request struct {
	ID         string
	Text       string
	SpeakerWAV string
	Language   string
	OutputPath string
}

// Synthesizer is the contract for producing a playable audio file.
type Synthesizer interface {
	SynthesizeToFile(ctx context.Context, req Request) error
}

// New selects the backend named by cfg.Mode.
func New(cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
}
