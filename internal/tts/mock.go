package tts

import (
	"context"
	"time"
)

type mockSynth struct {
	sampleRate int
	channels   int
}

// NewMockSynth writes half a second of silence for every request.
func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) SynthesizeToFile(ctx context.Context, req Request) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}
	pcm := make([]byte, m.sampleRate*m.channels) // 0.5s of 16-bit samples
	return writeWAV(req.OutputPath, pcm, m.sampleRate, m.channels)
}
