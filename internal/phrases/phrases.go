// Package phrases speaks the kiosk's fixed lines into the audio pool directories.
package phrases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/loqalabs/fortune-bird/internal/config"
	"github.com/loqalabs/fortune-bird/internal/tts"
)

// Set is one list of lines and the pool directory it fills.
type Set struct {
	Name  string
	Dir   string
	Lines []string
}

// Sets maps the configured phrase lists onto their pool directories.
func Sets(cfg config.Config) []Set {
	return []Set{
		{Name: "prerecorded", Dir: cfg.Audio.PrerecordedDir, Lines: cfg.Phrases.Prerecorded},
		{Name: "before", Dir: cfg.Audio.BeforeDir, Lines: cfg.Phrases.Before},
		{Name: "after", Dir: cfg.Audio.AfterDir, Lines: cfg.Phrases.After},
	}
}

// Result counts what a run did.
type Result struct {
	Written int
	Skipped int
	Failed  int
}

type Generator struct {
	synth     tts.Synthesizer
	cfg       config.TTSConfig
	overwrite bool
	log       *slog.Logger
}

func NewGenerator(synth tts.Synthesizer, cfg config.TTSConfig, overwrite bool, log *slog.Logger) *Generator {
	return &Generator{
		synth:     synth,
		cfg:       cfg,
		overwrite: overwrite,
		log:       log.With(slog.String("component", "phrases")),
	}
}

// Generate writes output_<i>.wav for every line of every set. Existing files
// are kept unless overwrite was requested. A failed line does not stop the
// run; all failures are returned together.
func (g *Generator) Generate(ctx context.Context, sets []Set) (Result, error) {
	var res Result
	var errs []error
	for _, set := range sets {
		if len(set.Lines) == 0 {
			continue
		}
		if set.Dir == "" {
			errs = append(errs, fmt.Errorf("%s: no directory configured", set.Name))
			res.Failed += len(set.Lines)
			continue
		}
		if err := os.MkdirAll(set.Dir, 0o755); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", set.Name, err))
			res.Failed += len(set.Lines)
			continue
		}
		for i, line := range set.Lines {
			if err := ctx.Err(); err != nil {
				return res, errors.Join(append(errs, err)...)
			}
			path := filepath.Join(set.Dir, fmt.Sprintf("output_%d.wav", i))
			if !g.overwrite {
				if _, err := os.Stat(path); err == nil {
					res.Skipped++
					continue
				}
			}
			if err := g.speak(ctx, set.Name, i, line, path); err != nil {
				g.log.Error("phrase synthesis failed", slog.String("set", set.Name), slog.String("path", path), slog.String("error", err.Error()))
				errs = append(errs, fmt.Errorf("%s line %d: %w", set.Name, i, err))
				res.Failed++
				continue
			}
			res.Written++
			g.log.Info("phrase written", slog.String("set", set.Name), slog.String("path", path))
		}
	}
	return res, errors.Join(errs...)
}

func (g *Generator) speak(ctx context.Context, set string, i int, line, path string) error {
	if timeout := config.Millis(g.cfg.TimeoutMS); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return g.synth.SynthesizeToFile(ctx, tts.Request{
		ID:         fmt.Sprintf("%s-%d", set, i),
		Text:       line,
		SpeakerWAV: g.cfg.SpeakerWAV,
		Language:   g.cfg.Language,
		OutputPath: path,
	})
}
