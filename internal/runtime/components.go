package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/fortune-bird/internal/actuator"
	"github.com/loqalabs/fortune-bird/internal/archive"
	"github.com/loqalabs/fortune-bird/internal/audio"
	"github.com/loqalabs/fortune-bird/internal/bus"
	"github.com/loqalabs/fortune-bird/internal/button"
	"github.com/loqalabs/fortune-bird/internal/config"
	"github.com/loqalabs/fortune-bird/internal/eventstore"
	"github.com/loqalabs/fortune-bird/internal/kiosk"
	"github.com/loqalabs/fortune-bird/internal/llm"
	"github.com/loqalabs/fortune-bird/internal/natsserver"
	"github.com/loqalabs/fortune-bird/internal/printer"
	"github.com/loqalabs/fortune-bird/internal/render"
	"github.com/loqalabs/fortune-bird/internal/tts"
)

// components is everything the orchestrator needs plus what must be closed on exit.
type components struct {
	deps    kiosk.Deps
	store   *eventstore.Store
	bus     *bus.Client
	nats    *natsserver.EmbeddedServer
	closers []func() error
}

func (c *components) addCloser(fn func() error) {
	c.closers = append(c.closers, fn)
}

// close releases resources in reverse order of acquisition.
func (c *components) close(logger *slog.Logger) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			logger.Warn("close failed", slog.String("error", err.Error()))
		}
	}
	c.closers = nil
}

// buildComponents wires the kiosk from config. On error everything already
// opened is closed again.
func buildComponents(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			c.close(logger)
		}
	}()

	if cfg.Bus.Enabled {
		srv, err := natsserver.Start(cfg.Bus, logger)
		if err != nil {
			return nil, err
		}
		if srv != nil {
			c.nats = srv
			cfg.Bus.Servers = []string{srv.ClientURL()}
			c.addCloser(func() error { srv.Shutdown(); return nil })
		}
		client, err := bus.Connect(ctx, cfg.Bus, cfg.RuntimeName, logger)
		if err != nil {
			return nil, err
		}
		c.bus = client
		c.addCloser(func() error { client.Close(); return nil })
		client.EnsureInteractionStream(cfg.EventStore.MaxInteractions)
		c.deps.Bus = client
	}

	store, err := eventstore.Open(ctx, cfg.EventStore, logger)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	c.store = store
	c.deps.Store = store
	c.addCloser(store.Close)

	gen, err := llm.New(cfg.LLM)
	if err != nil {
		return nil, err
	}
	c.deps.Generator = gen

	if cfg.TTS.Enabled {
		synth, err := tts.New(cfg.TTS)
		if err != nil {
			return nil, err
		}
		c.deps.Synth = synth
	}

	player, err := audio.NewExecPlayer(cfg.Audio.PlayerCommand)
	if err != nil {
		return nil, err
	}
	c.deps.Pipeline = audio.NewPipeline(player, config.Millis(cfg.Audio.QueueWaitMS), logger)
	c.deps.Ambient = audio.NewPool().Add(cfg.Audio.AmbientDir, audio.SourceAmbient)
	c.deps.Phrases = audio.NewPool().
		Add(cfg.Audio.PrerecordedDir, audio.SourcePrerecorded).
		Add(cfg.Audio.GeneratedDir, audio.SourceGenerated)
	c.deps.Before = audio.NewPool().Add(cfg.Audio.BeforeDir, audio.SourceCue)
	c.deps.After = audio.NewPool().Add(cfg.Audio.AfterDir, audio.SourceCue)

	src, err := button.New(cfg.Button, c.bus)
	if err != nil {
		return nil, fmt.Errorf("open button source: %w", err)
	}
	c.deps.Button = src
	c.addCloser(src.Close)

	act, err := actuator.New(cfg.Actuator, logger)
	if err != nil {
		return nil, fmt.Errorf("open actuator: %w", err)
	}
	c.deps.Actuator = act
	c.addCloser(act.Close)

	if cfg.Printer.Enabled {
		c.deps.Printer = printer.NewTransport(printer.TransportConfig{
			DeviceName:  cfg.Printer.DeviceName,
			WritePrefix: cfg.Printer.WritePrefix,
			ReadPrefix:  cfg.Printer.ReadPrefix,
			ScanTimeout: config.Millis(cfg.Printer.ScanTimeoutMS),
			Retry: printer.RetryPolicy{
				Interval:    config.Millis(cfg.Printer.ScanIntervalMS),
				MaxAttempts: cfg.Printer.MaxScanAttempts,
			},
		}, printer.NewBLELink(), logger)
	}

	c.deps.Renderer = render.New(cfg.Interaction.FontSize)
	c.deps.Archive = archive.New(cfg.Interaction.OutputDir)
	return c, nil
}
