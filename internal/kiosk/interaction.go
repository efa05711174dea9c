package kiosk

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/fortune-bird/internal/archive"
	"github.com/loqalabs/fortune-bird/internal/audio"
	"github.com/loqalabs/fortune-bird/internal/config"
	"github.com/loqalabs/fortune-bird/internal/eventstore"
	"github.com/loqalabs/fortune-bird/internal/llm"
	"github.com/loqalabs/fortune-bird/internal/printer"
	"github.com/loqalabs/fortune-bird/internal/protocol"
	"github.com/loqalabs/fortune-bird/internal/render"
	"github.com/loqalabs/fortune-bird/internal/tts"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Interaction status values stored with every record.
const (
	StatusCompleted        = "completed"
	StatusGenerationFailed = "generation_failed"
	StatusPrintFailed      = "print_failed"
	StatusCancelled        = "cancelled"
)

type outcome struct {
	rec eventstore.Interaction
}

// runInteraction is the button-triggered sequence: generate, speak, persist,
// render, print. A generation failure ends it early; later failures are
// logged and the remaining steps still run.
func (o *Orchestrator) runInteraction(ctx context.Context) {
	started := time.Now()
	out := &outcome{rec: eventstore.Interaction{ID: uuid.NewString(), StartedAt: started.UTC()}}
	log := o.log.With(slog.String("interaction_id", out.rec.ID))

	ctx, span := o.tracer.Start(ctx, "interaction", trace.WithAttributes(attribute.String("interaction.id", out.rec.ID)))
	defer span.End()

	o.recordInteraction(ctx, out)
	defer func() {
		out.rec.Duration = time.Since(started)
		o.finish(ctx, log, out)
	}()

	topic, prompt := o.prompter.Next()
	out.rec.Topic, out.rec.Prompt = topic, prompt
	log.Info("requesting poem", slog.String("topic", topic))

	text, err := o.generate(ctx, prompt)
	if err != nil {
		out.rec.Status = StatusGenerationFailed
		out.rec.Error = err.Error()
		span.SetStatus(codes.Error, "generation failed")
		if ctx.Err() != nil {
			out.rec.Status = StatusCancelled
		}
		log.Error("text generation failed, skipping interaction", slogError(err))
		return
	}
	out.rec.Text = text
	o.event(ctx, out.rec.ID, "generated", []byte(text))
	log.Info("poem generated", slog.Int("chars", len(text)))

	speech := o.synthesize(ctx, log, out)

	o.perform(ctx, log)
	if speech != "" {
		if err := o.deps.Pipeline.PlayNow(ctx, audio.Track{Path: speech, Source: audio.SourceGenerated}); err != nil {
			log.Warn("speech playback failed", slogError(err))
		}
	}

	if path, err := o.deps.Archive.SaveText(text); err != nil {
		log.Warn("failed to persist poem text", slogError(err))
	} else {
		out.rec.TextPath = path
	}

	if err := o.print(ctx, log, out, text); err != nil {
		out.rec.Status = StatusPrintFailed
		out.rec.Error = err.Error()
		span.SetStatus(codes.Error, "print failed")
	} else {
		out.rec.Status = StatusCompleted
	}
	if ctx.Err() != nil {
		out.rec.Status = StatusCancelled
		return
	}

	o.playCue(ctx, log, o.deps.After)
}

func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := o.tracer.Start(ctx, "generate")
	defer span.End()
	if timeout := config.Millis(o.cfg.LLM.TimeoutMS); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	text, err := llm.Collect(ctx, o.deps.Generator, llm.RequestFromConfig(o.cfg.LLM, prompt))
	if err == nil && text == "" {
		err = fmt.Errorf("text service returned an empty poem")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return text, nil
}

// synthesize speaks the poem into the output directory and adds a copy to
// the generated phrase pool. It returns the playable path or "".
func (o *Orchestrator) synthesize(ctx context.Context, log *slog.Logger, out *outcome) string {
	if o.deps.Synth == nil {
		return ""
	}
	ctx, span := o.tracer.Start(ctx, "synthesize")
	defer span.End()

	path, err := o.deps.Archive.NextPath(".wav")
	if err != nil {
		log.Warn("no path for speech", slogError(err))
		return ""
	}
	if timeout := config.Millis(o.cfg.TTS.TimeoutMS); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req := tts.Request{
		ID:         out.rec.ID,
		Text:       out.rec.Text,
		SpeakerWAV: o.cfg.TTS.SpeakerWAV,
		Language:   o.cfg.TTS.Language,
		OutputPath: path,
	}
	if err := o.deps.Synth.SynthesizeToFile(ctx, req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("speech synthesis failed", slogError(err))
		return ""
	}
	out.rec.Spoken = true
	o.event(ctx, out.rec.ID, "synthesized", []byte(path))

	if dir := o.cfg.Audio.GeneratedDir; dir != "" {
		if err := copyIntoPool(path, dir); err != nil {
			log.Warn("failed to add speech to phrase pool", slogError(err))
		}
	}
	return path
}

// perform plays a "before" cue while the bird moves and waits for both.
func (o *Orchestrator) perform(ctx context.Context, log *slog.Logger) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.playCue(ctx, log, o.deps.Before)
	}()
	go func() {
		defer wg.Done()
		if err := o.deps.Actuator.Perform(ctx); err != nil {
			log.Warn("actuator failed", slogError(err))
		}
	}()
	wg.Wait()
}

func (o *Orchestrator) playCue(ctx context.Context, log *slog.Logger, pool *audio.Pool) {
	if pool == nil {
		return
	}
	track, err := pool.Pick()
	if err != nil {
		log.Debug("no cue available", slogError(err))
		return
	}
	if err := o.deps.Pipeline.PlayNow(ctx, track); err != nil {
		log.Warn("cue playback failed", slog.String("track", track.Name()), slogError(err))
	}
}

// print renders text, archives the image and delivers it.
func (o *Orchestrator) print(ctx context.Context, log *slog.Logger, out *outcome, text string) error {
	_, rspan := o.tracer.Start(ctx, "render")
	bm := render.Bitmap(o.deps.Renderer.Text(text))
	frame := printer.Encode(bm)
	rspan.SetAttributes(attribute.Int("bitmap.height", bm.Height), attribute.Int("frame.groups", len(frame.Groups)))
	if path, err := o.deps.Archive.SaveImage(render.Image(bm)); err != nil {
		log.Warn("failed to persist poem image", slogError(err))
	} else {
		out.rec.ImagePath = path
	}
	rspan.End()

	if o.deps.Printer == nil {
		log.Info("printer disabled, skipping print")
		return nil
	}
	ctx, span := o.tracer.Start(ctx, "print")
	defer span.End()
	log.Info("printing poem", slog.Int("lines", frame.Lines()))
	if err := o.deps.Printer.Deliver(ctx, frame); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("print failed", slogError(err))
		o.event(ctx, out.rec.ID, "print_failed", []byte(err.Error()))
		return err
	}
	out.rec.Printed = true
	o.event(ctx, out.rec.ID, "printed", nil)
	return nil
}

func (o *Orchestrator) recordInteraction(ctx context.Context, out *outcome) {
	if o.deps.Store == nil {
		return
	}
	if err := o.deps.Store.RecordInteraction(context.WithoutCancel(ctx), out.rec); err != nil {
		o.log.Warn("failed to record interaction", slogError(err))
	}
}

func (o *Orchestrator) event(ctx context.Context, id, kind string, payload []byte) {
	if o.deps.Store == nil {
		return
	}
	evt := eventstore.Event{InteractionID: id, Type: kind, Payload: payload}
	if err := o.deps.Store.AppendEvent(context.WithoutCancel(ctx), evt); err != nil {
		o.log.Warn("failed to append event", slog.String("type", kind), slogError(err))
	}
}

func (o *Orchestrator) finish(ctx context.Context, log *slog.Logger, out *outcome) {
	o.recordInteraction(ctx, out)
	if o.deps.Store != nil {
		if err := o.deps.Store.Prune(context.WithoutCancel(ctx)); err != nil {
			log.Warn("event store prune failed", slogError(err))
		}
	}

	msg := protocol.InteractionCompleted{
		InteractionID: out.rec.ID,
		Topic:         out.rec.Topic,
		Text:          out.rec.Text,
		Spoken:        out.rec.Spoken,
		Printed:       out.rec.Printed,
		Error:         out.rec.Error,
		StartedAt:     out.rec.StartedAt,
		DurationMS:    out.rec.Duration.Milliseconds(),
	}
	if o.deps.Bus != nil {
		if err := o.deps.Bus.PublishJSON(protocol.SubjectInteractionCompleted, msg); err != nil {
			log.Warn("failed to publish interaction", slogError(err))
		}
	}

	o.mu.Lock()
	o.last = &msg
	o.mu.Unlock()
	o.completed.Add(1)
	o.countInteraction(out.rec.Status)
	log.Info("interaction finished",
		slog.String("status", out.rec.Status),
		slog.Bool("spoken", out.rec.Spoken),
		slog.Bool("printed", out.rec.Printed),
		slog.Duration("duration", out.rec.Duration))
}

// copyIntoPool copies a WAV into dir as the next poem_<n>.wav.
func copyIntoPool(src, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	n, err := archive.NextIndex(dir, ".wav")
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	dst := filepath.Join(dir, fmt.Sprintf("poem_%d.wav", n))
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
