package kiosk

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/fortune-bird/internal/actuator"
	"github.com/loqalabs/fortune-bird/internal/archive"
	"github.com/loqalabs/fortune-bird/internal/audio"
	"github.com/loqalabs/fortune-bird/internal/button"
	"github.com/loqalabs/fortune-bird/internal/config"
	"github.com/loqalabs/fortune-bird/internal/eventstore"
	"github.com/loqalabs/fortune-bird/internal/llm"
	"github.com/loqalabs/fortune-bird/internal/printer"
	"github.com/loqalabs/fortune-bird/internal/protocol"
	"github.com/loqalabs/fortune-bird/internal/render"
	"github.com/loqalabs/fortune-bird/internal/tts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Printer delivers one encoded job.
type Printer interface {
	Deliver(ctx context.Context, frame printer.Frame) error
}

// Publisher broadcasts kiosk events.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// Deps are the collaborators the orchestrator drives. Synth, Printer, Store
// and Bus may be nil when the matching feature is disabled.
type Deps struct {
	Pipeline  *audio.Pipeline
	Ambient   *audio.Pool
	Phrases   *audio.Pool
	Before    *audio.Pool
	After     *audio.Pool
	Button    button.Source
	Generator llm.Generator
	Synth     tts.Synthesizer
	Actuator  actuator.Actuator
	Printer   Printer
	Renderer  *render.Renderer
	Archive   *archive.Archive
	Store     *eventstore.Store
	Bus       Publisher
}

// Status is a point-in-time view for the health endpoints.
type Status struct {
	State        string                         `json:"state"`
	Ready        bool                           `json:"ready"`
	Interactions int64                          `json:"interactions_completed"`
	QueuedTracks int                            `json:"queued_tracks"`
	Last         *protocol.InteractionCompleted `json:"last_interaction,omitempty"`
}

// Orchestrator runs the IDLE/INTERACTION state machine. The state and every
// start/stop decision are guarded by mu; the interaction itself runs on the
// goroutine that called Run.
type Orchestrator struct {
	cfg      config.Config
	deps     Deps
	log      *slog.Logger
	prompter *Prompter
	tracer   trace.Tracer

	mu       sync.Mutex
	state    State
	base     context.Context
	ambience *activity
	watcher  *activity
	last     *protocol.InteractionCompleted

	pressed   chan struct{}
	ready     atomic.Bool
	completed atomic.Int64

	ambientDwell time.Duration
	phraseDwell  time.Duration
	retryDelay   time.Duration

	interactions metric.Int64Counter
}

func New(cfg config.Config, deps Deps, log *slog.Logger) (*Orchestrator, error) {
	if deps.Pipeline == nil || deps.Button == nil || deps.Generator == nil {
		return nil, errors.New("kiosk requires an audio pipeline, a button source and a text generator")
	}
	if deps.Actuator == nil {
		deps.Actuator = actuator.Noop{}
	}
	if deps.Renderer == nil {
		deps.Renderer = render.New(cfg.Interaction.FontSize)
	}
	if deps.Archive == nil {
		deps.Archive = archive.New(cfg.Interaction.OutputDir)
	}
	o := &Orchestrator{
		cfg:          cfg,
		deps:         deps,
		log:          log.With(slog.String("component", "kiosk")),
		prompter:     NewPrompter(cfg.Interaction.Topics, cfg.Interaction.PromptPrefix, cfg.Interaction.PromptSuffix),
		tracer:       otel.Tracer("github.com/loqalabs/fortune-bird/kiosk"),
		state:        StateIdle,
		pressed:      make(chan struct{}, 1),
		ambientDwell: config.Millis(cfg.Audio.AmbientDwellMS),
		phraseDwell:  config.Millis(cfg.Audio.PhraseDwellMS),
		retryDelay:   time.Second,
	}
	o.initMetrics()
	return o, nil
}

func (o *Orchestrator) initMetrics() {
	meter := otel.Meter("github.com/loqalabs/fortune-bird/kiosk")
	counter, err := meter.Int64Counter("bird.interactions", metric.WithDescription("Interactions run, by result"))
	if err != nil {
		o.log.Warn("failed to create interaction counter", slogError(err))
	}
	o.interactions = counter

	gauge, err := meter.Int64ObservableGauge("bird.state", metric.WithDescription("0 = idle, 1 = interaction"))
	if err != nil {
		o.log.Warn("failed to create state gauge", slogError(err))
		return
	}
	if _, err := meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		obs.ObserveInt64(gauge, int64(o.State()))
		return nil
	}, gauge); err != nil {
		o.log.Warn("failed to register state gauge", slogError(err))
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Ready reports whether Run has entered IDLE at least once and is not shutting down.
func (o *Orchestrator) Ready() bool {
	return o.ready.Load()
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{
		State:        o.state.String(),
		Ready:        o.ready.Load(),
		Interactions: o.completed.Load(),
		QueuedTracks: o.deps.Pipeline.Pending(),
	}
	if o.last != nil {
		last := *o.last
		st.Last = &last
	}
	return st
}

// Run enters IDLE and serves button presses until ctx ends, then stops and
// joins every activity.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.base != nil {
		o.mu.Unlock()
		return errors.New("orchestrator already running")
	}
	o.base = ctx
	o.mu.Unlock()

	o.EnterIdle()
	o.ready.Store(true)
	o.log.Info("kiosk idle, waiting for button")

	for {
		select {
		case <-ctx.Done():
			o.ready.Store(false)
			o.shutdown()
			return nil
		case <-o.pressed:
			o.interact(ctx)
		}
	}
}

// EnterIdle sets the state to IDLE and ensures the audio worker, the button
// watch and the ambience loop are running. It returns how many were started.
func (o *Orchestrator) EnterIdle() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.state = StateIdle
	if o.base == nil || o.base.Err() != nil {
		return 0
	}
	started := 0
	if o.deps.Pipeline.Start(o.base) {
		started++
	}
	if !o.watcher.alive() {
		o.watcher = startActivity(o.base, "button-watch", o.watchButton)
		started++
	}
	if !o.ambience.alive() {
		o.ambience = startActivity(o.base, "ambience", o.runAmbience)
		started++
	}
	if started > 0 {
		o.log.Debug("idle activities ensured", slog.Int("started", started))
	}
	return started
}

// trigger performs the IDLE to INTERACTION transition. Only the first caller
// in a burst of presses wins.
func (o *Orchestrator) trigger() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle {
		return false
	}
	o.state = StateInteraction
	select {
	case o.pressed <- struct{}{}:
	default:
	}
	return true
}

func (o *Orchestrator) interact(ctx context.Context) {
	o.log.Info("button pressed, starting interaction")
	o.publishState(StateIdle, StateInteraction)

	o.stopIdleActivities()
	o.deps.Pipeline.Stop()

	o.runInteraction(ctx)

	button.DiscardPending(o.deps.Button)
	o.EnterIdle()
	o.publishState(StateInteraction, StateIdle)
	o.log.Info("kiosk idle, waiting for button")
}

func (o *Orchestrator) stopIdleActivities() {
	o.mu.Lock()
	acts := []*activity{o.ambience, o.watcher}
	o.mu.Unlock()
	for _, a := range acts {
		a.stop()
	}
	for _, a := range acts {
		a.wait()
	}
}

func (o *Orchestrator) shutdown() {
	o.log.Info("stopping kiosk activities")
	o.stopIdleActivities()
	o.deps.Pipeline.Stop()
}

func (o *Orchestrator) watchButton(ctx context.Context) {
	for {
		if ctx.Err() != nil || o.State() != StateIdle {
			return
		}
		pressed, err := o.deps.Button.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.log.Warn("button poll failed", slogError(err))
			if !sleep(ctx, o.retryDelay) {
				return
			}
			continue
		}
		if pressed && o.trigger() {
			return
		}
	}
}

// runAmbience alternates an ambient track and a spoken phrase, each followed
// by its dwell time. A track's own length is waited out before the dwell.
func (o *Orchestrator) runAmbience(ctx context.Context) {
	for {
		if !o.enqueueFrom(ctx, o.deps.Ambient, o.ambientDwell) {
			return
		}
		if !o.enqueueFrom(ctx, o.deps.Phrases, o.phraseDwell) {
			return
		}
	}
}

func (o *Orchestrator) enqueueFrom(ctx context.Context, pool *audio.Pool, dwell time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	wait := dwell
	if pool != nil {
		track, err := pool.Pick()
		switch {
		case err == nil:
			o.deps.Pipeline.Enqueue(track)
			if d, err := audio.Duration(track.Path); err == nil {
				wait += d
			}
		case errors.Is(err, audio.ErrEmptyPool):
		default:
			o.log.Warn("ambience pick failed", slogError(err))
		}
	}
	if wait <= 0 {
		wait = o.retryDelay
	}
	return sleep(ctx, wait)
}

func (o *Orchestrator) publishState(from, to State) {
	if o.deps.Bus == nil {
		return
	}
	msg := protocol.StateChanged{From: from.String(), To: to.String(), Timestamp: time.Now().UTC()}
	if err := o.deps.Bus.PublishJSON(protocol.SubjectStateChanged, msg); err != nil {
		o.log.Warn("failed to publish state change", slogError(err))
	}
}

func (o *Orchestrator) countInteraction(result string) {
	if o.interactions != nil {
		o.interactions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
