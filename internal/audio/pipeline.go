package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Request is a queued playback item. The zero Track with stop set only wakes the worker.
type Request struct {
	Track Track
	stop  bool
}

var stopRequest = Request{stop: true}

// Pipeline owns the audio output: a FIFO queue drained by a single worker.
// A new request never interrupts the current track; only RequestStop does.
type Pipeline struct {
	player Player
	log    *slog.Logger
	wait   time.Duration
	queue  *fifo

	// playMu is held for the whole lifetime of a track.
	playMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	played metric.Int64Counter
}

func NewPipeline(player Player, queueWait time.Duration, log *slog.Logger) *Pipeline {
	if queueWait <= 0 {
		queueWait = 500 * time.Millisecond
	}
	p := &Pipeline{
		player: player,
		log:    log.With(slog.String("component", "audio")),
		wait:   queueWait,
		queue:  newFIFO(),
	}
	counter, err := otel.Meter("github.com/loqalabs/fortune-bird/audio").Int64Counter("bird.audio.tracks_played",
		metric.WithDescription("Tracks played to completion or interruption"))
	if err != nil {
		p.log.Warn("failed to create playback counter", slogError(err))
	}
	p.played = counter
	return p
}

// Start launches the worker unless one is already alive. Requests left over
// from a previous run are discarded. It reports whether a worker was started.
func (p *Pipeline) Start(parent context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.aliveLocked() {
		return false
	}
	p.queue.reset()
	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
	p.log.Debug("audio worker started")
	return true
}

// Alive reports whether the worker goroutine is running.
func (p *Pipeline) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.aliveLocked()
}

func (p *Pipeline) aliveLocked() bool {
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Enqueue appends a track to the queue.
func (p *Pipeline) Enqueue(track Track) {
	p.queue.push(Request{Track: track})
}

// Pending returns the number of requests not yet taken by the worker.
func (p *Pipeline) Pending() int {
	return p.queue.len()
}

// RequestStop cancels the worker and interrupts the current track. Use Wait to join.
func (p *Pipeline) RequestStop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.queue.push(stopRequest)
}

// Wait blocks until the worker has exited. It returns at once if no worker was ever started.
func (p *Pipeline) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Stop is RequestStop followed by Wait.
func (p *Pipeline) Stop() {
	p.RequestStop()
	p.Wait()
}

// PlayNow plays a track synchronously under the playback lock. It is meant
// for phases where the worker is stopped and the caller owns the sequence.
func (p *Pipeline) PlayNow(ctx context.Context, track Track) error {
	return p.play(ctx, track)
}

func (p *Pipeline) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			return
		}
		req, ok := p.queue.pop(ctx, p.wait)
		if !ok {
			continue
		}
		if req.stop {
			return
		}
		if err := p.play(ctx, req.Track); err != nil {
			p.log.Warn("playback failed", slog.String("track", req.Track.Path), slogError(err))
		}
	}
}

func (p *Pipeline) play(ctx context.Context, track Track) error {
	p.playMu.Lock()
	defer p.playMu.Unlock()

	if ctx.Err() != nil {
		return nil
	}
	pb, err := p.player.Start(ctx, track)
	if err != nil {
		return err
	}
	p.log.Debug("playing track", slog.String("track", track.Name()), slog.String("source", string(track.Source)))
	if p.played != nil {
		p.played.Add(context.Background(), 1, metric.WithAttributes(attribute.String("source", string(track.Source))))
	}
	select {
	case err := <-pb.Done():
		return err
	case <-ctx.Done():
		pb.Stop()
		<-pb.Done()
		return nil
	}
}

// fifo is an unbounded queue with a bounded blocking pop.
type fifo struct {
	mu     sync.Mutex
	items  []Request
	signal chan struct{}
}

func newFIFO() *fifo {
	return &fifo{signal: make(chan struct{}, 1)}
}

func (q *fifo) push(r Request) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *fifo) pop(ctx context.Context, timeout time.Duration) (Request, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			r := q.items[0]
			q.items[0] = Request{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return r, true
		}
		q.mu.Unlock()
		select {
		case <-q.signal:
		case <-timer.C:
			return Request{}, false
		case <-ctx.Done():
			return Request{}, false
		}
	}
}

func (q *fifo) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *fifo) reset() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
	select {
	case <-q.signal:
	default:
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
