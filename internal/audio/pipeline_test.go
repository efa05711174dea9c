package audio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingPlayer plays each track for a fixed duration and records the event order.
type recordingPlayer struct {
	length time.Duration

	mu     sync.Mutex
	events []string
	active int
	peak   int
}

func (p *recordingPlayer) record(ev string, delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	p.active += delta
	if p.active > p.peak {
		p.peak = p.active
	}
}

func (p *recordingPlayer) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *recordingPlayer) Start(ctx context.Context, track Track) (Playback, error) {
	p.record("start "+track.Path, 1)
	pb := &fakePlayback{done: make(chan error, 1), stop: make(chan struct{})}
	go func() {
		select {
		case <-time.After(p.length):
			p.record("end "+track.Path, -1)
		case <-pb.stop:
			p.record("stopped "+track.Path, -1)
		}
		pb.done <- nil
		close(pb.done)
	}()
	return pb, nil
}

type fakePlayback struct {
	done chan error
	stop chan struct{}
	once sync.Once
}

func (p *fakePlayback) Done() <-chan error { return p.done }

func (p *fakePlayback) Stop() { p.once.Do(func() { close(p.stop) }) }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestPipelinePlaysInEnqueueOrder(t *testing.T) {
	player := &recordingPlayer{length: 30 * time.Millisecond}
	p := NewPipeline(player, 20*time.Millisecond, newLogger())
	p.Start(context.Background())
	t.Cleanup(p.Stop)

	p.Enqueue(Track{Path: "A"})
	p.Enqueue(Track{Path: "B"})
	p.Enqueue(Track{Path: "C"})

	waitFor(t, 2*time.Second, func() bool { return len(player.Events()) == 6 })

	want := []string{"start A", "end A", "start B", "end B", "start C", "end C"}
	got := player.Events()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %q, got %q (all: %v)", i, want[i], got[i], got)
		}
	}
	if player.peak != 1 {
		t.Fatalf("expected at most one concurrent track, got %d", player.peak)
	}
}

func TestPipelineStopOnIdleQueueIsBounded(t *testing.T) {
	p := NewPipeline(&recordingPlayer{}, time.Hour, newLogger())
	p.Start(context.Background())

	done := make(chan struct{})
	go func() {
		p.RequestStop()
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after stop request")
	}
	if p.Alive() {
		t.Fatal("worker still alive after Wait")
	}
}

func TestPipelineStopInterruptsTrack(t *testing.T) {
	player := &recordingPlayer{length: time.Hour}
	p := NewPipeline(player, 10*time.Millisecond, newLogger())
	p.Start(context.Background())

	p.Enqueue(Track{Path: "long"})
	p.Enqueue(Track{Path: "never"})
	waitFor(t, time.Second, func() bool { return len(player.Events()) == 1 })

	start := time.Now()
	p.Stop()
	if time.Since(start) > time.Second {
		t.Fatal("stop took too long")
	}
	got := player.Events()
	if len(got) != 2 || got[1] != "stopped long" {
		t.Fatalf("expected interrupted track, got %v", got)
	}
}

func TestPipelineStartIsIdempotent(t *testing.T) {
	p := NewPipeline(&recordingPlayer{}, 10*time.Millisecond, newLogger())
	if !p.Start(context.Background()) {
		t.Fatal("expected first start to launch worker")
	}
	if p.Start(context.Background()) {
		t.Fatal("expected second start to be a no-op")
	}
	p.Stop()
	if !p.Start(context.Background()) {
		t.Fatal("expected restart after stop")
	}
	p.Stop()
}

func TestPipelineWaitWithoutStart(t *testing.T) {
	p := NewPipeline(&recordingPlayer{}, 10*time.Millisecond, newLogger())
	done := make(chan struct{})
	go func() {
		p.RequestStop()
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked on a never-started worker")
	}
}

func TestPipelineRestartDropsStaleRequests(t *testing.T) {
	player := &recordingPlayer{length: 10 * time.Millisecond}
	p := NewPipeline(player, 10*time.Millisecond, newLogger())
	p.Start(context.Background())
	p.Stop()

	p.Enqueue(Track{Path: "stale"})
	p.Start(context.Background())
	t.Cleanup(p.Stop)
	p.Enqueue(Track{Path: "fresh"})

	waitFor(t, time.Second, func() bool { return len(player.Events()) == 2 })
	if got := player.Events(); got[0] != "start fresh" {
		t.Fatalf("expected stale request dropped, got %v", got)
	}
}

func TestPipelinePendingCountsQueuedRequests(t *testing.T) {
	player := &recordingPlayer{length: 10 * time.Millisecond}
	p := NewPipeline(player, 10*time.Millisecond, newLogger())
	p.Enqueue(Track{Path: "a"})
	p.Enqueue(Track{Path: "b"})
	if n := p.Pending(); n != 2 {
		t.Fatalf("expected 2 pending, got %d", n)
	}

	p.Start(context.Background())
	t.Cleanup(p.Stop)
	p.Enqueue(Track{Path: "c"})
	waitFor(t, time.Second, func() bool { return len(player.Events()) == 2 })
	if n := p.Pending(); n != 0 {
		t.Fatalf("expected queue drained, got %d", n)
	}
}

func TestPlayNowBlocksUntilTrackEnds(t *testing.T) {
	player := &recordingPlayer{length: 20 * time.Millisecond}
	p := NewPipeline(player, 10*time.Millisecond, newLogger())

	if err := p.PlayNow(context.Background(), Track{Path: "cue"}); err != nil {
		t.Fatalf("play now: %v", err)
	}
	got := player.Events()
	if len(got) != 2 || got[1] != "end cue" {
		t.Fatalf("expected completed cue, got %v", got)
	}
}
