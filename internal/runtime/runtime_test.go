package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/fortune-bird/internal/config"
	"github.com/loqalabs/fortune-bird/internal/kiosk"
	"github.com/loqalabs/fortune-bird/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.HTTP.Enabled = false
	cfg.Bus.Enabled = true
	cfg.Bus.Embedded = true
	cfg.Bus.Port = -1
	cfg.Bus.StoreDir = filepath.Join(dir, "nats")
	cfg.EventStore.Path = filepath.Join(dir, "events.db")
	cfg.LLM.Mode = "mock"
	cfg.TTS.Mode = "mock"
	cfg.Audio.PlayerCommand = "true"
	cfg.Audio.AmbientDir = filepath.Join(dir, "ambient")
	cfg.Audio.PrerecordedDir = filepath.Join(dir, "pre")
	cfg.Audio.GeneratedDir = filepath.Join(dir, "generated")
	cfg.Audio.BeforeDir = filepath.Join(dir, "before")
	cfg.Audio.AfterDir = filepath.Join(dir, "after")
	cfg.Audio.AmbientDwellMS = 10
	cfg.Audio.PhraseDwellMS = 10
	cfg.Audio.QueueWaitMS = 10
	cfg.Button.Source = "bus"
	cfg.Button.PollTimeoutMS = 10
	cfg.Printer.Enabled = false
	cfg.Actuator.Mode = "noop"
	cfg.Interaction.OutputDir = filepath.Join(dir, "output")
	return cfg
}

func TestBusButtonDrivesInteraction(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}
	cfg := testConfig(t)
	comps, err := buildComponents(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("build components: %v", err)
	}
	t.Cleanup(func() { comps.close(newLogger()) })

	orch, err := kiosk.New(cfg, comps.deps, newLogger())
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !orch.Ready() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := comps.bus.Flush(time.Second); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := comps.bus.PublishJSON(protocol.SubjectButtonPress, protocol.ButtonPress{Source: "test"}); err != nil {
		t.Fatalf("publish press: %v", err)
	}

	deadline = time.Now().Add(5 * time.Second)
	for orch.Status().Interactions == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	status := orch.Status()
	if status.Interactions != 1 || status.Last == nil || !status.Last.Spoken || status.Last.Printed {
		t.Fatalf("unexpected status %+v", status)
	}

	r := &Runtime{cfg: cfg, logger: newLogger(), orch: orch, store: comps.store}
	rec := httptest.NewRecorder()
	r.routes(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/interactions?limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var views []interactionView
	if err := json.NewDecoder(rec.Body).Decode(&views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 || views[0].Status != kiosk.StatusCompleted || views[0].TextPath == "" {
		t.Fatalf("unexpected interactions %+v", views)
	}
}

func TestBuildFailsWithoutButtonPort(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bus.Enabled = false
	cfg.Button.Source = "serial"
	cfg.Button.SerialPort = filepath.Join(t.TempDir(), "no-such-tty")
	if _, err := buildComponents(context.Background(), cfg, newLogger()); err == nil {
		t.Fatal("expected startup failure for missing serial port")
	}
}

func TestHealthEndpoints(t *testing.T) {
	r := &Runtime{cfg: config.Default(), logger: newLogger()}
	h := r.routes(nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before start: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("state before start: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/interactions", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Fatalf("interactions without store: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/peers", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Fatalf("peers without bus: %d %q", rec.Code, rec.Body.String())
	}
}
