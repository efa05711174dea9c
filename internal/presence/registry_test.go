package presence

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/fortune-bird/internal/bus"
	"github.com/loqalabs/fortune-bird/internal/config"
	"github.com/loqalabs/fortune-bird/internal/natsserver"
	"github.com/loqalabs/fortune-bird/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startBus(t *testing.T) (*bus.Client, config.BusConfig) {
	t.Helper()
	cfg := config.BusConfig{Enabled: true, Embedded: true, Port: -1, StoreDir: t.TempDir(), ConnectTimeout: 2000,
		HeartbeatIntervalMS: 20, HeartbeatTimeoutMS: 60}
	srv, err := natsserver.Start(cfg, newLogger())
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	cfg.Servers = []string{srv.ClientURL()}
	client, err := bus.Connect(context.Background(), cfg, "presence-test", newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client, cfg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRegistryTracksPeers(t *testing.T) {
	client, cfg := startBus(t)
	status := func() (string, int64) { return "IDLE", 3 }

	a, err := Start(context.Background(), cfg, "bird-a", []protocol.Capability{{Name: "printer"}}, status, client, newLogger())
	if err != nil {
		t.Fatalf("start a: %v", err)
	}
	defer a.Close()
	b, err := Start(context.Background(), cfg, "bird-b", nil, nil, client, newLogger())
	if err != nil {
		t.Fatalf("start b: %v", err)
	}

	waitFor(t, func() bool { return len(a.Nodes()) == 2 && a.Healthy() })
	waitFor(t, func() bool {
		for _, n := range b.Nodes() {
			if n.ID == "bird-a" {
				return n.State == "IDLE" && n.Interactions == 3 && len(n.Capabilities) == 1
			}
		}
		return false
	})

	b.Close()
	waitFor(t, func() bool {
		for _, n := range a.Nodes() {
			if n.ID == "bird-b" {
				return !n.Healthy
			}
		}
		return false
	})
}

func TestCapabilitiesFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Actuator.Mode = "scs"
	caps := CapabilitiesFromConfig(cfg)
	names := map[string]bool{}
	for _, c := range caps {
		names[c.Name] = true
	}
	for _, want := range []string{"llm", "button", "tts", "printer", "actuator"} {
		if !names[want] {
			t.Fatalf("missing capability %s in %+v", want, caps)
		}
	}
}
