package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/fortune-bird/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, cfg config.EventStoreConfig) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "events.db")
	}
	if cfg.RetentionMode == "" {
		cfg.RetentionMode = "persistent"
	}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestOpenEphemeral(t *testing.T) {
	es, err := Open(context.Background(), config.EventStoreConfig{RetentionMode: "ephemeral"}, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.RecordInteraction(context.Background(), Interaction{ID: "x"}); err != nil {
		t.Fatalf("record on ephemeral store: %v", err)
	}
	list, err := es.ListInteractions(context.Background(), 10)
	if err != nil || list != nil {
		t.Fatalf("expected nothing recorded, got %v %v", list, err)
	}
}

func TestRecordAndQuery(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{})
	ctx := context.Background()

	in := Interaction{
		ID:        "int-1",
		Topic:     "a weird TikTok trend",
		Prompt:    "Write a poem about a weird TikTok trend",
		Text:      "a poem",
		Status:    "completed",
		Spoken:    true,
		Error:     "printer offline",
		TextPath:  "output/poem_0.txt",
		ImagePath: "output/poem_0.png",
		Duration:  1500 * time.Millisecond,
	}
	if err := es.RecordInteraction(ctx, in); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{InteractionID: "int-1", Type: "generated", Payload: []byte("hello")}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{InteractionID: "int-1", Type: "print_failed"}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	list, err := es.ListInteractions(ctx, 10)
	if err != nil {
		t.Fatalf("list interactions: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 interaction, got %d", len(list))
	}
	got := list[0]
	if got.Topic != in.Topic || !got.Spoken || got.Printed || got.Error != in.Error || got.Duration != in.Duration ||
		got.Status != "completed" || got.TextPath != in.TextPath || got.ImagePath != in.ImagePath || got.Prompt != in.Prompt {
		t.Fatalf("unexpected interaction %+v", got)
	}

	events, err := es.ListEvents(ctx, "int-1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 || events[0].Type != "generated" || string(events[0].Payload) != "hello" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestPruneByDaysAndCount(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionDays: 1, MaxInteractions: 1})
	ctx := context.Background()

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.RecordInteraction(ctx, Interaction{ID: "old"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{InteractionID: "old", Type: "note"}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.RecordInteraction(ctx, Interaction{ID: "mid"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	es.clock = func() time.Time { return time.Date(2025, 1, 3, 1, 0, 0, 0, time.UTC) }
	if err := es.RecordInteraction(ctx, Interaction{ID: "new"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := es.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	list, err := es.ListInteractions(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "new" {
		t.Fatalf("expected only newest interaction kept, got %+v", list)
	}
	events, err := es.ListEvents(ctx, "old", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatal("expected events of pruned interaction to cascade")
	}
}
