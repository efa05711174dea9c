package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/fortune-bird/internal/config"
	_ "modernc.org/sqlite"
)

// Interaction is one recorded fortune.
type Interaction struct {
	ID        string
	Topic     string
	Prompt    string
	Text      string
	Status    string
	Spoken    bool
	Printed   bool
	Error     string
	TextPath  string
	ImagePath string
	StartedAt time.Time
	Duration  time.Duration
}

// Event is a timeline entry attached to an interaction.
type Event struct {
	ID            int64
	InteractionID string
	Type          string
	Payload       []byte
	CreatedAt     time.Time
}

// Store keeps the kiosk's interaction history in SQLite.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config. Ephemeral mode records nothing.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "eventstore"))
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS interactions (
    interaction_id TEXT PRIMARY KEY,
    topic TEXT,
    prompt TEXT,
    text TEXT,
    status TEXT,
    spoken INTEGER NOT NULL DEFAULT 0,
    printed INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    text_path TEXT,
    image_path TEXT,
    started_at TIMESTAMP NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    interaction_id TEXT NOT NULL,
    event_type TEXT,
    payload BLOB,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(interaction_id) REFERENCES interactions(interaction_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_events_interaction_created ON events(interaction_id, created_at);
CREATE INDEX IF NOT EXISTS idx_interactions_started ON interactions(started_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

func (s *Store) disabled() bool {
	return s == nil || s.cfg.RetentionMode == "ephemeral" || s.db == nil
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordInteraction inserts or replaces the summary row of an interaction.
func (s *Store) RecordInteraction(ctx context.Context, in Interaction) error {
	if s.disabled() {
		return nil
	}
	if in.StartedAt.IsZero() {
		in.StartedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions(interaction_id, topic, prompt, text, status, spoken, printed, error,
		   text_path, image_path, started_at, duration_ms)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(interaction_id) DO UPDATE SET
		   topic=excluded.topic, prompt=excluded.prompt, text=excluded.text, status=excluded.status,
		   spoken=excluded.spoken, printed=excluded.printed, error=excluded.error,
		   text_path=excluded.text_path, image_path=excluded.image_path, duration_ms=excluded.duration_ms`,
		in.ID, in.Topic, in.Prompt, in.Text, in.Status, in.Spoken, in.Printed, in.Error,
		in.TextPath, in.ImagePath, in.StartedAt.UTC(), in.Duration.Milliseconds())
	return err
}

// AppendEvent writes an event for an interaction that has already been recorded.
func (s *Store) AppendEvent(ctx context.Context, evt Event) error {
	if s.disabled() {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(interaction_id, event_type, payload, created_at) VALUES(?, ?, ?, ?)`,
		evt.InteractionID, evt.Type, evt.Payload, evt.CreatedAt.UTC())
	return err
}

// ListInteractions returns up to limit interactions, newest first.
func (s *Store) ListInteractions(ctx context.Context, limit int) ([]Interaction, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT interaction_id, topic, prompt, text, status, spoken, printed, error,
		   text_path, image_path, started_at, duration_ms
		 FROM interactions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var (
			in                            Interaction
			prompt, text, status, errText sql.NullString
			textPath, imagePath           sql.NullString
			started                       time.Time
			duration                      int64
		)
		if err := rows.Scan(&in.ID, &in.Topic, &prompt, &text, &status, &in.Spoken, &in.Printed, &errText,
			&textPath, &imagePath, &started, &duration); err != nil {
			return nil, err
		}
		in.Prompt, in.Text, in.Status, in.Error = prompt.String, text.String, status.String, errText.String
		in.TextPath, in.ImagePath = textPath.String, imagePath.String
		in.StartedAt = started
		in.Duration = time.Duration(duration) * time.Millisecond
		out = append(out, in)
	}
	return out, rows.Err()
}

// ListEvents retrieves up to limit events for an interaction ordered by time.
func (s *Store) ListEvents(ctx context.Context, interactionID string, limit int) ([]Event, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, interaction_id, event_type, payload, created_at
		 FROM events WHERE interaction_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, interactionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.InteractionID, &e.Type, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies configured retention (called on startup and after each interaction).
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.disabled() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM interactions WHERE started_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxInteractions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM interactions WHERE interaction_id IN (
			SELECT interaction_id FROM interactions ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxInteractions)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
