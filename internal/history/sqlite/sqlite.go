package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/camvault/internal/history"
)

// Sink writes history events to SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}

	// Handle sqlite:// prefix
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS recording_history(
			timestamp TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
			event TEXT NOT NULL,
			source_id INTEGER NOT NULL,
			source TEXT NOT NULL,
			pid INTEGER NOT NULL,
			detail TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_recording_history_source ON recording_history(source_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recording_history(timestamp, event, source_id, source, pid, detail)
		VALUES(?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), string(e.Type), e.SourceID, e.Source, e.PID, e.Detail)
	return err
}

// Count returns how many events of type t were stored (empty t counts all).
func (s *Sink) Count(ctx context.Context, t history.EventType) (int, error) {
	var n int
	var err error
	if t == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recording_history;`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recording_history WHERE event=?;`, string(t)).Scan(&n)
	}
	return n, err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
