package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/camvault/internal/source"
	"github.com/loykin/camvault/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the SQLite database file. Use ":memory:" for in-memory.
type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if p == ":memory:" {
		// every pooled connection would otherwise get its own database
		d.SetMaxOpenConns(1)
	}
	// busy timeout helps with short concurrent locks held by the admin process
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sources(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			protocol TEXT NOT NULL,
			host TEXT NOT NULL,
			port INTEGER NOT NULL,
			path TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			password TEXT NOT NULL DEFAULT '',
			segment_seconds INTEGER NOT NULL,
			log_level TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE(protocol, host, port, path)
		);`,
		`CREATE TABLE IF NOT EXISTS settings(
			id INTEGER PRIMARY KEY CHECK (id = 1),
			records_dir TEXT NOT NULL,
			min_free_gb REAL NOT NULL DEFAULT 0,
			relocation TEXT NOT NULL DEFAULT 'move',
			storage_pool TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) AddSource(ctx context.Context, src *source.Source) error {
	if err := src.Validate(); err != nil {
		return err
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sources(protocol, host, port, path, username, password, segment_seconds, log_level, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		strings.ToLower(src.Protocol), src.Host, src.Port, src.Path, src.Username, src.Password,
		src.SegmentSeconds, string(src.LogLevel), src.CreatedAt.UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	src.ID = id
	return nil
}

func (s *DB) GetSource(ctx context.Context, id int64) (source.Source, error) {
	rows, err := s.db.QueryContext(ctx, selectSources+` WHERE id=?;`, id)
	if err != nil {
		return source.Source{}, err
	}
	defer func() { _ = rows.Close() }()
	out, err := scanSources(rows)
	if err != nil {
		return source.Source{}, err
	}
	if len(out) == 0 {
		return source.Source{}, store.ErrNotFound
	}
	return out[0], nil
}

func (s *DB) RemoveSource(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id=?;`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *DB) Sources(ctx context.Context) ([]source.Source, error) {
	rows, err := s.db.QueryContext(ctx, selectSources+` ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSources(rows)
}

func (s *DB) Settings(ctx context.Context) (store.Settings, error) {
	var (
		st         store.Settings
		relocation string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT records_dir, min_free_gb, relocation, storage_pool, updated_at
		FROM settings WHERE id=1;`).Scan(&st.RecordsDir, &st.MinFreeGB, &relocation, &st.StoragePool, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Settings{Relocation: store.RelocateMove}, nil
	}
	if err != nil {
		return store.Settings{}, err
	}
	st.Relocation = store.RelocationPolicy(relocation)
	return st, nil
}

func (s *DB) SaveSettings(ctx context.Context, st store.Settings) error {
	policy, err := store.ParseRelocationPolicy(string(st.Relocation))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings(id, records_dir, min_free_gb, relocation, storage_pool, updated_at)
		VALUES(1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			records_dir=excluded.records_dir,
			min_free_gb=excluded.min_free_gb,
			relocation=excluded.relocation,
			storage_pool=excluded.storage_pool,
			updated_at=excluded.updated_at;`,
		st.RecordsDir, st.MinFreeGB, string(policy), st.StoragePool, time.Now().UTC())
	return err
}

const selectSources = `
		SELECT id, protocol, host, port, path, username, password, segment_seconds, log_level, created_at
		FROM sources`

func scanSources(rows *sql.Rows) ([]source.Source, error) {
	var out []source.Source
	for rows.Next() {
		var (
			src   source.Source
			level string
		)
		if err := rows.Scan(&src.ID, &src.Protocol, &src.Host, &src.Port, &src.Path, &src.Username, &src.Password,
			&src.SegmentSeconds, &level, &src.CreatedAt); err != nil {
			return nil, err
		}
		src.LogLevel = source.LogLevel(level)
		out = append(out, src)
	}
	return out, rows.Err()
}
