package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/camvault/internal/source"
	"github.com/loykin/camvault/internal/store"
)

const uniqueViolation = "23505"

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sources(
			id BIGSERIAL PRIMARY KEY,
			protocol TEXT NOT NULL,
			host TEXT NOT NULL,
			port INTEGER NOT NULL,
			path TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			password TEXT NOT NULL DEFAULT '',
			segment_seconds INTEGER NOT NULL CHECK (segment_seconds > 0),
			log_level TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE(protocol, host, port, path)
		);`,
		`CREATE TABLE IF NOT EXISTS settings(
			id INTEGER PRIMARY KEY CHECK (id = 1),
			records_dir TEXT NOT NULL,
			min_free_gb DOUBLE PRECISION NOT NULL DEFAULT 0,
			relocation TEXT NOT NULL DEFAULT 'move',
			storage_pool TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) AddSource(ctx context.Context, src *source.Source) error {
	if err := src.Validate(); err != nil {
		return err
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO sources(protocol, host, port, path, username, password, segment_seconds, log_level, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id;`,
		strings.ToLower(src.Protocol), src.Host, src.Port, src.Path, src.Username, src.Password,
		src.SegmentSeconds, string(src.LogLevel), src.CreatedAt.UTC()).Scan(&src.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrDuplicate
	}
	return err
}

func (p *DB) GetSource(ctx context.Context, id int64) (source.Source, error) {
	rows, err := p.db.QueryContext(ctx, selectSources+` WHERE id=$1;`, id)
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

func (p *DB) RemoveSource(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM sources WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (p *DB) Sources(ctx context.Context) ([]source.Source, error) {
	rows, err := p.db.QueryContext(ctx, selectSources+` ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSources(rows)
}

func (p *DB) Settings(ctx context.Context) (store.Settings, error) {
	var (
		st         store.Settings
		relocation string
	)
	err := p.db.QueryRowContext(ctx, `
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

func (p *DB) SaveSettings(ctx context.Context, st store.Settings) error {
	policy, err := store.ParseRelocationPolicy(string(st.Relocation))
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO settings(id, records_dir, min_free_gb, relocation, storage_pool, updated_at)
		VALUES(1,$1,$2,$3,$4,$5)
		ON CONFLICT(id) DO UPDATE SET
			records_dir=EXCLUDED.records_dir,
			min_free_gb=EXCLUDED.min_free_gb,
			relocation=EXCLUDED.relocation,
			storage_pool=EXCLUDED.storage_pool,
			updated_at=EXCLUDED.updated_at;`,
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
