package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/camvault/internal/history"
)

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// Options selects the ClickHouse endpoint and target table.
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

func New(opts Options) (*Sink, error) {
	if opts.Database == "" {
		opts.Database = "default"
	}
	if opts.Username == "" {
		opts.Username = "default"
	}
	if opts.Table == "" {
		opts.Table = "recording_history"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: opts.Table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	return s.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			type String,
			occurred_at DateTime64(6),
			source_id Int64,
			source String,
			pid Int32,
			detail String
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, source_id)`, s.table))
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (type, occurred_at, source_id, source, pid, detail) VALUES (?, ?, ?, ?, ?, ?)`, s.table)

	if err := s.conn.Exec(ctx, query,
		string(e.Type),
		e.OccurredAt,
		e.SourceID,
		e.Source,
		int32(e.PID),
		e.Detail,
	); err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}

	return nil
}
