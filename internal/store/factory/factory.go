package factory

import (
	"errors"
	"strings"

	"github.com/loykin/camvault/internal/store"
	pg "github.com/loykin/camvault/internal/store/postgres"
	sq "github.com/loykin/camvault/internal/store/sqlite"
)

// NewFromDSN selects a store implementation based on DSN.
// Supported:
//   - sqlite:  "sqlite:///<path>" or bare filepath (treated as sqlite)
//   - postgres: DSN starting with "postgres://" or "postgresql://"
//   - "memory://" for an in-process store (tests, dry runs)
func NewFromDSN(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty DSN")
	}
	if ld == "memory://" {
		return store.NewMemory(), nil
	}
	if strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://") {
		return pg.New(d)
	}
	if strings.HasPrefix(ld, "sqlite://") {
		path := d[len("sqlite://"):]
		return sq.New(path)
	}
	if strings.Contains(d, "://") {
		return nil, errors.New("unsupported store DSN scheme: " + d)
	}
	// default to sqlite path
	return sq.New(d)
}
