package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/camvault/internal/source"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("source with the same protocol, host, port and path already exists")
)

// RelocationPolicy decides what happens to the previous records root when
// the configured root changes.
type RelocationPolicy string

const (
	RelocateMove   RelocationPolicy = "move"
	RelocateDelete RelocationPolicy = "delete"
)

func ParseRelocationPolicy(s string) (RelocationPolicy, error) {
	switch p := RelocationPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return RelocateMove, nil
	case RelocateMove, RelocateDelete:
		return p, nil
	default:
		return "", fmt.Errorf("unknown relocation policy %q (want move or delete)", s)
	}
}

// Settings is the singleton system configuration record.
// MinFreeGB <= 0 disables retention.
type Settings struct {
	RecordsDir  string           `json:"records_dir"`
	MinFreeGB   float64          `json:"min_free_gb"`
	Relocation  RelocationPolicy `json:"relocation"`
	StoragePool string           `json:"storage_pool"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// WithDefaults fills unset fields; recordsDir is used when no root is stored.
func (s Settings) WithDefaults(recordsDir string) Settings {
	if strings.TrimSpace(s.RecordsDir) == "" {
		s.RecordsDir = recordsDir
	}
	if s.Relocation == "" {
		s.Relocation = RelocateMove
	}
	return s
}

// Registry is the read side polled by the control loop every tick.
type Registry interface {
	Sources(ctx context.Context) ([]source.Source, error)
	Settings(ctx context.Context) (Settings, error)
}

// Store is the durable configuration store shared with the administrative
// process. Implementations must be safe for concurrent use.
type Store interface {
	Registry
	EnsureSchema(ctx context.Context) error
	AddSource(ctx context.Context, s *source.Source) error
	GetSource(ctx context.Context, id int64) (source.Source, error)
	RemoveSource(ctx context.Context, id int64) error
	SaveSettings(ctx context.Context, s Settings) error
	Close() error
}
