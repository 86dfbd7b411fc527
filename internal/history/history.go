package history

import (
	"context"
	"log/slog"
	"time"
)

// EventType defines the kind of recording lifecycle event.
type EventType string

const (
	EventStart    EventType = "start"
	EventStop     EventType = "stop"
	EventEvict    EventType = "evict"
	EventRelocate EventType = "relocate"
	EventWipe     EventType = "wipe"
)

// Event is exported to analytics/statistics systems.
// Source is the credential-free source identity; Detail is free text
// (stop mode, evicted path, relocation target).
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	SourceID   int64     `json:"source_id"`
	Source     string    `json:"source"`
	PID        int       `json:"pid"`
	Detail     string    `json:"detail"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Recorder forwards events to an optional sink. A nil sink drops events.
// Send failures are logged and never surface to the caller: history export
// must not affect recording.
type Recorder struct {
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration
}

func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, logger: logger, timeout: 2 * time.Second}
}

// Emit stamps and sends e.
func (r *Recorder) Emit(e Event) {
	if r == nil || r.sink == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.sink.Send(ctx, e); err != nil {
		r.logger.Warn("history export failed", "type", e.Type, "source", e.Source, "error", err)
	}
}
