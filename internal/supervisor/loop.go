package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/loykin/camvault/internal/metrics"
	"github.com/loykin/camvault/internal/retention"
	"github.com/loykin/camvault/internal/signal"
	"github.com/loykin/camvault/internal/source"
	"github.com/loykin/camvault/internal/store"
)

const DefaultInterval = time.Second

// Recorders is the process supervisor as seen by the loop.
type Recorders interface {
	SetRoot(root string)
	StopAll()
	RestartAll(sources []source.Source) int
}

// Retainer enforces the free-space threshold on a records root.
type Retainer interface {
	Enforce(root string, minFreeGB float64) retention.Result
}

// Relocator handles pending move/delete requests and reports whether a
// restart is owed.
type Relocator interface {
	Handle(newRoot string) bool
}

// Rooted is implemented by signal channels stored inside the records root.
type Rooted interface {
	SetRoot(root string)
}

// Options wires the loop's collaborators.
type Options struct {
	Registry    store.Registry
	Signals     signal.Channel
	Recorders   Recorders
	Retention   Retainer
	Relocation  Relocator
	DefaultRoot string // used until settings name a records root
	Interval    time.Duration
	Logger      *slog.Logger
}

// Loop is the polling control loop. All mutation of recorder state happens
// on the goroutine calling Tick or Run.
type Loop struct {
	opts Options

	firstRun    bool
	restartOwed bool

	mu       sync.Mutex
	root     string
	settings store.Settings
	lastTick time.Time
}

func New(opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Loop{opts: opts, firstRun: true}
}

// Run ticks until ctx is cancelled, then stops every recorder.
func (l *Loop) Run(ctx context.Context) error {
	log := l.opts.Logger
	log.Info("recording supervisor started", "interval", l.opts.Interval)
	defer func() {
		l.opts.Recorders.StopAll()
		log.Info("recording supervisor stopped")
	}()

	t := time.NewTicker(l.opts.Interval)
	defer t.Stop()
	for {
		if err := l.Tick(ctx); err != nil {
			log.Error("tick failed", "error", err)
			metrics.IncTickError("tick")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Tick runs one iteration: settings, relocation, retention, stop, restart.
func (l *Loop) Tick(ctx context.Context) error {
	metrics.IncTick()
	log := l.opts.Logger

	settings, err := l.opts.Registry.Settings(ctx)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	settings = settings.WithDefaults(l.opts.DefaultRoot)
	root := filepath.Clean(settings.RecordsDir)
	l.applyRoot(root, settings)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return fmt.Errorf("create records root: %w", err)
	}

	l.step("relocation", func() {
		if l.opts.Relocation.Handle(root) {
			l.restartOwed = true
		}
	})

	l.step("retention", func() {
		l.opts.Retention.Enforce(root, settings.MinFreeGB)
	})

	if l.opts.Signals.Peek(signal.Stop) {
		l.step("stop", l.opts.Recorders.StopAll)
	}

	if l.firstRun || l.restartOwed || l.opts.Signals.Peek(signal.Restart) {
		sources, err := l.opts.Registry.Sources(ctx)
		if err != nil {
			return fmt.Errorf("read sources: %w", err)
		}
		log.Info("starting recorders", "root", root, "min_free_gb", settings.MinFreeGB, "sources", len(sources))
		l.step("restart", func() { l.opts.Recorders.RestartAll(sources) })
		for _, k := range []signal.Kind{signal.Stop, signal.Restart} {
			if err := l.opts.Signals.Consume(k); err != nil {
				log.Error("consume signal", "signal", k.FileName(), "error", err)
			}
		}
		l.firstRun = false
		l.restartOwed = false
	}

	l.mu.Lock()
	l.lastTick = time.Now()
	l.mu.Unlock()
	return nil
}

// applyRoot re-points every root-relative collaborator when the records
// root changed since the previous tick.
func (l *Loop) applyRoot(root string, settings store.Settings) {
	l.mu.Lock()
	prev := l.root
	l.root = root
	l.settings = settings
	l.mu.Unlock()
	if prev == root {
		return
	}
	if prev != "" {
		l.opts.Logger.Info("records root changed", "from", prev, "to", root)
	}
	if r, ok := l.opts.Signals.(Rooted); ok {
		r.SetRoot(root)
	}
	l.opts.Recorders.SetRoot(root)
}

// step runs fn, turning a panic into a logged tick error.
func (l *Loop) step(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.opts.Logger.Error("tick step panicked", "step", name, "panic", r, "stack", string(debug.Stack()))
			metrics.IncTickError(name)
		}
	}()
	fn()
}

// Snapshot is the loop state exposed on the status endpoint.
type Snapshot struct {
	Root     string         `json:"records_dir"`
	Settings store.Settings `json:"settings"`
	LastTick time.Time      `json:"last_tick"`
}

func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{Root: l.root, Settings: l.settings, LastTick: l.lastTick}
}
