package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/loykin/camvault/internal/history"
	"github.com/loykin/camvault/internal/logger"
	"github.com/loykin/camvault/internal/metrics"
	"github.com/loykin/camvault/internal/source"
)

// ErrBinaryNotFound is returned when the capture tool cannot be resolved.
var ErrBinaryNotFound = errors.New("capture binary not found")

// Config controls how capture subprocesses are launched.
type Config struct {
	Binary    string        // capture tool, resolved through PATH
	Extension string        // segment file extension without dot
	StopGrace time.Duration // SIGTERM grace period before SIGKILL
	LogName   string        // per-source log file name inside the source directory
	Log       logger.Config // rotation settings for per-source logs
}

const (
	defaultStopGrace = 5 * time.Second
	pidFileName      = "capture.pid"
)

// Status is a snapshot of one tracked recorder.
type Status struct {
	SourceID  int64     `json:"source_id"`
	Source    string    `json:"source"`
	PID       int       `json:"pid"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at"`
	Dir       string    `json:"dir"`
}

// Supervisor owns the set of capture subprocess handles, one per source.
// The control loop is the only mutator; the mutex protects readers such as
// the status endpoint.
type Supervisor struct {
	cfg      Config
	logger   *slog.Logger
	history  *history.Recorder
	lookPath func(string) (string, error)

	mu      sync.Mutex
	root    string
	handles map[int64]*Handle
}

func New(cfg Config, root string, logger *slog.Logger, rec *history.Recorder) *Supervisor {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = defaultStopGrace
	}
	if cfg.Extension == "" {
		cfg.Extension = "mp4"
	}
	if cfg.LogName == "" {
		cfg.LogName = "ffmpeg.log"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:      cfg,
		logger:   logger,
		history:  rec,
		lookPath: exec.LookPath,
		root:     root,
		handles:  make(map[int64]*Handle),
	}
}

// SetRoot changes the records root used by subsequent starts.
func (s *Supervisor) SetRoot(root string) {
	s.mu.Lock()
	s.root = root
	s.mu.Unlock()
}

func (s *Supervisor) Root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// Len returns the number of tracked handles.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Handle returns the tracked handle for a source id.
func (s *Supervisor) Handle(id int64) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	return h, ok
}

// Start launches the capture subprocess for src and reports whether it was
// launched. It never returns an error: every failure is logged and is fatal
// for this source only.
func (s *Supervisor) Start(src source.Source) bool {
	log := s.logger.With("source_id", src.ID, "source", src.Name())

	// One recorder per source
	if old, ok := s.Handle(src.ID); ok {
		s.Stop(old)
	}

	dir := filepath.Join(s.Root(), src.Dir())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.Error("create recording directory", "dir", dir, "error", err)
		metrics.IncStartFailure(src.Name())
		return false
	}
	// A recorder left behind by a crashed daemon would write the same segments
	s.reapOrphan(dir, log)

	// Truncated on every start
	sink, err := s.cfg.Log.CaptureWriter(filepath.Join(dir, s.cfg.LogName))
	if err != nil {
		log.Error("open capture log", "dir", dir, "error", err)
		metrics.IncStartFailure(src.Name())
		return false
	}

	bin, err := s.lookPath(s.cfg.Binary)
	if err != nil {
		_ = sink.Close()
		logger.Critical(log, "capture tool not available, recording disabled for source",
			"binary", s.cfg.Binary, "error", fmt.Errorf("%w: %v", ErrBinaryNotFound, err))
		metrics.IncStartFailure(src.Name())
		return false
	}

	// #nosec G204 -- binary comes from daemon config, args are built, not shell-parsed
	cmd := exec.Command(bin, Args(src, dir, s.cfg.Extension)...)
	cmd.Dir = dir
	// Only stderr carries the tool's log
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = sink
	cmd.WaitDelay = time.Second
	// Own process group so stop reaches the whole tree
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		_ = sink.Close()
		log.Error("launch capture process", "binary", bin, "error", err)
		metrics.IncStartFailure(src.Name())
		return false
	}

	h := newHandle(src, cmd, sink)
	h.StartedAt = time.Now()
	h.pidFile = filepath.Join(dir, pidFileName)
	go h.reap()
	// Lets the next daemon find this recorder if we crash
	writePIDFile(h.pidFile, h.PID())

	s.mu.Lock()
	s.handles[src.ID] = h
	n := len(s.handles)
	s.mu.Unlock()

	log.Info("recorder started", "pid", h.PID(), "segment_seconds", src.SegmentSeconds, "dir", dir)
	metrics.IncStart(src.Name())
	metrics.SetRunning(n)
	s.history.Emit(history.Event{Type: history.EventStart, SourceID: src.ID, Source: src.Name(), PID: h.PID(), Detail: dir})
	return true
}

// Stop terminates one handle and forgets it. Safe on an already stopped handle.
func (s *Supervisor) Stop(h *Handle) StopMode {
	if h == nil {
		return StopNone
	}
	pid := h.PID()
	mode := h.Stop(s.cfg.StopGrace)
	removePIDFile(h.pidFile)

	// Forget it unless a newer handle replaced it meanwhile
	s.mu.Lock()
	if cur, ok := s.handles[h.Source.ID]; ok && cur == h {
		delete(s.handles, h.Source.ID)
	}
	n := len(s.handles)
	s.mu.Unlock()

	log := s.logger.With("source_id", h.Source.ID, "source", h.Source.Name(), "pid", pid)
	switch mode {
	case StopGraceful:
		log.Info("recorder stopped gracefully")
	case StopKilled:
		log.Warn("recorder ignored terminate, killed", "grace", s.cfg.StopGrace)
	default:
		log.Info("recorder had already exited", "exit", h.ExitErr())
	}
	metrics.IncStop(h.Source.Name(), string(mode))
	metrics.SetRunning(n)
	s.history.Emit(history.Event{Type: history.EventStop, SourceID: h.Source.ID, Source: h.Source.Name(), PID: pid, Detail: string(mode)})
	return mode
}

// StopAll stops every tracked handle and clears the set.
func (s *Supervisor) StopAll() {
	handles := s.snapshot()
	for _, h := range handles {
		s.Stop(h)
	}
	s.mu.Lock()
	s.handles = make(map[int64]*Handle)
	s.mu.Unlock()
	metrics.SetRunning(0)
	if len(handles) > 0 {
		s.logger.Info("all recorders stopped", "count", len(handles))
	}
}

// RestartAll stops everything and starts one recorder per source.
// It returns how many were launched.
func (s *Supervisor) RestartAll(sources []source.Source) int {
	s.StopAll()
	started := 0
	for _, src := range sources {
		if s.safeStart(src) {
			started++
		}
	}
	s.logger.Info("recorders restarted", "started", started, "total", len(sources))
	return started
}

// safeStart keeps a panic while starting one source from aborting the rest.
func (s *Supervisor) safeStart(src source.Source) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recorder start panicked", "source_id", src.ID, "source", src.Name(), "panic", r)
			metrics.IncStartFailure(src.Name())
			ok = false
		}
	}()
	return s.Start(src)
}

// Statuses returns a snapshot of tracked recorders ordered by source id.
func (s *Supervisor) Statuses() []Status {
	root := s.Root()
	handles := s.snapshot()
	out := make([]Status, 0, len(handles))
	for _, h := range handles {
		out = append(out, Status{
			SourceID:  h.Source.ID,
			Source:    h.Source.Name(),
			PID:       h.PID(),
			Running:   h.Running(),
			StartedAt: h.StartedAt,
			Dir:       filepath.Join(root, h.Source.Dir()),
		})
	}
	return out
}

// PIDs maps source id to subprocess pid for running recorders.
func (s *Supervisor) PIDs() map[int64]int32 {
	out := make(map[int64]int32)
	for _, h := range s.snapshot() {
		if h.Running() {
			out[h.Source.ID] = int32(h.PID())
		}
	}
	return out
}

func (s *Supervisor) snapshot() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source.ID < out[j].Source.ID })
	return out
}
