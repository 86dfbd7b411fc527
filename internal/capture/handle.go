package capture

import (
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/camvault/internal/source"
)

// StopMode reports which path Handle.Stop took.
type StopMode string

const (
	StopNone     StopMode = "none"     // process had already exited
	StopGraceful StopMode = "graceful" // exited after SIGTERM within the grace period
	StopKilled   StopMode = "killed"   // force-killed after the grace period
)

// killReapWait bounds how long Stop waits for the reaper after SIGKILL.
const killReapWait = 2 * time.Second

// Handle owns one capture subprocess and its log sink.
// It is created by Supervisor.Start and never shared.
type Handle struct {
	Source    source.Source
	StartedAt time.Time

	cmd  *exec.Cmd
	done chan struct{} // closed by the reaper when cmd.Wait returns

	mu      sync.Mutex
	sink    io.WriteCloser
	exitErr error
	pidFile string
}

func newHandle(src source.Source, cmd *exec.Cmd, sink io.WriteCloser) *Handle {
	return &Handle{Source: src, cmd: cmd, sink: sink, done: make(chan struct{})}
}

// reap waits for the child and records its exit. Runs in its own goroutine
// so a child that exits on its own never lingers as a zombie.
func (h *Handle) reap() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.exitErr = err
	h.mu.Unlock()
	close(h.done)
}

// PID of the subprocess, 0 if it never started.
func (h *Handle) PID() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Running reports whether the subprocess has not exited yet.
func (h *Handle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return h.PID() > 0
	}
}

// ExitErr returns the wait error once the process has exited.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Done is closed when the subprocess has exited and been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Stop terminates the subprocess: SIGTERM to its process group, up to grace
// for it to exit, then SIGKILL. The log sink is closed on every path, exactly
// once. Calling Stop on a stopped handle is a no-op returning StopNone.
func (h *Handle) Stop(grace time.Duration) StopMode {
	defer h.closeSink()
	if !h.Running() {
		return StopNone
	}
	pid := h.PID()
	// Ask nicely first so the current segment is finalized
	_ = terminateGroup(pid)
	select {
	case <-h.done:
		return StopGraceful
	case <-time.After(grace):
	}
	// Grace expired
	_ = killGroup(pid)
	select {
	case <-h.done:
	case <-time.After(killReapWait):
	}
	return StopKilled
}

// closeSink closes the log sink if still open. The capture process writes
// through a pipe, so the sink is closed only after the child is gone.
func (h *Handle) closeSink() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sink == nil {
		return false
	}
	_ = h.sink.Close()
	h.sink = nil
	return true
}

// SinkOpen reports whether the log sink has not been closed yet.
func (h *Handle) SinkOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sink != nil
}
