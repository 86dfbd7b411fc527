package relocation

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/loykin/camvault/internal/history"
	"github.com/loykin/camvault/internal/metrics"
	"github.com/loykin/camvault/internal/signal"
)

// ErrStale means a relocation payload names a path that is not an existing
// directory, or one that cannot be acted on safely.
var ErrStale = errors.New("stale relocation target")

const (
	defaultAttempts = 2
	defaultBackoff  = 500 * time.Millisecond
)

// Stopper stops every active recording.
type Stopper interface {
	StopAll()
}

// Handler executes move and delete requests left by the administrative
// process after the records root changed.
type Handler struct {
	Attempts int           // delete attempts on permission or busy errors
	Backoff  time.Duration // pause between delete attempts

	signals   signal.Channel
	stopper   Stopper
	logger    *slog.Logger
	history   *history.Recorder
	removeAll func(string) error
}

func NewHandler(signals signal.Channel, stopper Stopper, logger *slog.Logger, rec *history.Recorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Attempts:  defaultAttempts,
		Backoff:   defaultBackoff,
		signals:   signals,
		stopper:   stopper,
		logger:    logger,
		history:   rec,
		removeAll: os.RemoveAll,
	}
}

// Handle processes a pending move, then a pending delete. It reports whether
// a move was executed, in which case recorders must be restarted to pick up
// the relocated directories. Both signals are always consumed.
func (h *Handler) Handle(newRoot string) (restartOwed bool) {
	if h.signals.Peek(signal.Move) {
		restartOwed = h.handleMove(newRoot)
		h.consume(signal.Move)
	}
	if h.signals.Peek(signal.Delete) {
		h.handleDelete(newRoot)
		h.consume(signal.Delete)
	}
	return restartOwed
}

func (h *Handler) consume(k signal.Kind) {
	if err := h.signals.Consume(k); err != nil {
		h.logger.Error("consume relocation signal", "signal", k.FileName(), "error", err)
	}
}

// target reads the payload of k and checks it names a directory other than
// (and not containing) newRoot.
func (h *Handler) target(k signal.Kind, newRoot string) (string, error) {
	payload, err := h.signals.Payload(k)
	if err != nil {
		return "", err
	}
	if payload == "" {
		return "", fmt.Errorf("%w: empty payload", ErrStale)
	}
	old := filepath.Clean(payload)
	info, err := os.Stat(old)
	if err != nil || !info.IsDir() {
		return old, fmt.Errorf("%w: %s is not a directory", ErrStale, old)
	}
	if samePath(old, newRoot) {
		return old, fmt.Errorf("%w: %s is the current records root", ErrStale, old)
	}
	return old, nil
}

func (h *Handler) handleMove(newRoot string) bool {
	old, err := h.target(signal.Move, newRoot)
	if err != nil {
		h.logger.Warn("ignoring move request", "from", old, "error", err)
		metrics.IncRelocation("move", "stale")
		return false
	}

	h.logger.Warn("moving recordings to new records root, stopping recording", "from", old, "to", newRoot)
	h.stopper.StopAll()

	entries, err := os.ReadDir(old)
	if err != nil {
		h.logger.Error("read previous records root", "from", old, "error", err)
		metrics.IncRelocation("move", "error")
		return true
	}
	failed := 0
	for _, ent := range entries {
		src := filepath.Join(old, ent.Name())
		if isSignalFile(ent.Name()) || contains(src, newRoot) {
			continue
		}
		dst := filepath.Join(newRoot, ent.Name())
		h.logger.Info("moving", "from", src, "to", dst)
		if err := move(src, dst); err != nil {
			failed++
			h.logger.Error("move item", "from", src, "to", dst, "error", err)
		}
	}

	if failed > 0 {
		// Anything that did not move stays where it was.
		h.logger.Warn("move completed with errors, keeping previous records root", "from", old, "to", newRoot, "failed", failed)
		metrics.IncRelocation("move", "partial")
	} else {
		h.logger.Info("move completed", "from", old, "to", newRoot)
		metrics.IncRelocation("move", "ok")
		if !contains(old, newRoot) {
			if err := pruneRoot(old); err != nil {
				h.logger.Warn("previous records root not empty, keeping it", "path", old, "error", err)
			}
		}
	}
	h.history.Emit(history.Event{Type: history.EventRelocate, Detail: old + " -> " + newRoot})
	return true
}

func (h *Handler) handleDelete(newRoot string) {
	old, err := h.target(signal.Delete, newRoot)
	if err == nil && contains(old, newRoot) {
		err = fmt.Errorf("%w: %s contains the current records root", ErrStale, old)
	}
	if err != nil {
		h.logger.Warn("ignoring delete request", "path", old, "error", err)
		metrics.IncRelocation("delete", "stale")
		return
	}

	h.logger.Warn("deleting previous records root, stopping recording", "path", old)
	h.stopper.StopAll()

	attempts := max(h.Attempts, 1)
	for i := 1; i <= attempts; i++ {
		err = h.removeAll(old)
		if err == nil {
			h.logger.Info("previous records root deleted", "path", old, "attempt", i)
			metrics.IncRelocation("delete", "ok")
			h.history.Emit(history.Event{Type: history.EventWipe, Detail: old})
			return
		}
		if !retryable(err) {
			break
		}
		if i < attempts {
			h.logger.Warn("delete blocked, retrying", "path", old, "attempt", i, "error", err)
			time.Sleep(h.Backoff)
		}
	}
	h.logger.Error("delete previous records root", "path", old, "error", err)
	metrics.IncRelocation("delete", "error")
}

func retryable(err error) bool {
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EBUSY)
}

// pruneRoot drops stale signal files from an emptied records root, then
// removes its empty directories bottom-up. Files that are still there keep
// their directories.
func pruneRoot(root string) error {
	for _, k := range signal.Kinds {
		_ = os.Remove(filepath.Join(root, k.FileName()))
	}
	return pruneEmpty(root)
}

func pruneEmpty(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		if ent.IsDir() {
			_ = pruneEmpty(filepath.Join(dir, ent.Name()))
		}
	}
	return os.Remove(dir)
}

func isSignalFile(name string) bool {
	for _, k := range signal.Kinds {
		if name == k.FileName() {
			return true
		}
	}
	return false
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

// contains reports whether child is dir or lies inside it.
func contains(dir, child string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(child))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
