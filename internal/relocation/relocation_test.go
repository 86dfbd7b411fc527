package relocation

import (
	"bytes"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/camvault/internal/logger"
	"github.com/loykin/camvault/internal/signal"
)

type countingStopper struct{ calls int }

func (s *countingStopper) StopAll() { s.calls++ }

func write(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
}

func newHandler(t *testing.T, root string) (*Handler, *signal.Files, *countingStopper) {
	t.Helper()
	sig := signal.NewFiles(root)
	st := &countingStopper{}
	h := NewHandler(sig, st, logger.Discard(), nil)
	h.Backoff = 10 * time.Millisecond
	return h, sig, st
}

func TestMoveRelocatesChildren(t *testing.T) {
	base := t.TempDir()
	oldRoot := filepath.Join(base, "old")
	newRoot := filepath.Join(base, "new")
	write(t, filepath.Join(oldRoot, "a"), "A")
	write(t, filepath.Join(oldRoot, "b"), "B")
	write(t, filepath.Join(oldRoot, "1", "2024-01-01_00-00-00.mp4"), "seg")

	h, sig, st := newHandler(t, newRoot)
	require.NoError(t, sig.Raise(signal.Move, oldRoot+"\n"))

	assert.True(t, h.Handle(newRoot))
	assert.Equal(t, 1, st.calls)
	assert.FileExists(t, filepath.Join(newRoot, "a"))
	assert.FileExists(t, filepath.Join(newRoot, "b"))
	assert.FileExists(t, filepath.Join(newRoot, "1", "2024-01-01_00-00-00.mp4"))
	assert.NoDirExists(t, oldRoot)
	assert.NoFileExists(t, sig.Path(signal.Move))
}

func TestMoveMergesExistingDirectories(t *testing.T) {
	base := t.TempDir()
	oldRoot := filepath.Join(base, "old")
	newRoot := filepath.Join(base, "new")
	write(t, filepath.Join(oldRoot, "1", "old.mp4"), "o")
	write(t, filepath.Join(newRoot, "1", "new.mp4"), "n")
	write(t, filepath.Join(oldRoot, "stop.flag"), "")

	h, sig, _ := newHandler(t, newRoot)
	require.NoError(t, sig.Raise(signal.Move, oldRoot))

	assert.True(t, h.Handle(newRoot))
	assert.FileExists(t, filepath.Join(newRoot, "1", "old.mp4"))
	assert.FileExists(t, filepath.Join(newRoot, "1", "new.mp4"))
	assert.False(t, sig.Peek(signal.Stop), "signal files of the old root are not carried over")
	assert.NoDirExists(t, oldRoot)
}

func TestMoveIntoNestedRoot(t *testing.T) {
	oldRoot := t.TempDir()
	newRoot := filepath.Join(oldRoot, "nested")
	write(t, filepath.Join(oldRoot, "1", "a.mp4"), "A")
	require.NoError(t, os.MkdirAll(newRoot, 0o750))

	h, sig, _ := newHandler(t, newRoot)
	require.NoError(t, sig.Raise(signal.Move, oldRoot))

	assert.True(t, h.Handle(newRoot))
	assert.FileExists(t, filepath.Join(newRoot, "1", "a.mp4"))
	assert.DirExists(t, newRoot)
}

func TestMoveStaleSignal(t *testing.T) {
	newRoot := t.TempDir()
	h, sig, st := newHandler(t, newRoot)
	require.NoError(t, sig.Raise(signal.Move, filepath.Join(newRoot, "does-not-exist")))

	assert.False(t, h.Handle(newRoot))
	assert.Equal(t, 0, st.calls)
	assert.False(t, sig.Peek(signal.Move))
}

func TestMoveFromCurrentRootIsStale(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a"), "A")
	h, sig, st := newHandler(t, root)
	require.NoError(t, sig.Raise(signal.Move, root))

	assert.False(t, h.Handle(root))
	assert.Equal(t, 0, st.calls)
	assert.FileExists(t, filepath.Join(root, "a"))
	assert.False(t, sig.Peek(signal.Move))
}

func TestDeleteRemovesPreviousRoot(t *testing.T) {
	base := t.TempDir()
	oldRoot := filepath.Join(base, "old")
	newRoot := filepath.Join(base, "new")
	write(t, filepath.Join(oldRoot, "1", "a.mp4"), "A")

	h, sig, st := newHandler(t, newRoot)
	require.NoError(t, sig.Raise(signal.Delete, oldRoot))

	assert.False(t, h.Handle(newRoot), "delete does not owe a restart")
	assert.Equal(t, 1, st.calls)
	assert.NoDirExists(t, oldRoot)
	assert.NoFileExists(t, sig.Path(signal.Delete))
}

func TestDeleteRefusesCurrentOrEnclosingRoot(t *testing.T) {
	base := t.TempDir()
	newRoot := filepath.Join(base, "records")
	write(t, filepath.Join(newRoot, "1", "a.mp4"), "A")

	for _, target := range []string{newRoot, base} {
		h, sig, st := newHandler(t, newRoot)
		require.NoError(t, sig.Raise(signal.Delete, target))
		h.Handle(newRoot)
		assert.Equal(t, 0, st.calls)
		assert.FileExists(t, filepath.Join(newRoot, "1", "a.mp4"))
		assert.False(t, sig.Peek(signal.Delete))
	}
}

func TestDeleteRetriesPermissionDenied(t *testing.T) {
	base := t.TempDir()
	oldRoot := filepath.Join(base, "old")
	newRoot := filepath.Join(base, "new")
	write(t, filepath.Join(oldRoot, "a.mp4"), "A")

	h, sig, st := newHandler(t, newRoot)
	h.Attempts = 3
	var logs bytes.Buffer
	h.logger = slog.New(slog.NewTextHandler(&logs, nil))
	var calls int
	h.removeAll = func(path string) error {
		calls++
		assert.Equal(t, oldRoot, path)
		return &fs.PathError{Op: "unlinkat", Path: path, Err: fs.ErrPermission}
	}
	require.NoError(t, sig.Raise(signal.Delete, oldRoot))

	start := time.Now()
	assert.False(t, h.Handle(newRoot))
	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, time.Since(start), 2*h.Backoff, "backoff between attempts")
	assert.Equal(t, 1, st.calls)
	assert.DirExists(t, oldRoot)
	assert.False(t, sig.Peek(signal.Delete), "failed delete is not re-armed")
	assert.Equal(t, 2, strings.Count(logs.String(), "delete blocked, retrying"), "no retry warning after the last attempt")
}

func TestDeleteSucceedsOnSecondAttempt(t *testing.T) {
	base := t.TempDir()
	oldRoot := filepath.Join(base, "old")
	newRoot := filepath.Join(base, "new")
	write(t, filepath.Join(oldRoot, "a.mp4"), "A")

	h, sig, _ := newHandler(t, newRoot)
	var calls int
	h.removeAll = func(path string) error {
		calls++
		if calls == 1 {
			return syscall.EBUSY
		}
		return os.RemoveAll(path)
	}
	require.NoError(t, sig.Raise(signal.Delete, oldRoot))

	h.Handle(newRoot)
	assert.Equal(t, 2, calls)
	assert.NoDirExists(t, oldRoot)
}

func TestDeleteStopsOnOtherErrors(t *testing.T) {
	base := t.TempDir()
	oldRoot := filepath.Join(base, "old")
	newRoot := filepath.Join(base, "new")
	write(t, filepath.Join(oldRoot, "a.mp4"), "A")

	h, sig, _ := newHandler(t, newRoot)
	var calls int
	h.removeAll = func(string) error {
		calls++
		return errors.New("read-only file system")
	}
	require.NoError(t, sig.Raise(signal.Delete, oldRoot))

	h.Handle(newRoot)
	assert.Equal(t, 1, calls)
	assert.DirExists(t, oldRoot)
	assert.False(t, sig.Peek(signal.Delete))
}

func TestMovePartialFailureKeepsPreviousRoot(t *testing.T) {
	base := t.TempDir()
	oldRoot := filepath.Join(base, "old")
	newRoot := filepath.Join(base, "new")
	write(t, filepath.Join(oldRoot, "1", "2024-01-01_00-00-00.mp4"), "seg")
	write(t, filepath.Join(oldRoot, "2", "2024-01-01_00-00-00.mp4"), "seg2")
	// a plain file where directory 1 should go
	write(t, filepath.Join(newRoot, "1"), "blocker")

	h, sig, _ := newHandler(t, newRoot)
	require.NoError(t, sig.Raise(signal.Move, oldRoot))

	assert.True(t, h.Handle(newRoot))
	assert.FileExists(t, filepath.Join(oldRoot, "1", "2024-01-01_00-00-00.mp4"))
	assert.FileExists(t, filepath.Join(newRoot, "2", "2024-01-01_00-00-00.mp4"))
	assert.False(t, sig.Peek(signal.Move))
}

func TestMoveNameClashKeepsBothCopies(t *testing.T) {
	base := t.TempDir()
	oldRoot := filepath.Join(base, "old")
	newRoot := filepath.Join(base, "new")
	write(t, filepath.Join(oldRoot, "1", "ffmpeg.log"), "old log")
	write(t, filepath.Join(oldRoot, "1", "a.mp4"), "A")
	write(t, filepath.Join(newRoot, "1", "ffmpeg.log"), "new log")

	h, sig, _ := newHandler(t, newRoot)
	require.NoError(t, sig.Raise(signal.Move, oldRoot))

	assert.True(t, h.Handle(newRoot))
	assert.FileExists(t, filepath.Join(newRoot, "1", "a.mp4"))
	got, err := os.ReadFile(filepath.Join(oldRoot, "1", "ffmpeg.log"))
	require.NoError(t, err)
	assert.Equal(t, "old log", string(got))
	got, err = os.ReadFile(filepath.Join(newRoot, "1", "ffmpeg.log"))
	require.NoError(t, err)
	assert.Equal(t, "new log", string(got))
	assert.NoFileExists(t, filepath.Join(oldRoot, "1", "a.mp4"))
}

func TestPruneRootKeepsNonEmptyDirectories(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "stop.flag"), "")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty", "deeper"), 0o750))
	write(t, filepath.Join(root, "kept", "a.mp4"), "A")

	assert.Error(t, pruneRoot(root))
	assert.NoFileExists(t, filepath.Join(root, "stop.flag"))
	assert.NoDirExists(t, filepath.Join(root, "empty"))
	assert.FileExists(t, filepath.Join(root, "kept", "a.mp4"))

	require.NoError(t, os.Remove(filepath.Join(root, "kept", "a.mp4")))
	assert.NoError(t, pruneRoot(root))
	assert.NoDirExists(t, root)
}

func TestHandleWithoutSignalsIsNoop(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "1", "a.mp4"), "A")
	h, _, st := newHandler(t, root)

	for range 2 {
		assert.False(t, h.Handle(root))
	}
	assert.Equal(t, 0, st.calls)
	assert.FileExists(t, filepath.Join(root, "1", "a.mp4"))
}

func TestMoveAndDeleteBothHandled(t *testing.T) {
	base := t.TempDir()
	moveFrom := filepath.Join(base, "m")
	deleteDir := filepath.Join(base, "d")
	newRoot := filepath.Join(base, "new")
	write(t, filepath.Join(moveFrom, "x"), "X")
	write(t, filepath.Join(deleteDir, "y"), "Y")

	h, sig, _ := newHandler(t, newRoot)
	require.NoError(t, sig.Raise(signal.Move, moveFrom))
	require.NoError(t, sig.Raise(signal.Delete, deleteDir))

	assert.True(t, h.Handle(newRoot))
	assert.FileExists(t, filepath.Join(newRoot, "x"))
	assert.NoDirExists(t, deleteDir)
	assert.False(t, sig.Peek(signal.Move))
	assert.False(t, sig.Peek(signal.Delete))
}

func TestContains(t *testing.T) {
	assert.True(t, contains("/a", "/a"))
	assert.True(t, contains("/a", "/a/b"))
	assert.False(t, contains("/a", "/ab"))
	assert.False(t, contains("/a/b", "/a"))
}
