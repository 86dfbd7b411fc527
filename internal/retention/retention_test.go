package retention

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/camvault/internal/logger"
	"github.com/loykin/camvault/internal/signal"
)

type countingStopper struct{ calls int }

func (s *countingStopper) StopAll() { s.calls++ }

// fakeDisk reports base free bytes plus the pretend size of every tracked
// file that has been deleted.
type fakeDisk struct {
	base  uint64
	files map[string]uint64
}

func (d *fakeDisk) usage(string) (uint64, error) {
	free := d.base
	for p, size := range d.files {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			free += size
		}
	}
	return free, nil
}

// writeSegment creates a segment file with the given age.
func writeSegment(t *testing.T, root, rel string, age time.Duration) string {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	mt := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(p, mt, mt))
	return p
}

func newEngine(disk *fakeDisk) (*Engine, *countingStopper, *signal.Memory) {
	st := &countingStopper{}
	sig := signal.NewMemory()
	e := NewEngine("mp4", st, sig, logger.Discard(), nil)
	e.Usage = disk.usage
	return e, st, sig
}

func TestEnforceDisabled(t *testing.T) {
	root := t.TempDir()
	p := writeSegment(t, root, "1/a.mp4", time.Hour)
	disk := &fakeDisk{base: 0}
	e, st, sig := newEngine(disk)

	for _, threshold := range []float64{0, -5} {
		res := e.Enforce(root, threshold)
		assert.False(t, res.Checked)
	}
	assert.FileExists(t, p)
	assert.Equal(t, 0, st.calls)
	assert.False(t, sig.Peek(signal.Stop))
}

func TestEnforceEnoughSpace(t *testing.T) {
	root := t.TempDir()
	p := writeSegment(t, root, "1/a.mp4", time.Hour)
	e, st, _ := newEngine(&fakeDisk{base: 200 * GB})

	res := e.Enforce(root, 100)
	assert.True(t, res.Checked)
	assert.True(t, res.Satisfied)
	assert.Equal(t, 0, res.Deleted)
	assert.FileExists(t, p)
	assert.Equal(t, 0, st.calls)
}

func TestEnforceSingleLargeFile(t *testing.T) {
	root := t.TempDir()
	p := writeSegment(t, root, "1/2024-01-01_00-00-00.mp4", time.Hour)
	disk := &fakeDisk{base: 50 * GB, files: map[string]uint64{p: 60 * GB}}
	e, st, sig := newEngine(disk)

	res := e.Enforce(root, 100)
	assert.True(t, res.Satisfied)
	assert.Equal(t, 1, res.Deleted)
	assert.True(t, res.Stopped)
	assert.Equal(t, 1, st.calls)
	assert.NoFileExists(t, p)
	assert.False(t, sig.Peek(signal.Stop))
}

func TestEnforceDeletesOldestFirstAndStopsEarly(t *testing.T) {
	root := t.TempDir()
	oldest := writeSegment(t, root, "1/a.mp4", 3*time.Hour)
	middle := writeSegment(t, root, "2/b.mp4", 2*time.Hour)
	newest := writeSegment(t, root, "1/c.mp4", time.Hour)
	other := writeSegment(t, root, "1/notes.txt", 4*time.Hour)
	disk := &fakeDisk{base: 1 * GB, files: map[string]uint64{oldest: 2 * GB, middle: 2 * GB, newest: 2 * GB}}
	e, _, sig := newEngine(disk)

	res := e.Enforce(root, 4)
	assert.True(t, res.Satisfied)
	assert.Equal(t, 2, res.Deleted)
	assert.NoFileExists(t, oldest)
	assert.NoFileExists(t, middle)
	assert.FileExists(t, newest)
	assert.FileExists(t, other, "only segment files are evicted")
	assert.False(t, sig.Peek(signal.Stop))
}

func TestEnforceRaisesStopWhenUnsatisfiable(t *testing.T) {
	root := t.TempDir()
	a := writeSegment(t, root, "1/a.mp4", 2*time.Hour)
	b := writeSegment(t, root, "1/b.mp4", time.Hour)
	disk := &fakeDisk{base: 1 * GB, files: map[string]uint64{a: GB, b: GB}}
	e, _, sig := newEngine(disk)

	res := e.Enforce(root, 10)
	assert.False(t, res.Satisfied)
	assert.Equal(t, 2, res.Deleted)
	assert.True(t, res.StopRaised)
	assert.True(t, sig.Peek(signal.Stop))
}

func TestEnforceNoCandidates(t *testing.T) {
	root := t.TempDir()
	e, st, sig := newEngine(&fakeDisk{base: GB})

	res := e.Enforce(root, 10)
	assert.Equal(t, 0, res.Deleted)
	assert.False(t, res.Stopped)
	assert.Equal(t, 0, st.calls, "nothing to delete, recordings are left alone")
	assert.True(t, sig.Peek(signal.Stop))
}

func TestEnforceMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "gone")
	e, _, sig := newEngine(&fakeDisk{base: GB})

	res := e.Enforce(root, 10)
	assert.True(t, res.Checked)
	assert.False(t, res.StopRaised)
	assert.False(t, sig.Peek(signal.Stop))
}

func TestCandidatesTieBreakByPath(t *testing.T) {
	root := t.TempDir()
	b := writeSegment(t, root, "2/x.mp4", time.Hour)
	a := writeSegment(t, root, "1/x.mp4", time.Hour)
	mt := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(a, mt, mt))
	require.NoError(t, os.Chtimes(b, mt, mt))

	e, _, _ := newEngine(&fakeDisk{})
	got, err := e.candidates(root)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a, got[0].path)
	assert.Equal(t, b, got[1].path)
}

func TestSourceID(t *testing.T) {
	assert.Equal(t, int64(12), sourceID("/r", "/r/12/a.mp4"))
	assert.Equal(t, int64(0), sourceID("/r", "/r/misc/a.mp4"))
}
