package retention

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentsInRange(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"2024-05-01_10-00-00.mp4",
		"2024-05-01_10-05-00.mp4",
		"2024-05-01_10-10-00.mp4",
		"2024-05-01_10-15-00.mkv",
		"garbage.mp4",
		"ffmpeg.log",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("data"), 0o600))
	}

	from := time.Date(2024, 5, 1, 10, 4, 0, 0, time.UTC)
	to := time.Date(2024, 5, 1, 10, 10, 0, 0, time.UTC)
	got, err := Segments(dir, "mp4", 5*time.Minute, from, to, time.UTC)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-05-01_10-00-00.mp4", filepath.Base(got[0].Path))
	assert.Equal(t, "2024-05-01_10-05-00.mp4", filepath.Base(got[1].Path))
	assert.Equal(t, int64(4), got[0].Size)
	assert.Equal(t, from.Add(time.Minute), got[0].End)
}

func TestSegmentsMissingDir(t *testing.T) {
	got, err := Segments(filepath.Join(t.TempDir(), "nope"), "mp4", time.Minute, time.Time{}, time.Now(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
