package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	l, closer, err := New(Config{Dir: dir, NoColor: true}, &console)
	require.NoError(t, err)

	l.Info("recorder started", "source", "rtsp://cam/1")
	Critical(l, "capture tool missing", "binary", "ffmpeg")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "recorder started")
	assert.Contains(t, console.String(), "level=CRITICAL")

	b, err := os.ReadFile(filepath.Join(dir, DefaultFileName))
	require.NoError(t, err)
	assert.Contains(t, string(b), "recorder started")
	assert.Contains(t, string(b), "capture tool missing")
}

func TestNewRotatesOnStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0o600))

	l, closer, err := New(Config{Dir: dir, NoColor: true}, nil)
	require.NoError(t, err)
	l.Info("fresh run")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "previous run")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 2, "previous log should be kept as a backup")
}

func TestColorHandlerPrefixesLevel(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false))
	l.Warn("low disk")
	out := buf.String()
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "low disk")
	assert.False(t, strings.Contains(out, "time="))
}

func TestCaptureWriterTruncates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "7", "ffmpeg.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("old output"), 0o600))

	w, err := Config{}.CaptureWriter(path)
	require.NoError(t, err)
	_, err = w.Write([]byte("new"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
	lvl, err = ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)
	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
