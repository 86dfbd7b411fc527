package camvault

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/camvault/internal/history"
	"github.com/loykin/camvault/internal/logger"
	"github.com/loykin/camvault/internal/signal"
)

func newTestConfig(t *testing.T) (*Config, string) {
	t.Helper()
	dir := t.TempDir()
	records := filepath.Join(dir, "records")
	body := `
[store]
dsn = "sqlite://` + filepath.ToSlash(filepath.Join(dir, "camvault.db")) + `"

[capture]
binary = "` + filepath.ToSlash(filepath.Join(dir, "no-such-ffmpeg")) + `"

[loop]
interval = "20ms"
records_dir = "` + filepath.ToSlash(records) + `"
state_dir = "` + filepath.ToSlash(dir) + `"
`
	path := filepath.Join(dir, "camvault.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	return cfg, records
}

func TestOpenHistoryDisabled(t *testing.T) {
	rec, closeFn, err := OpenHistory("", logger.Discard())
	require.NoError(t, err)
	require.NotNil(t, rec)
	rec.Emit(history.Event{Type: history.EventStart})
	closeFn()
}

func TestOpenHistorySQLite(t *testing.T) {
	rec, closeFn, err := OpenHistory("sqlite://"+filepath.Join(t.TempDir(), "history.db"), logger.Discard())
	require.NoError(t, err)
	rec.Emit(history.Event{Type: history.EventStop, SourceID: 1, Detail: "graceful"})
	closeFn()

	_, _, err = OpenHistory("kafka://broker", logger.Discard())
	assert.Error(t, err)
}

func TestOpenStoreRejectsUnknownScheme(t *testing.T) {
	_, err := OpenStore(context.Background(), "mongodb://localhost/camvault")
	assert.Error(t, err)
}

func TestDaemonTickWithMissingBinary(t *testing.T) {
	cfg, records := newTestConfig(t)
	ctx := context.Background()
	st, err := OpenStore(ctx, cfg.Store.DSN)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	src := &Source{Protocol: "rtsp", Host: "10.0.0.5", Port: 554, Path: "/stream1", SegmentSeconds: 60, LogLevel: "error"}
	require.NoError(t, st.AddSource(ctx, src))

	d := NewDaemon(cfg, st, nil, logger.Discard())
	require.NoError(t, d.Tick(ctx))

	assert.DirExists(t, records)
	assert.Equal(t, records, d.Snapshot().Root)
	assert.Empty(t, d.Recorders(), "no recorder can start without the capture binary")
	assert.NoFileExists(t, filepath.Join(records, signal.Restart.FileName()))
}

func TestDaemonRunStopsOnCancel(t *testing.T) {
	cfg, records := newTestConfig(t)
	st, err := OpenStore(context.Background(), cfg.Store.DSN)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	d := NewDaemon(cfg, st, nil, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return !d.Snapshot().LastTick.IsZero() }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.DirExists(t, records)
}
