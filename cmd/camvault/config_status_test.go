package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/camvault/internal/config"
)

func TestConfigInitWritesLoadableFile(t *testing.T) {
	env := newTestEnv(t)
	dst := filepath.Join(env.dir, "generated.toml")

	out, err := run(t, env, "config", "init", "--state-dir", env.dir, "--output", dst)
	require.NoError(t, err)
	assert.Contains(t, out, "config written")

	cfg, err := config.Load(dst)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.dir, "records"), filepath.Clean(cfg.Loop.RecordsDir))

	_, err = run(t, env, "config", "init", "--state-dir", env.dir, "--output", dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = run(t, env, "config", "init", "--state-dir", env.dir, "--output", dst, "--force")
	require.NoError(t, err)
}

func TestConfigInitStdoutAndBadProfile(t *testing.T) {
	env := newTestEnv(t)
	out, err := run(t, env, "config", "init", "--profile", "postgres", "--output", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "postgres://")

	_, err = run(t, env, "config", "init", "--profile", "oracle", "--output", "-")
	assert.Error(t, err)
	_, statErr := os.Stat("camvault.toml")
	assert.True(t, os.IsNotExist(statErr))
}

func TestStatusCommand(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"loop": {"records_dir": "/srv/records", "settings": {"min_free_gb": 50, "relocation": "move"}},
			"recorders": [{"source_id": 3, "source": "rtsp://10.0.0.5:554/s1", "pid": 4242, "running": true}]
		}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	env := newTestEnv(t)
	out, err := run(t, env, "status", "--api-url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "/srv/records")
	assert.Contains(t, out, "4242")
	assert.Contains(t, out, "rtsp://10.0.0.5:554/s1")

	srv.Close()
	_, err = run(t, env, "status", "--api-url", srv.URL)
	assert.Error(t, err)
}
