package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/camvault/internal/capture"
	"github.com/loykin/camvault/internal/logger"
	"github.com/loykin/camvault/internal/source"
	"github.com/loykin/camvault/internal/store"
	"github.com/loykin/camvault/internal/supervisor"
)

type fakeLoop struct{ snap supervisor.Snapshot }

func (f fakeLoop) Snapshot() supervisor.Snapshot { return f.snap }

type fakeRecorders struct{ st []capture.Status }

func (f fakeRecorders) Statuses() []capture.Status { return f.st }

func setupRouter(t *testing.T, root string) (http.Handler, *store.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := store.NewMemory()
	loop := fakeLoop{snap: supervisor.Snapshot{Root: root, Settings: store.Settings{RecordsDir: root, MinFreeGB: 10}}}
	recs := fakeRecorders{st: []capture.Status{{SourceID: 1, Source: "rtsp://admin@cam:554/s", PID: 42, Running: true}}}
	r := NewRouter(loop, recs, reg, "mp4", "/api", logger.Discard())
	return r.Handler(), reg
}

func doReq(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h, _ := setupRouter(t, t.TempDir())
	rec := doReq(t, h, "/api/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatus(t *testing.T) {
	root := t.TempDir()
	h, _ := setupRouter(t, root)
	rec := doReq(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var got statusResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, root, got.Loop.Root)
	assert.Equal(t, 10.0, got.Loop.Settings.MinFreeGB)
	require.Len(t, got.Recorders, 1)
	assert.Equal(t, 42, got.Recorders[0].PID)
}

func TestSegments(t *testing.T) {
	root := t.TempDir()
	h, reg := setupRouter(t, root)
	src := source.Source{Protocol: "rtsp", Host: "cam", Port: 554, Path: "/s", SegmentSeconds: 300, LogLevel: source.LevelError}
	require.NoError(t, reg.AddSource(context.Background(), &src))

	dir := filepath.Join(root, src.Dir())
	require.NoError(t, os.MkdirAll(dir, 0o750))
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	require.NoError(t, os.WriteFile(filepath.Join(dir, start.Format(capture.SegmentLayout)+".mp4"), []byte("x"), 0o600))

	from := start.Add(-time.Minute).Format(time.RFC3339)
	to := start.Add(time.Minute).Format(time.RFC3339)
	rec := doReq(t, h, "/api/sources/"+src.Dir()+"/segments?from="+url.QueryEscape(from)+"&to="+url.QueryEscape(to))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got []segmentResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.True(t, got[0].Start.Equal(start))
}

func TestSegmentsErrors(t *testing.T) {
	h, _ := setupRouter(t, t.TempDir())
	assert.Equal(t, http.StatusBadRequest, doReq(t, h, "/api/sources/abc/segments").Code)
	assert.Equal(t, http.StatusBadRequest, doReq(t, h, "/api/sources/1/segments?from=yesterday").Code)
	assert.Equal(t, http.StatusNotFound, doReq(t, h, "/api/sources/99/segments").Code)
}

func TestSanitizeBase(t *testing.T) {
	assert.Equal(t, "", sanitizeBase("/"))
	assert.Equal(t, "/abc", sanitizeBase("abc/"))
}

func TestParseRange(t *testing.T) {
	_, _, err := parseRange("2024-05-02T00:00:00Z", "2024-05-01T00:00:00Z")
	assert.Error(t, err)
	from, to, err := parseRange("", "2024-05-02T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, to.Sub(from))
}
