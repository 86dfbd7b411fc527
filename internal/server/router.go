package server

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/camvault/internal/capture"
	"github.com/loykin/camvault/internal/metrics"
	"github.com/loykin/camvault/internal/retention"
	"github.com/loykin/camvault/internal/source"
	"github.com/loykin/camvault/internal/store"
	"github.com/loykin/camvault/internal/supervisor"
)

// LoopState exposes the control loop snapshot.
type LoopState interface {
	Snapshot() supervisor.Snapshot
}

// RecorderState lists tracked recorders.
type RecorderState interface {
	Statuses() []capture.Status
}

// Router serves the read-only status surface of the daemon.
// Endpoints:
//
//	GET {basePath}/healthz
//	GET {basePath}/status
//	GET {basePath}/sources/:id/segments?from=RFC3339&to=RFC3339
//	GET {basePath}/metrics   (only when metrics are registered)
type Router struct {
	loop      LoopState
	recorders RecorderState
	registry  store.Registry
	extension string
	basePath  string
	logger    *slog.Logger
}

func NewRouter(loop LoopState, recorders RecorderState, registry store.Registry, extension, basePath string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		loop:      loop,
		recorders: recorders,
		registry:  registry,
		extension: extension,
		basePath:  sanitizeBase(basePath),
		logger:    logger,
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealth)
	group.GET("/status", r.handleStatus)
	group.GET("/sources/:id/segments", r.handleSegments)
	if metrics.Enabled() {
		group.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// A non-nil tlsCfg serves HTTPS.
func NewServer(addr string, r *Router, tlsCfg *tls.Config) (*http.Server, error) {
	if addr == "" {
		return nil, errors.New("empty listen address")
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		TLSConfig:         tlsCfg,
	}
	go func() {
		var err error
		if tlsCfg != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("status server stopped", "addr", addr, "error", err)
		}
	}()
	return srv, nil
}

type errorResp struct {
	Error string `json:"error"`
}

type statusResp struct {
	Loop      supervisor.Snapshot `json:"loop"`
	Recorders []capture.Status    `json:"recorders"`
}

type segmentResp struct {
	Path  string    `json:"path"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Size  int64     `json:"size"`
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"ok": true})
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, statusResp{
		Loop:      r.loop.Snapshot(),
		Recorders: r.recorders.Statuses(),
	})
}

func (r *Router) handleSegments(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid source id"})
		return
	}
	from, to, err := parseRange(c.Query("from"), c.Query("to"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	src, err := r.findSource(c, id)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			code = http.StatusNotFound
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	dir := filepath.Join(r.loop.Snapshot().Root, src.Dir())
	segs, err := retention.Segments(dir, r.extension, time.Duration(src.SegmentSeconds)*time.Second, from, to, time.Local)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	out := make([]segmentResp, 0, len(segs))
	for _, s := range segs {
		out = append(out, segmentResp{Path: s.Path, Start: s.Start, End: s.End, Size: s.Size})
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) findSource(c *gin.Context, id int64) (source.Source, error) {
	sources, err := r.registry.Sources(c.Request.Context())
	if err != nil {
		return source.Source{}, err
	}
	for _, s := range sources {
		if s.ID == id {
			return s, nil
		}
	}
	return source.Source{}, store.ErrNotFound
}
