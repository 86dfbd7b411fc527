// Package camvault exposes the recording daemon for embedding. The types are
// aliases of the internal ones so conversions are zero-cost.
package camvault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/camvault/internal/capture"
	"github.com/loykin/camvault/internal/config"
	"github.com/loykin/camvault/internal/history"
	historyfactory "github.com/loykin/camvault/internal/history/factory"
	"github.com/loykin/camvault/internal/metrics"
	"github.com/loykin/camvault/internal/relocation"
	"github.com/loykin/camvault/internal/retention"
	"github.com/loykin/camvault/internal/server"
	"github.com/loykin/camvault/internal/signal"
	"github.com/loykin/camvault/internal/source"
	"github.com/loykin/camvault/internal/store"
	"github.com/loykin/camvault/internal/store/factory"
	"github.com/loykin/camvault/internal/supervisor"
	ctls "github.com/loykin/camvault/internal/tls"
)

type Config = config.Config

type Source = source.Source

type Settings = store.Settings

type Store = store.Store

type RecorderStatus = capture.Status

type Snapshot = supervisor.Snapshot

type HistoryRecorder = history.Recorder

// RecorderSampleInterval is how often recorder CPU and memory are sampled
// when metrics are enabled.
const RecorderSampleInterval = 15 * time.Second

func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// OpenStore opens the registry behind dsn and makes sure its schema exists.
func OpenStore(ctx context.Context, dsn string) (Store, error) {
	st, err := factory.NewFromDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("prepare store schema: %w", err)
	}
	return st, nil
}

// OpenHistory builds the event recorder; an empty DSN disables export.
// The returned func closes the sink.
func OpenHistory(dsn string, log *slog.Logger) (*HistoryRecorder, func(), error) {
	if dsn == "" {
		return history.NewRecorder(nil, log), func() {}, nil
	}
	sink, err := historyfactory.NewSinkFromDSN(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open history sink: %w", err)
	}
	closeFn := func() {
		if c, ok := sink.(io.Closer); ok {
			_ = c.Close()
		}
	}
	return history.NewRecorder(sink, log.With("component", "history")), closeFn, nil
}

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// Daemon is one recording supervisor: the capture processes, the retention
// engine, the relocation handler and the control loop driving them.
type Daemon struct {
	cfg       *Config
	log       *slog.Logger
	store     Store
	recorders *capture.Supervisor
	loop      *supervisor.Loop
}

// NewDaemon wires a daemon on top of st. rec may be nil.
func NewDaemon(cfg *Config, st Store, rec *HistoryRecorder, log *slog.Logger) *Daemon {
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = history.NewRecorder(nil, log)
	}
	signals := signal.NewFiles(cfg.Loop.RecordsDir)
	sup := capture.New(capture.Config{
		Binary:    cfg.Capture.Binary,
		Extension: cfg.Capture.Extension,
		StopGrace: cfg.Capture.StopGrace,
		LogName:   cfg.Capture.LogName,
		Log:       cfg.Log.Logger(),
	}, cfg.Loop.RecordsDir, log.With("component", "capture"), rec)
	loop := supervisor.New(supervisor.Options{
		Registry:    st,
		Signals:     signals,
		Recorders:   sup,
		Retention:   retention.NewEngine(cfg.Capture.Extension, sup, signals, log.With("component", "retention"), rec),
		Relocation:  relocation.NewHandler(signals, sup, log.With("component", "relocation"), rec),
		DefaultRoot: cfg.Loop.RecordsDir,
		Interval:    cfg.Loop.Interval,
		Logger:      log,
	})
	return &Daemon{cfg: cfg, log: log, store: st, recorders: sup, loop: loop}
}

// Tick runs a single control loop iteration.
func (d *Daemon) Tick(ctx context.Context) error { return d.loop.Tick(ctx) }

func (d *Daemon) Snapshot() Snapshot { return d.loop.Snapshot() }

func (d *Daemon) Recorders() []RecorderStatus { return d.recorders.Statuses() }

// StopAll terminates every capture process.
func (d *Daemon) StopAll() { d.recorders.StopAll() }

// Run starts the configured HTTP surfaces and drives the control loop until
// ctx is cancelled. Every capture process is stopped on return.
func (d *Daemon) Run(ctx context.Context) error {
	var servers []*http.Server
	defer func() {
		for _, s := range servers {
			_ = s.Close()
		}
	}()
	if d.cfg.Server.Listen != "" {
		srv, err := NewHTTPServer(d.cfg.Server.Listen, "", d)
		if err != nil {
			return fmt.Errorf("start status server: %w", err)
		}
		d.log.Info("status server listening", "addr", d.cfg.Server.Listen, "tls", d.cfg.Server.TLS.Options().Enabled())
		servers = append(servers, srv)
	}
	if metrics.Enabled() {
		if d.cfg.Metrics.Listen != "" && d.cfg.Metrics.Listen != d.cfg.Server.Listen {
			servers = append(servers, ServeMetrics(d.cfg.Metrics.Listen, d.log))
		}
		go d.sampleRecorders(ctx)
	}
	return d.loop.Run(ctx)
}

func (d *Daemon) sampleRecorders(ctx context.Context) {
	t := time.NewTicker(RecorderSampleInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			metrics.SampleRecorders(d.recorders.PIDs())
		}
	}
}

// NewHTTPServer starts the read-only status API of d on addr, over HTTPS
// when [server.tls] names a certificate source.
func NewHTTPServer(addr, basePath string, d *Daemon) (*http.Server, error) {
	tlsCfg, err := ctls.Setup(d.cfg.Server.TLS.Options())
	if err != nil {
		return nil, fmt.Errorf("tls: %w", err)
	}
	router := server.NewRouter(d.loop, d.recorders, d.store, d.cfg.Capture.Extension, basePath, d.log.With("component", "server"))
	return server.NewServer(addr, router, tlsCfg)
}

// ServeMetrics exposes /metrics on addr in the background.
func ServeMetrics(addr string, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	log.Info("metrics listening", "addr", addr)
	return srv
}
