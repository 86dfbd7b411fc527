package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	recorderStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camvault",
			Subsystem: "recorder",
			Name:      "starts_total",
			Help:      "Number of successful capture subprocess launches.",
		}, []string{"source"},
	)
	recorderStartFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camvault",
			Subsystem: "recorder",
			Name:      "start_failures_total",
			Help:      "Number of capture launches that failed.",
		}, []string{"source"},
	)
	recorderStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camvault",
			Subsystem: "recorder",
			Name:      "stops_total",
			Help:      "Number of recorder stops by path taken (graceful, killed, exited).",
		}, []string{"source", "mode"},
	)
	recordersRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "camvault",
			Name:      "recorders_running",
			Help:      "Capture subprocesses currently tracked.",
		},
	)
	evictedFiles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "camvault",
			Subsystem: "retention",
			Name:      "evicted_files_total",
			Help:      "Segment files deleted to reclaim space.",
		},
	)
	evictedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "camvault",
			Subsystem: "retention",
			Name:      "evicted_bytes_total",
			Help:      "Bytes of segment files deleted to reclaim space.",
		},
	)
	diskFreeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "camvault",
			Subsystem: "retention",
			Name:      "disk_free_bytes",
			Help:      "Free bytes on the records root filesystem at the last check.",
		},
	)
	relocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camvault",
			Subsystem: "relocation",
			Name:      "total",
			Help:      "Relocation signals handled by kind and result.",
		}, []string{"kind", "result"},
	)
	ticks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "camvault",
			Subsystem: "loop",
			Name:      "ticks_total",
			Help:      "Control loop ticks executed.",
		},
	)
	tickErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camvault",
			Subsystem: "loop",
			Name:      "tick_errors_total",
			Help:      "Errors isolated inside a tick, by step.",
		}, []string{"step"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		recorderStarts, recorderStartFailures, recorderStops, recordersRunning,
		evictedFiles, evictedBytes, diskFreeBytes, relocations, ticks, tickErrors,
		recorderCPU, recorderRSS,
	}
}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	for _, c := range collectors() {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Enabled reports whether Register has succeeded.
func Enabled() bool { return regOK.Load() }

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(source string) {
	if regOK.Load() {
		recorderStarts.WithLabelValues(source).Inc()
	}
}

func IncStartFailure(source string) {
	if regOK.Load() {
		recorderStartFailures.WithLabelValues(source).Inc()
	}
}

func IncStop(source, mode string) {
	if regOK.Load() {
		recorderStops.WithLabelValues(source, mode).Inc()
	}
}

func SetRunning(n int) {
	if regOK.Load() {
		recordersRunning.Set(float64(n))
	}
}

func AddEvicted(files int, bytes int64) {
	if regOK.Load() {
		evictedFiles.Add(float64(files))
		evictedBytes.Add(float64(bytes))
	}
}

func SetDiskFree(bytes uint64) {
	if regOK.Load() {
		diskFreeBytes.Set(float64(bytes))
	}
}

func IncRelocation(kind, result string) {
	if regOK.Load() {
		relocations.WithLabelValues(kind, result).Inc()
	}
}

func IncTick() {
	if regOK.Load() {
		ticks.Inc()
	}
}

func IncTickError(step string) {
	if regOK.Load() {
		tickErrors.WithLabelValues(step).Inc()
	}
}
