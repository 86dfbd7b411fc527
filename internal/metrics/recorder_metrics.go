package metrics

import (
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	recorderCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "camvault",
			Subsystem: "recorder",
			Name:      "cpu_percent",
			Help:      "CPU usage of the capture subprocess.",
		}, []string{"source_id"},
	)
	recorderRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "camvault",
			Subsystem: "recorder",
			Name:      "memory_rss_bytes",
			Help:      "Resident memory of the capture subprocess.",
		}, []string{"source_id"},
	)
)

// RecorderUsage is one resource sample of a capture subprocess.
type RecorderUsage struct {
	SourceID   int64   `json:"source_id"`
	PID        int32   `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	RSS        uint64  `json:"rss"`
}

// SampleRecorders reads CPU and memory of the given subprocesses
// (source id -> pid) and publishes them as gauges. Gauges of recorders that
// are no longer running are dropped.
func SampleRecorders(pids map[int64]int32) []RecorderUsage {
	out := make([]RecorderUsage, 0, len(pids))
	for id, pid := range pids {
		if pid <= 0 {
			continue
		}
		p, err := process.NewProcess(pid)
		if err != nil {
			slog.Debug("recorder sample failed", "source_id", id, "pid", pid, "error", err)
			continue
		}
		u := RecorderUsage{SourceID: id, PID: pid}
		if cpu, err := p.CPUPercent(); err == nil {
			u.CPUPercent = cpu
		}
		if mem, err := p.MemoryInfo(); err == nil && mem != nil {
			u.RSS = mem.RSS
		}
		out = append(out, u)
	}
	if regOK.Load() {
		recorderCPU.Reset()
		recorderRSS.Reset()
		for _, u := range out {
			label := strconv.FormatInt(u.SourceID, 10)
			recorderCPU.WithLabelValues(label).Set(u.CPUPercent)
			recorderRSS.WithLabelValues(label).Set(float64(u.RSS))
		}
	}
	return out
}
