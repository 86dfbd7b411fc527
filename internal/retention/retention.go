package retention

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/loykin/camvault/internal/history"
	"github.com/loykin/camvault/internal/metrics"
	"github.com/loykin/camvault/internal/signal"
)

// GB is the unit of the free-space threshold.
const GB = 1 << 30

// UsageFunc returns the free bytes of the filesystem holding path.
type UsageFunc func(path string) (uint64, error)

// DiskFree measures free space with gopsutil.
func DiskFree(path string) (uint64, error) {
	u, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return u.Free, nil
}

// Stopper stops every active recording.
type Stopper interface {
	StopAll()
}

// Result describes one enforcement pass.
type Result struct {
	Checked    bool  // threshold enabled and free space measured
	Satisfied  bool  // free space at or above threshold when the pass ended
	Deleted    int   // segment files removed
	FreedBytes int64 // sum of removed file sizes
	Stopped    bool  // recordings were stopped before eviction
	StopRaised bool  // space could not be reclaimed; stop signal written
}

// Engine evicts the oldest segment files until the records filesystem has
// the configured amount of free space.
type Engine struct {
	Extension string
	Usage     UsageFunc

	stopper Stopper
	signals signal.Channel
	logger  *slog.Logger
	history *history.Recorder
}

func NewEngine(ext string, stopper Stopper, signals signal.Channel, logger *slog.Logger, rec *history.Recorder) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Extension: strings.TrimPrefix(ext, "."),
		Usage:     DiskFree,
		stopper:   stopper,
		signals:   signals,
		logger:    logger,
		history:   rec,
	}
}

type candidate struct {
	path    string
	size    int64
	modTime time.Time
}

// Enforce runs one pass against root. minFreeGB <= 0 disables it.
// Recording is stopped before the first deletion so no file is removed while
// a recorder may still hold it open.
func (e *Engine) Enforce(root string, minFreeGB float64) Result {
	var res Result
	if minFreeGB <= 0 {
		return res
	}
	free, err := e.Usage(root)
	if err != nil {
		e.logger.Error("measure free space", "root", root, "error", err)
		return res
	}
	res.Checked = true
	metrics.SetDiskFree(free)
	if gb(free) >= minFreeGB {
		res.Satisfied = true
		return res
	}

	e.logger.Warn("low disk space, evicting oldest segments",
		"free", humanize.IBytes(free), "free_gb", round2(gb(free)), "min_free_gb", minFreeGB)

	files, err := e.candidates(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.logger.Warn("records directory missing, skipping eviction", "root", root)
		} else {
			e.logger.Error("list segment files", "root", root, "error", err)
		}
		return res
	}

	if len(files) > 0 {
		e.stopper.StopAll()
		res.Stopped = true
	}

	for _, f := range files {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			e.logger.Error("delete segment", "path", f.path, "error", err)
			continue
		}
		res.Deleted++
		res.FreedBytes += f.size
		metrics.AddEvicted(1, f.size)
		e.history.Emit(history.Event{Type: history.EventEvict, SourceID: sourceID(root, f.path), Detail: f.path})

		free, err = e.Usage(root)
		if err != nil {
			e.logger.Error("measure free space", "root", root, "error", err)
			continue
		}
		metrics.SetDiskFree(free)
		e.logger.Info("segment evicted", "file", filepath.Base(f.path), "free", humanize.IBytes(free))
		if gb(free) >= minFreeGB {
			res.Satisfied = true
			e.logger.Info("free space threshold reached", "deleted", res.Deleted, "freed", humanize.IBytes(uint64(res.FreedBytes)))
			return res
		}
	}

	if len(files) == 0 {
		e.logger.Warn("no segment files left to evict, free space still below threshold")
	}
	e.logger.Warn("not enough free space, recording stopped; manual restart or reconfiguration required",
		"free", humanize.IBytes(free), "min_free_gb", minFreeGB)
	if err := e.signals.Raise(signal.Stop, ""); err != nil {
		e.logger.Error("raise stop signal", "error", err)
	} else {
		res.StopRaised = true
	}
	return res
}

// candidates lists segment files under root, oldest modification first.
func (e *Engine) candidates(root string) ([]candidate, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}
	suffix := "." + e.Extension
	var out []candidate
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable subtrees are skipped; the root itself was checked above
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out = append(out, candidate{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].modTime.Equal(out[j].modTime) {
			return out[i].modTime.Before(out[j].modTime)
		}
		return out[i].path < out[j].path
	})
	return out, nil
}

// sourceID extracts the source id from <root>/<id>/<file>, 0 when unknown.
func sourceID(root, path string) int64 {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	id, _ := strconv.ParseInt(first, 10, 64)
	return id
}

func gb(b uint64) float64 { return float64(b) / GB }

func round2(f float64) float64 { return float64(int64(f*100)) / 100 }
