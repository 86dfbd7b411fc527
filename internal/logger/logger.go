package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
	DefaultFileName   = "camvault.log"
)

// LevelCritical sits above error; used when a recorder cannot run at all.
const LevelCritical = slog.LevelError + 4

// Config describes the daemon's own log destinations.
// Rotation parameters follow lumberjack semantics. The file sink is rotated
// once when the daemon starts so every run begins a fresh file.
type Config struct {
	Dir        string // base directory for the daemon log; empty disables the file sink
	File       string // file name inside Dir (default camvault.log)
	Level      string // debug, info, warn, error
	Format     string // text (default) or json for the file sink
	MaxSizeMB  int    // megabytes before rotation (default 10)
	MaxBackups int    // number of backups to keep (default 3)
	MaxAgeDays int    // days to keep (default 7)
	Compress   bool   // Gzip rotated files
	NoColor    bool   // plain console output
}

// New builds the daemon logger writing to console and, when Dir is set, to a
// rotating file. The returned closer flushes and closes the file sink.
func New(cfg Config, console io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevel}

	handlers := make([]slog.Handler, 0, 2)
	if console != nil {
		if cfg.NoColor {
			handlers = append(handlers, slog.NewTextHandler(console, opts))
		} else {
			handlers = append(handlers, NewColorTextHandler(console, opts, true))
		}
	}

	var closer io.Closer = nopCloser{}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		name := cfg.File
		if name == "" {
			name = DefaultFileName
		}
		w := cfg.rotating(filepath.Join(cfg.Dir, name))
		if err := w.Rotate(); err != nil {
			return nil, nil, fmt.Errorf("rotate daemon log: %w", err)
		}
		if strings.EqualFold(cfg.Format, "json") {
			handlers = append(handlers, slog.NewJSONHandler(w, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(w, opts))
		}
		closer = w
	}
	return slog.New(NewFanoutHandler(handlers...)), closer, nil
}

// CaptureWriter opens the log sink for one capture subprocess at path.
// Any previous content is truncated; size-based rotation still applies while
// the recorder runs.
func (c Config) CaptureWriter(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	if err := os.Truncate(path, 0); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("truncate %s: %w", path, err)
	}
	return c.rotating(path), nil
}

func (c Config) rotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// ParseLevel maps a config string to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "critical":
		return LevelCritical, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Critical logs at LevelCritical.
func Critical(l *slog.Logger, msg string, args ...any) {
	l.Log(context.Background(), LevelCritical, msg, args...)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelCritical {
			a.Value = slog.StringValue("CRITICAL")
		}
	}
	return a
}

func levelName(l slog.Level) string {
	if l >= LevelCritical {
		return "CRITICAL"
	}
	return l.String()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
