package logger

import (
	"context"
	"io"
	"log/slog"
)

// ColorTextHandler wraps slog.TextHandler to add ANSI color codes for different log levels
type ColorTextHandler struct {
	*slog.TextHandler
	showTime bool
}

// NewColorTextHandler creates a new ColorTextHandler
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, showTime bool) *ColorTextHandler {
	o := slog.HandlerOptions{}
	if opts != nil {
		o = *opts
	}
	next := o.ReplaceAttr
	o.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		// level is already part of the message
		if len(groups) == 0 && a.Key == slog.LevelKey {
			return slog.Attr{}
		}
		if !showTime && len(groups) == 0 && a.Key == slog.TimeKey {
			return slog.Attr{}
		}
		if next != nil {
			return next(groups, a)
		}
		return a
	}
	return &ColorTextHandler{
		TextHandler: slog.NewTextHandler(w, &o),
		showTime:    showTime,
	}
}

// Handle implements slog.Handler
func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	// Add color based on level
	var colorCode string
	switch {
	case r.Level >= LevelCritical:
		colorCode = "\033[35m" // Magenta
	case r.Level >= slog.LevelError:
		colorCode = "\033[31m" // Red
	case r.Level >= slog.LevelWarn:
		colorCode = "\033[33m" // Yellow
	case r.Level >= slog.LevelInfo:
		colorCode = "\033[32m" // Green
	default:
		colorCode = "\033[36m" // Cyan
	}

	r.Message = colorCode + levelName(r.Level) + "\033[0m  " + r.Message

	return h.TextHandler.Handle(ctx, r)
}

func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ColorTextHandler{TextHandler: h.TextHandler.WithAttrs(attrs).(*slog.TextHandler), showTime: h.showTime}
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	return &ColorTextHandler{TextHandler: h.TextHandler.WithGroup(name).(*slog.TextHandler), showTime: h.showTime}
}
