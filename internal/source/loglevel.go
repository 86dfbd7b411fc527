package source

import (
	"fmt"
	"strings"
)

// LogLevel is the verbosity passed to the capture tool.
type LogLevel string

const (
	LevelQuiet   LogLevel = "quiet"
	LevelPanic   LogLevel = "panic"
	LevelFatal   LogLevel = "fatal"
	LevelError   LogLevel = "error"
	LevelWarning LogLevel = "warning"
	LevelInfo    LogLevel = "info"
	LevelVerbose LogLevel = "verbose"
	LevelDebug   LogLevel = "debug"
	LevelTrace   LogLevel = "trace"
)

var levelValues = map[LogLevel]int{
	LevelQuiet:   -8,
	LevelPanic:   0,
	LevelFatal:   8,
	LevelError:   16,
	LevelWarning: 24,
	LevelInfo:    32,
	LevelVerbose: 40,
	LevelDebug:   48,
	LevelTrace:   56,
}

// Levels lists all levels from least to most verbose.
func Levels() []LogLevel {
	return []LogLevel{LevelQuiet, LevelPanic, LevelFatal, LevelError, LevelWarning, LevelInfo, LevelVerbose, LevelDebug, LevelTrace}
}

// ParseLogLevel accepts a level name (case-insensitive). Empty means error.
func ParseLogLevel(s string) (LogLevel, error) {
	l := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if l == "" {
		return LevelError, nil
	}
	if l == "warn" {
		return LevelWarning, nil
	}
	if _, ok := levelValues[l]; !ok {
		return "", fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

func (l LogLevel) String() string { return string(l) }

// Value is the numeric verbosity understood by ffmpeg's -loglevel.
func (l LogLevel) Value() int {
	if v, ok := levelValues[l]; ok {
		return v
	}
	return levelValues[LevelError]
}
