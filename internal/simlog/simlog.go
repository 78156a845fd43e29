// Package simlog is the core's diagnostic/trace logger: a thin wrapper
// over the standard log package that timestamps every line with the
// simulated cycle instead of wall-clock time, since wall-clock timing is
// meaningless for a deterministic, cycle-accurate run.
package simlog

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Level controls how much a Logger emits.
type Level int

const (
	LevelSilent Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelTrace
)

// Logger prefixes every line with the current simulated cycle.
type Logger struct {
	level Level
	cycle func() uint64
	out   *log.Logger
}

// New creates a Logger writing to w, reporting level and above, and
// consulting cycleFn for the current simulated cycle on each line.
func New(w io.Writer, level Level, cycleFn func() uint64) *Logger {
	return &Logger{level: level, cycle: cycleFn, out: log.New(w, "", 0)}
}

// Default creates a Logger writing to stderr at LevelInfo.
func Default(cycleFn func() uint64) *Logger {
	return New(os.Stderr, LevelInfo, cycleFn)
}

func (l *Logger) emit(level Level, tag, format string, args ...any) {
	if l.level < level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.out.Printf("[%10d] %-5s %s", l.cycle(), tag, msg)
}

// Errorf logs at LevelError.
func (l *Logger) Errorf(format string, args ...any) { l.emit(LevelError, "ERROR", format, args...) }

// Warnf logs at LevelWarn.
func (l *Logger) Warnf(format string, args ...any) { l.emit(LevelWarn, "WARN", format, args...) }

// Infof logs at LevelInfo.
func (l *Logger) Infof(format string, args ...any) { l.emit(LevelInfo, "INFO", format, args...) }

// Tracef logs at LevelTrace — per-cycle pipeline stage detail, off by
// default since it dominates output volume on any nontrivial run.
func (l *Logger) Tracef(format string, args ...any) { l.emit(LevelTrace, "TRACE", format, args...) }
