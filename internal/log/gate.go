// Package log holds the operator-facing verbosity gate and the slog
// plumbing used for protocol tracing.
package log

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ErrConflictingVerbosity is returned when both --verbose and --quiet are set.
var ErrConflictingVerbosity = errors.New("--verbose and --quiet cannot be used together")

// Level is the operator-facing output level.
type Level int

const (
	LevelQuiet Level = iota
	LevelInfo
	LevelVerbose
)

func (l Level) String() string {
	switch l {
	case LevelQuiet:
		return "quiet"
	case LevelInfo:
		return "info"
	case LevelVerbose:
		return "verbose"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// LevelFromFlags folds the verbosity flags into a Level. Quiet is the
// default, so --quiet alone changes nothing.
func LevelFromFlags(verbose, quiet bool) (Level, error) {
	switch {
	case verbose && quiet:
		return LevelQuiet, ErrConflictingVerbosity
	case verbose:
		return LevelVerbose, nil
	default:
		return LevelQuiet, nil
	}
}

// Gate writes operator messages at or below its level. It is an immutable
// value: build it once and pass it to whatever needs to report progress.
// The zero Gate is quiet.
type Gate struct {
	level Level
	out   io.Writer
}

// NewGate returns a Gate writing to out. A nil out discards everything.
func NewGate(level Level, out io.Writer) Gate {
	if out == nil {
		out = io.Discard
	}
	return Gate{level: level, out: out}
}

// Level returns the gate's level.
func (g Gate) Level() Level {
	return g.level
}

// Infof writes a line when the level is at least LevelInfo.
func (g Gate) Infof(format string, args ...any) {
	if g.level >= LevelInfo {
		g.println("", format, args...)
	}
}

// Verbosef writes a "[VERBOSE] " line when the level is LevelVerbose.
func (g Gate) Verbosef(format string, args ...any) {
	if g.level >= LevelVerbose {
		g.println("[VERBOSE] ", format, args...)
	}
}

func (g Gate) println(prefix, format string, args ...any) {
	if g.out == nil {
		return
	}
	msg := prefix + fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	_, _ = io.WriteString(g.out, msg)
}

// Logger returns the protocol trace logger: debug records to w when the gate
// is verbose, nothing otherwise.
func (g Gate) Logger(w io.Writer) *slog.Logger {
	if g.level < LevelVerbose || w == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return NewTraceLogger(w)
}

// NewTraceLogger returns a debug-level text logger writing redacted records to w.
func NewTraceLogger(w io.Writer) *slog.Logger {
	return slog.New(NewRedactingHandler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})))
}
