// Package logging builds the slog loggers used across go-sipp-swarm and
// captures the stderr of SIPp processes.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Attribute keys shared by every component that logs about an instance.
const (
	KeyInstance = "instance"
	KeyID       = "id"
	KeyPID      = "pid"
)

// Options selects the handler built by New.
type Options struct {
	// Format is "json" (default) or "text".
	Format string

	// Level is debug, info, warn or error. Unknown values mean info.
	Level string

	// Verbose forces debug level and adds source locations.
	Verbose bool

	// Quiet discards everything. The dashboard sets it while it owns the
	// terminal.
	Quiet bool

	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// New creates a logger from opts.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	if opts.Quiet {
		w = io.Discard
	}

	level := parseLevel(opts.Level)
	if opts.Verbose {
		level = slog.LevelDebug
	}
	ho := &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.Verbose,
	}

	if strings.EqualFold(opts.Format, "text") {
		return slog.New(slog.NewTextHandler(w, ho))
	}
	return slog.New(slog.NewJSONHandler(w, ho))
}

// NewLoggerWithWriter creates a logger writing to w, mostly for tests.
// A nil w discards output.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	if w == nil {
		w = io.Discard
	}
	return New(Options{Format: format, Level: level, Writer: w})
}

// parseLevel accepts slog's level names in any case plus "warning".
func parseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// ForInstance scopes logger to one instance. id may be empty.
func ForInstance(logger *slog.Logger, name, id string) *slog.Logger {
	if id == "" {
		return logger.With(KeyInstance, name)
	}
	return logger.With(KeyInstance, name, KeyID, id)
}

// WithPID adds the process id of a running SIPp.
func WithPID(logger *slog.Logger, pid int) *slog.Logger {
	return logger.With(KeyPID, pid)
}

// SetDefault installs logger as the slog default.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
