package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single log line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the maximum number of lines to buffer per instance.
	MaxBufferedLines = 100
)

// StderrHandler handles stderr output from SIPp processes.
// It buffers recent lines for start diagnostics and the exit summary, and
// logs them. It implements io.Writer so it can be used as exec.Cmd.Stderr.
type StderrHandler struct {
	instance string
	logger   *slog.Logger
	verbose  bool

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	mu     sync.Mutex

	// Bytes of an unterminated line received through Write.
	pending strings.Builder
}

// NewStderrHandler creates a new stderr handler for an instance.
func NewStderrHandler(instance string, logger *slog.Logger, verbose bool) *StderrHandler {
	return &StderrHandler{
		instance: instance,
		logger:   logger,
		verbose:  verbose,
		buffer:   make([]string, MaxBufferedLines),
	}
}

// Write splits p into lines and handles each complete one. A trailing
// partial line is kept until the next Write or Flush.
func (h *StderrHandler) Write(p []byte) (int, error) {
	h.mu.Lock()
	h.pending.Write(p)
	data := h.pending.String()
	h.pending.Reset()

	var lines []string
	for {
		i := strings.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, strings.TrimRight(data[:i], "\r"))
		data = data[i+1:]
	}
	if len(data) > MaxLineLength {
		lines = append(lines, data)
		data = ""
	}
	h.pending.WriteString(data)
	h.mu.Unlock()

	for _, line := range lines {
		h.HandleLine(line)
	}
	return len(p), nil
}

// Flush handles any buffered partial line.
func (h *StderrHandler) Flush() {
	h.mu.Lock()
	rest := h.pending.String()
	h.pending.Reset()
	h.mu.Unlock()

	if rest != "" {
		h.HandleLine(rest)
	}
}

// HandleLine processes a single line of stderr output.
func (h *StderrHandler) HandleLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.mu.Unlock()

	h.logLine(line)
}

// warnMarkers are lowercase fragments of SIPp stderr lines worth a warning:
// start failures first, then call level trouble. Everything else is debug.
var warnMarkers = []string{
	"unable to bind",
	"unable to load",
	"no such file",
	"error",
	"aborting call",
	"unexpected",
	"retransmission",
	"timeout",
	"warning",
}

// logLine logs warnings always and everything else only when verbose.
func (h *StderrHandler) logLine(line string) {
	level := classifyLine(line)
	if !h.verbose && level == slog.LevelDebug {
		return
	}
	h.logger.Log(context.Background(), level, "sipp_stderr",
		KeyInstance, h.instance,
		"line", line,
	)
}

func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)
	for _, m := range warnMarkers {
		if strings.Contains(lower, m) {
			return slog.LevelWarn
		}
	}
	return slog.LevelDebug
}

// RecentLines returns the most recent lines from the buffer.
func (h *StderrHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)

	// Read from circular buffer in order
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}

	return lines
}

// ErrorPatterns are common SIPp error patterns extracted for the exit summary.
var ErrorPatterns = []string{
	"Unable to bind",
	"Aborting call",
	"Unexpected",
	"Timeout",
	"Retransmission",
	"Connection refused",
	"Dead call",
}

// CountErrors counts occurrences of error patterns in the buffer.
func (h *StderrHandler) CountErrors() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)

	for _, line := range h.buffer {
		if line == "" {
			continue
		}
		for _, pattern := range ErrorPatterns {
			if strings.Contains(line, pattern) {
				counts[pattern]++
			}
		}
	}

	return counts
}
