package logging

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func newTestHandler(verbose bool) (*StderrHandler, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewStderrHandler("uac-1", NewLoggerWithWriter(&buf, "text", "debug"), verbose), &buf
}

func TestStderrHandler_Write(t *testing.T) {
	h, buf := newTestHandler(true)

	// Lines may be split across writes.
	if _, err := h.Write([]byte("first line\nsec")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := h.RecentLines(10); len(got) != 1 || got[0] != "first line" {
		t.Fatalf("RecentLines() = %v, want [first line]", got)
	}

	n, err := h.Write([]byte("ond line\r\n\nthird"))
	if err != nil || n != len("ond line\r\n\nthird") {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	h.Flush()

	got := h.RecentLines(10)
	want := []string{"first line", "second line", "third"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("RecentLines() = %q, want %q", got, want)
	}
	if !strings.Contains(buf.String(), "sipp_stderr") || !strings.Contains(buf.String(), "instance=uac-1") {
		t.Errorf("expected scoped sipp_stderr entries, got %q", buf.String())
	}
}

func TestStderrHandler_WriteOverlongPartial(t *testing.T) {
	h, _ := newTestHandler(false)

	h.Write([]byte(strings.Repeat("x", MaxLineLength+10)))
	lines := h.RecentLines(1)
	if len(lines) != 1 || !strings.HasSuffix(lines[0], "...(truncated)") {
		t.Fatalf("overlong unterminated output should be handled and truncated, got %d lines", len(lines))
	}
}

func TestStderrHandler_RecentLines(t *testing.T) {
	tests := []struct {
		name    string
		written int
		ask     int
		want    []string
	}{
		{"empty", 0, 10, nil},
		{"newest last", 5, 3, []string{"line 2", "line 3", "line 4"}},
		{"fewer than asked", 2, 10, []string{"line 0", "line 1"}},
		{"wraps", MaxBufferedLines + 5, 2, []string{
			fmt.Sprintf("line %d", MaxBufferedLines+3),
			fmt.Sprintf("line %d", MaxBufferedLines+4),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(false)
			for i := 0; i < tt.written; i++ {
				h.HandleLine(fmt.Sprintf("line %d", i))
			}
			got := h.RecentLines(tt.ask)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("RecentLines(%d) = %q, want %q", tt.ask, got, tt.want)
			}
		})
	}

	h, _ := newTestHandler(false)
	for i := 0; i < MaxBufferedLines*2; i++ {
		h.HandleLine("x")
	}
	if n := len(h.RecentLines(MaxBufferedLines * 2)); n != MaxBufferedLines {
		t.Errorf("buffer holds %d lines, want %d", n, MaxBufferedLines)
	}
}

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line string
		want slog.Level
	}{
		{"Unable to bind UDP socket, errno = 98", slog.LevelWarn},
		{"Unable to load or parse 'foo.xml' xml scenario file", slog.LevelWarn},
		{"Error: no such file or directory", slog.LevelWarn},
		{"Aborting call on unexpected message for Call-Id '1-2@x'", slog.LevelWarn},
		{"Warning: retransmission limit reached", slog.LevelWarn},
		{"Call timeout on recv", slog.LevelWarn},
		{"Resolving remote host '10.0.0.2'... Done.", slog.LevelDebug},
		{"", slog.LevelDebug},
	}
	for _, tt := range tests {
		if got := classifyLine(tt.line); got != tt.want {
			t.Errorf("classifyLine(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestStderrHandler_Verbosity(t *testing.T) {
	tests := []struct {
		verbose bool
		line    string
		logged  bool
	}{
		{true, "Resolving remote host", true},
		{false, "Resolving remote host", false},
		{false, "Unable to bind UDP socket", true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("verbose=%v/%s", tt.verbose, tt.line), func(t *testing.T) {
			h, buf := newTestHandler(tt.verbose)
			h.HandleLine(tt.line)
			if got := strings.Contains(buf.String(), tt.line); got != tt.logged {
				t.Errorf("logged = %v, want %v", got, tt.logged)
			}
			// Buffered for diagnostics either way.
			if len(h.RecentLines(1)) != 1 {
				t.Error("line not buffered")
			}
		})
	}
}

func TestStderrHandler_CountErrors(t *testing.T) {
	h, _ := newTestHandler(false)
	if n := len(h.CountErrors()); n != 0 {
		t.Fatalf("empty handler counted %d patterns", n)
	}

	for _, line := range []string{
		"Aborting call on unexpected message",
		"Aborting call on unexpected message again",
		"Unable to bind UDP socket",
		"normal line",
		"Timeout on call",
	} {
		h.HandleLine(line)
	}

	counts := h.CountErrors()
	for pattern, want := range map[string]int{"Aborting call": 2, "Unable to bind": 1, "Timeout": 1} {
		if counts[pattern] != want {
			t.Errorf("counts[%q] = %d, want %d", pattern, counts[pattern], want)
		}
	}
}

func TestStderrHandler_Concurrent(t *testing.T) {
	h, _ := newTestHandler(false)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.Write([]byte("Timeout on call\n"))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = h.RecentLines(10)
				_ = h.CountErrors()
			}
		}()
	}
	wg.Wait()

	if got := h.CountErrors()["Timeout"]; got != MaxBufferedLines {
		t.Errorf("Timeout count = %d, want a full buffer of %d", got, MaxBufferedLines)
	}
}
