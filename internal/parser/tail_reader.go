package parser

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrReaderClosed is returned by TailReader after Close.
var ErrReaderClosed = errors.New("tail reader closed")

// TailReader reads complete lines from a file that another process keeps
// appending to. Reads never block waiting for more data: at end of file
// the call returns what it has and the next call resumes where it stopped.
// A trailing line without a newline is held back until it is completed.
type TailReader struct {
	path    string
	file    *os.File
	reader  *bufio.Reader
	partial strings.Builder

	mu     sync.Mutex
	closed atomic.Bool

	bytesRead atomic.Int64
	linesRead atomic.Int64
}

// OpenTail opens path for tailing from the beginning.
func OpenTail(path string) (*TailReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewTailReader(f), nil
}

// NewTailReader wraps an already open file.
func NewTailReader(file *os.File) *TailReader {
	return &TailReader{
		path:   file.Name(),
		file:   file,
		reader: bufio.NewReaderSize(file, 64*1024),
	}
}

// ReadLine returns the next complete line. ok is false when no complete
// line is available yet.
func (t *TailReader) ReadLine() (line string, ok bool, err error) {
	lines, err := t.ReadLines(1)
	if len(lines) == 0 {
		return "", false, err
	}
	return lines[0], true, err
}

// ReadLines returns up to max complete lines without the line terminator.
// End of file is not an error.
func (t *TailReader) ReadLines(max int) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Load() {
		return nil, ErrReaderClosed
	}

	var lines []string
	for len(lines) < max {
		chunk, err := t.reader.ReadString('\n')
		t.bytesRead.Add(int64(len(chunk)))

		if err != nil {
			// Keep the unterminated tail for the next call.
			t.partial.WriteString(chunk)
			if errors.Is(err, io.EOF) {
				return lines, nil
			}
			return lines, err
		}

		if t.partial.Len() > 0 {
			t.partial.WriteString(chunk)
			chunk = t.partial.String()
			t.partial.Reset()
		}

		lines = append(lines, strings.TrimRight(chunk, "\r\n"))
		t.linesRead.Add(1)
	}
	return lines, nil
}

// Path returns the path of the tailed file.
func (t *TailReader) Path() string {
	return t.path
}

// Close closes the file. It is safe to call more than once.
func (t *TailReader) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}

// Stats returns (bytesRead, linesRead, healthy).
func (t *TailReader) Stats() (bytesRead int64, linesRead int64, healthy bool) {
	return t.bytesRead.Load(),
		t.linesRead.Load(),
		!t.closed.Load()
}
