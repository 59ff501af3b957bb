package parser

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func appendFile(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(data); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestTailReader_ReadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.csv")
	appendFile(t, path, "header\nline1\nline2\n")

	tr, err := OpenTail(path)
	if err != nil {
		t.Fatalf("OpenTail() error = %v", err)
	}
	defer tr.Close()

	line, ok, err := tr.ReadLine()
	if err != nil || !ok || line != "header" {
		t.Fatalf("ReadLine() = %q, %v, %v; want header", line, ok, err)
	}

	lines, err := tr.ReadLines(10)
	if err != nil {
		t.Fatalf("ReadLines() error = %v", err)
	}
	if want := []string{"line1", "line2"}; !reflect.DeepEqual(lines, want) {
		t.Errorf("ReadLines() = %v, want %v", lines, want)
	}

	// Nothing new yet.
	lines, err = tr.ReadLines(10)
	if err != nil || len(lines) != 0 {
		t.Errorf("ReadLines() at EOF = %v, %v; want none", lines, err)
	}

	appendFile(t, path, "line3\n")
	lines, _ = tr.ReadLines(10)
	if want := []string{"line3"}; !reflect.DeepEqual(lines, want) {
		t.Errorf("ReadLines() after append = %v, want %v", lines, want)
	}

	_, linesRead, healthy := tr.Stats()
	if linesRead != 4 || !healthy {
		t.Errorf("Stats() lines=%d healthy=%v; want 4, true", linesRead, healthy)
	}
}

func TestTailReader_BatchLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.csv")
	appendFile(t, path, "a\nb\nc\nd\ne\n")

	tr, err := OpenTail(path)
	if err != nil {
		t.Fatalf("OpenTail() error = %v", err)
	}
	defer tr.Close()

	first, _ := tr.ReadLines(3)
	second, _ := tr.ReadLines(3)
	if !reflect.DeepEqual(first, []string{"a", "b", "c"}) {
		t.Errorf("first batch = %v", first)
	}
	if !reflect.DeepEqual(second, []string{"d", "e"}) {
		t.Errorf("second batch = %v", second)
	}
}

func TestTailReader_PartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.csv")
	appendFile(t, path, "complete\npart")

	tr, err := OpenTail(path)
	if err != nil {
		t.Fatalf("OpenTail() error = %v", err)
	}
	defer tr.Close()

	lines, _ := tr.ReadLines(10)
	if !reflect.DeepEqual(lines, []string{"complete"}) {
		t.Fatalf("ReadLines() = %v, want [complete]", lines)
	}

	appendFile(t, path, "ial\r\nnext\n")
	lines, _ = tr.ReadLines(10)
	if want := []string{"partial", "next"}; !reflect.DeepEqual(lines, want) {
		t.Errorf("ReadLines() = %v, want %v", lines, want)
	}
}

func TestTailReader_Close(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.csv")
	appendFile(t, path, "x\n")

	tr, err := OpenTail(path)
	if err != nil {
		t.Fatalf("OpenTail() error = %v", err)
	}
	if tr.Path() != path {
		t.Errorf("Path() = %q, want %q", tr.Path(), path)
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := tr.ReadLines(1); !errors.Is(err, ErrReaderClosed) {
		t.Errorf("ReadLines() after Close error = %v, want ErrReaderClosed", err)
	}
}

func TestOpenTail_Missing(t *testing.T) {
	if _, err := OpenTail(filepath.Join(t.TempDir(), "nope.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("OpenTail() error = %v, want ErrNotExist", err)
	}
}
