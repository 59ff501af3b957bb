package supervisor

import "github.com/randomizedcoder/go-sipp-swarm/internal/parser"

// DefaultWindowSize is the number of recent snapshots a worker retains.
const DefaultWindowSize = 10

// snapshotWindow is a fixed capacity ring of the most recent snapshots.
// It is not safe for concurrent use; the worker guards it with its lock.
type snapshotWindow struct {
	buf   []*parser.Snapshot
	next  int
	count int
}

func newSnapshotWindow(capacity int) *snapshotWindow {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &snapshotWindow{buf: make([]*parser.Snapshot, capacity)}
}

// add appends s, evicting the oldest entry when full.
func (w *snapshotWindow) add(s *parser.Snapshot) {
	w.buf[w.next] = s
	w.next = (w.next + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

// latest returns the newest snapshot or nil.
func (w *snapshotWindow) latest() *parser.Snapshot {
	if w.count == 0 {
		return nil
	}
	return w.buf[(w.next-1+len(w.buf))%len(w.buf)]
}

// items returns the retained snapshots oldest first.
func (w *snapshotWindow) items() []*parser.Snapshot {
	out := make([]*parser.Snapshot, 0, w.count)
	start := (w.next - w.count + len(w.buf)) % len(w.buf)
	for i := 0; i < w.count; i++ {
		out = append(out, w.buf[(start+i)%len(w.buf)])
	}
	return out
}

func (w *snapshotWindow) len() int {
	return w.count
}
