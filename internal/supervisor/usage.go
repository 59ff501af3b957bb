package supervisor

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// Usage is a resource sample of the SIPp process.
type Usage struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	Threads    int32   `json:"threads"`
	OpenFDs    int32   `json:"open_fds"`
}

// ResourceUsage samples CPU, memory and descriptor usage of the process.
// CPUPercent is averaged over the process lifetime.
func (w *Worker) ResourceUsage(ctx context.Context) (Usage, error) {
	if !w.Alive() {
		return Usage{}, ErrNotRunning
	}

	p, err := process.NewProcessWithContext(ctx, int32(w.pid))
	if err != nil {
		return Usage{}, fmt.Errorf("inspect pid %d: %w", w.pid, err)
	}

	var u Usage
	if u.CPUPercent, err = p.CPUPercentWithContext(ctx); err != nil {
		return Usage{}, fmt.Errorf("cpu of pid %d: %w", w.pid, err)
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return Usage{}, fmt.Errorf("memory of pid %d: %w", w.pid, err)
	}
	u.RSSBytes = mem.RSS

	// Thread and fd counts are best effort; not every platform has them.
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		u.Threads = n
	}
	if n, err := p.NumFDsWithContext(ctx); err == nil {
		u.OpenFDs = n
	}
	return u, nil
}
