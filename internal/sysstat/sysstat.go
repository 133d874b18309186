// Package sysstat samples CPU and memory usage of a running process on an
// interval, the way Command.stats is populated per spec.md §4.2 point 2.
package sysstat

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Sample is one point-in-time reading of a process's resource usage.
type Sample struct {
	CPUPercent  float64
	MemoryBytes uint64
}

// Collect samples pid every interval and invokes cb with each Sample, until
// ctx is cancelled or the process can no longer be observed (exited, access
// denied, zombie). It never returns an error: sampling is explicitly
// best-effort per spec.md §4.2 ("Best-effort; never fatal").
func Collect(ctx context.Context, pid int, interval time.Duration, cb func(Sample)) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cpuPercent, err := proc.CPUPercent()
		if err != nil {
			return
		}
		memInfo, err := proc.MemoryInfo()
		if err != nil {
			return
		}

		cb(Sample{CPUPercent: cpuPercent, MemoryBytes: memInfo.RSS})
	}
}
