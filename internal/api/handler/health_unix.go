//go:build linux || darwin

package handler

import (
	"sync"
	"syscall"
	"time"
)

// Process CPU time at the previous Stats call.
var (
	cpuMu       sync.Mutex
	lastCPUTime time.Duration
	lastSample  time.Time
)

// getCPUUsage returns the share of one core this process used since the
// previous call, capped at 100. The first call returns 0.
func getCPUUsage() float64 {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	used := time.Duration(ru.Utime.Nano()) + time.Duration(ru.Stime.Nano())
	now := time.Now()

	cpuMu.Lock()
	defer cpuMu.Unlock()

	prevCPU, prevSample := lastCPUTime, lastSample
	lastCPUTime, lastSample = used, now
	if prevSample.IsZero() {
		return 0
	}

	wall := now.Sub(prevSample)
	if wall <= 0 {
		return 0
	}
	pct := float64(used-prevCPU) / float64(wall) * 100
	switch {
	case pct > 100:
		return 100
	case pct < 0:
		return 0
	}
	return pct
}
