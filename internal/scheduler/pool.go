package scheduler

import "runtime"

// PoolSize returns max(1, max(r1, r2) - 1) for two core-count readings.
// The readings can disagree between OS APIs, so the larger one is trusted
// and one core is left free.
func PoolSize(r1, r2 int) int {
	return max(1, max(r1, r2)-1)
}

// DefaultPoolSize is PoolSize over runtime.NumCPU and GOMAXPROCS, but never
// fewer than four workers.
func DefaultPoolSize() int {
	return max(4, PoolSize(runtime.NumCPU(), runtime.GOMAXPROCS(0)))
}
