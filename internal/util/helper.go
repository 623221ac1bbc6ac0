package util

import (
	"math"
	"time"
)

// CloneSlice clones slice with cloneSize.
// This function will use src length as the clons size if cloneSize is 0.
func CloneSlice[T any](src []T, cloneSize int) []T {
	if cloneSize == 0 {
		cloneSize = len(src)
	}
	clone := make([]T, cloneSize)
	copy(clone, src)

	return clone
}

// CeilDiv returns ceil(n / d) for non-negative n and positive d.
func CeilDiv(n int, d int) int {
	if n <= 0 {
		return 0
	}

	return (n + d - 1) / d
}

// RemainingMillis returns the time left until deadline in whole milliseconds, rounded up
// and clamped to [1, MaxUint32]. It returns 0 when the deadline has already passed.
//
// A zero deadline is treated as "no deadline" and yields MaxUint32.
func RemainingMillis(deadline time.Time) uint32 {
	if deadline.IsZero() {
		return math.MaxUint32
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0
	}

	ms := (remaining + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxUint32 {
		return math.MaxUint32
	}

	return uint32(ms) //nolint:gosec
}

// DeadlineFromMillis converts a relative timeout in milliseconds into an absolute deadline.
// Non-positive timeouts fall back to def.
func DeadlineFromMillis(timeoutMillis int, def time.Duration) time.Time {
	d := time.Duration(timeoutMillis) * time.Millisecond
	if timeoutMillis <= 0 {
		d = def
	}

	return time.Now().Add(d)
}
