// Package speed measures download throughput.
package speed

import (
	"context"
	"time"
)

const mebibyte = 1024 * 1024

// Result is one throughput measurement.
type Result struct {
	MBps    float64
	Bytes   int64
	Elapsed time.Duration
	Source  string
}

// Meter performs one throughput measurement.
type Meter interface {
	Measure(ctx context.Context) (Result, error)
}

// MBps converts bytes transferred over elapsed into MB/s (1 MB = 1024*1024 bytes).
func MBps(bytes int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(bytes) / elapsed.Seconds() / mebibyte
}
