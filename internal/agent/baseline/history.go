// Package baseline tracks smoothed CPU and memory usage for the threshold
// triggers.
package baseline

import (
	"time"
)

// Sample is one metric reading.
type Sample struct {
	At    time.Time
	Value float64
}

// RollingHistory is a fixed-capacity ring of samples covering a retention
// period at a given sampling interval. The oldest sample is overwritten once
// the ring is full. It is not safe for concurrent use.
type RollingHistory struct {
	interval time.Duration
	samples  []Sample
	next     int
	count    int
}

// NewRollingHistory sizes the ring to hold retention/interval samples.
func NewRollingHistory(retention, interval time.Duration) *RollingHistory {
	capacity := 1
	if interval > 0 && retention > interval {
		capacity = int((retention + interval - 1) / interval)
	}
	return &RollingHistory{
		interval: interval,
		samples:  make([]Sample, capacity),
	}
}

// Add appends a sample.
func (h *RollingHistory) Add(at time.Time, value float64) {
	h.samples[h.next] = Sample{At: at, Value: value}
	h.next = (h.next + 1) % len(h.samples)
	if h.count < len(h.samples) {
		h.count++
	}
}

// Average returns the arithmetic mean of the samples taken within the
// trailing window ending at now. ok is false when the window is empty.
func (h *RollingHistory) Average(now time.Time, window time.Duration) (avg float64, ok bool) {
	cutoff := now.Add(-window)

	var sum float64
	var n int
	for i := 0; i < h.count; i++ {
		s := h.samples[i]
		if s.At.Before(cutoff) || s.At.After(now) {
			continue
		}
		sum += s.Value
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Len returns the number of stored samples.
func (h *RollingHistory) Len() int { return h.count }

// Capacity returns the maximum number of stored samples.
func (h *RollingHistory) Capacity() int { return len(h.samples) }
