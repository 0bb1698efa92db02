// Package window provides a fixed-capacity sliding window of price samples
// with an O(1) running sum. It backs the strategy's moving-average and
// volatility computations; a full standard-deviation pass is O(capacity).
package window

import "math"

// Window is a circular buffer of the most recent float64 samples.
// Designed for single-goroutine usage; no locks needed.
type Window struct {
	buf   []float64
	size  int64
	count int64 // total pushes, monotonically increasing
	sum   float64
}

// New creates a window with the given capacity. Minimum capacity is 1.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		buf:  make([]float64, capacity),
		size: int64(capacity),
	}
}

// Push records v as the newest sample, evicting the oldest once the window
// has filled. The running sum is maintained in O(1).
func (w *Window) Push(v float64) {
	slot := w.count % w.size
	if w.count >= w.size {
		w.sum -= w.buf[slot]
	}
	w.buf[slot] = v
	w.sum += v
	w.count++
}

// Head returns the oldest sample currently in the window. Before the window
// has ever filled it returns the first recorded sample. Zero before any push.
func (w *Window) Head() float64 {
	if w.count == 0 {
		return 0
	}
	if w.count <= w.size {
		return w.buf[0]
	}
	return w.buf[w.count%w.size]
}

// LastN returns the sample recorded n pushes ago; LastN(1) is the newest
// sample. For n >= capacity (or n beyond the recorded history) it returns
// Head().
func (w *Window) LastN(n int) float64 {
	if n < 1 {
		n = 1
	}
	if int64(n) >= w.size || int64(n) > w.count {
		return w.Head()
	}
	return w.buf[(w.count-int64(n))%w.size]
}

// IsFull is true exactly when the total push count is a positive multiple of
// capacity: it fires once per full cycle, not "has capacity been reached".
func (w *Window) IsFull() bool {
	return w.count > 0 && w.count%w.size == 0
}

// IsAtMultipleOf is true when the push count is a positive multiple of m.
// Used to gate periodic momentum recomputation.
func (w *Window) IsAtMultipleOf(m int) bool {
	return m > 0 && w.count > 0 && w.count%int64(m) == 0
}

// Len returns the number of samples currently held (at most capacity).
func (w *Window) Len() int {
	if w.count < w.size {
		return int(w.count)
	}
	return int(w.size)
}

// Count returns the total number of pushes.
func (w *Window) Count() int64 {
	return w.count
}

// Sum returns the running sum over the held samples.
func (w *Window) Sum() float64 {
	return w.sum
}

// Mean returns the mean over the held samples. Zero before any push.
func (w *Window) Mean() float64 {
	n := w.Len()
	if n == 0 {
		return 0
	}
	return w.sum / float64(n)
}

// Std returns the population standard deviation over the held samples.
// During warm-up (fewer pushes than capacity) both mean and variance divide
// by the actual sample count so unfilled slots never bias the result.
func (w *Window) Std() float64 {
	n := w.Len()
	if n == 0 {
		return 0
	}
	mean := w.sum / float64(n)
	var ss float64
	for i := 0; i < n; i++ {
		d := w.buf[i] - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n))
}
