package filter

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Window is a fixed-capacity FIFO of recent temperature values. Pushing onto
// a full window evicts the oldest value.
type Window struct {
	buf   []float64
	head  int // index of the oldest value
	count int
}

// NewWindow returns an empty window holding at most capacity values.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}

	return &Window{buf: make([]float64, capacity)}
}

func (w *Window) Len() int {
	return w.count
}

func (w *Window) Cap() int {
	return len(w.buf)
}

// Push appends v, evicting the oldest value when the window is full.
func (w *Window) Push(v float64) {
	if w.count < len(w.buf) {
		w.buf[(w.head+w.count)%len(w.buf)] = v
		w.count++
		return
	}

	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
}

// Values appends the window contents, oldest first, to dst.
func (w *Window) Values(dst []float64) []float64 {
	for i := 0; i < w.count; i++ {
		dst = append(dst, w.buf[(w.head+i)%len(w.buf)])
	}

	return dst
}

// MeanStdDev returns the mean and population standard deviation of the
// window. Both are NaN for an empty window.
func (w *Window) MeanStdDev(scratch []float64) (mean, stddev float64) {
	if w.count == 0 {
		return math.NaN(), math.NaN()
	}

	values := w.Values(scratch[:0])
	mean, variance := stat.PopMeanVariance(values, nil)

	return mean, math.Sqrt(variance)
}
