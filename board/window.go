package board

// Window is a fixed-capacity FIFO of the most recent values on one axis.
// It is not safe for concurrent use; Board guards it with its own lock.
type Window struct {
	data  []float64
	head  int
	count int
}

// NewWindow creates a Window holding at most size values. size < 1 is treated as 1.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{data: make([]float64, size)}
}

// Push appends v, evicting the oldest value when full.
func (w *Window) Push(v float64) {
	w.data[w.head] = v
	w.head = (w.head + 1) % len(w.data)
	if w.count < len(w.data) {
		w.count++
	}
}

// Len returns the number of values held.
func (w *Window) Len() int { return w.count }

// Mean returns the arithmetic mean of the held values, or 0 when empty.
// Callers must treat an empty window as "no signal", not as centred.
func (w *Window) Mean() float64 {
	if w.count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < w.count; i++ {
		sum += w.data[i]
	}
	return sum / float64(w.count)
}
