package circuitbreaker

import "sync"

type outcome struct {
	failed bool
	slow   bool
}

// window is a fixed-size ring buffer of the most recent call outcomes.
type window struct {
	mu       sync.Mutex
	buf      []outcome
	next     int
	size     int
	failures int
	slow     int
}

func newWindow(capacity int) *window {
	if capacity < 1 {
		capacity = 1
	}
	return &window{buf: make([]outcome, capacity)}
}

func (w *window) record(o outcome) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size == len(w.buf) {
		evicted := w.buf[w.next]
		if evicted.failed {
			w.failures--
		}
		if evicted.slow {
			w.slow--
		}
	} else {
		w.size++
	}

	w.buf[w.next] = o
	w.next = (w.next + 1) % len(w.buf)
	if o.failed {
		w.failures++
	}
	if o.slow {
		w.slow++
	}
}

func (w *window) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.buf {
		w.buf[i] = outcome{}
	}
	w.next, w.size, w.failures, w.slow = 0, 0, 0, 0
}

// rates returns the number of recorded calls and the failure and
// slow-call rates in [0,1].
func (w *window) rates() (calls int, failureRate, slowRate float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.size == 0 {
		return 0, 0, 0
	}
	n := float64(w.size)
	return w.size, float64(w.failures) / n, float64(w.slow) / n
}
