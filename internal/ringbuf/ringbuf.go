// Package ringbuf provides a fixed-capacity circular queue of float64 values.
//
// Enqueue on a full queue evicts and returns the oldest value, which lets
// windowed indicators keep running sums in O(1). The queue is not safe for
// concurrent use; every indicator context owns its own queue.
package ringbuf

import (
	"errors"
	"math"
)

// ErrInvalidArgument is returned by New for a capacity below one.
var ErrInvalidArgument = errors.New("ringbuf: capacity must be >= 1")

// Queue is a circular buffer over float64 values.
type Queue struct {
	buf  []float64
	head int // index of the oldest retained element
	n    int // number of retained elements
}

// New creates a queue holding at most capacity values.
func New(capacity int) (*Queue, error) {
	if capacity < 1 {
		return nil, ErrInvalidArgument
	}
	return &Queue{buf: make([]float64, capacity)}, nil
}

// MustNew is New for capacities known to be valid.
func MustNew(capacity int) *Queue {
	q, err := New(capacity)
	if err != nil {
		panic(err)
	}
	return q
}

// Enqueue appends v. When the queue was already full the oldest value is
// evicted and returned with ok == true.
func (q *Queue) Enqueue(v float64) (evicted float64, ok bool) {
	size := len(q.buf)
	if q.n < size {
		q.buf[(q.head+q.n)%size] = v
		q.n++
		return math.NaN(), false
	}
	evicted = q.buf[q.head]
	q.buf[q.head] = v
	q.head = (q.head + 1) % size
	return evicted, true
}

// Get returns the element at index i. Non-negative indices count from the
// oldest retained element, negative ones from the newest (-1 is the most
// recently enqueued value). Out-of-range indices return (NaN, false).
func (q *Queue) Get(i int) (float64, bool) {
	if i < 0 {
		i += q.n
	}
	if i < 0 || i >= q.n {
		return math.NaN(), false
	}
	return q.buf[(q.head+i)%len(q.buf)], true
}

// Len returns the number of retained elements.
func (q *Queue) Len() int { return q.n }

// Cap returns the fixed capacity.
func (q *Queue) Cap() int { return len(q.buf) }

// Full reports whether the next Enqueue will evict.
func (q *Queue) Full() bool { return q.n == len(q.buf) }

// Clear empties the queue without releasing its storage.
func (q *Queue) Clear() {
	q.head = 0
	q.n = 0
}

// Sum returns the sum of the retained elements.
func (q *Queue) Sum() float64 {
	var s float64
	for i := 0; i < q.n; i++ {
		s += q.buf[(q.head+i)%len(q.buf)]
	}
	return s
}

// Values copies the retained elements, oldest first.
func (q *Queue) Values() []float64 {
	out := make([]float64, q.n)
	for i := 0; i < q.n; i++ {
		out[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	return out
}
