package ringbuf

import (
	"math"
	"testing"
)

func TestQueue_InvalidCapacity(t *testing.T) {
	for _, c := range []int{0, -1, -100} {
		if _, err := New(c); err != ErrInvalidArgument {
			t.Fatalf("New(%d): expected ErrInvalidArgument, got %v", c, err)
		}
	}
}

func TestQueue_EnqueueBeforeFull(t *testing.T) {
	q := MustNew(3)
	for i := 1; i <= 3; i++ {
		if _, ok := q.Enqueue(float64(i)); ok {
			t.Fatalf("enqueue %d should not evict", i)
		}
		if q.Len() != i {
			t.Fatalf("expected len=%d, got %d", i, q.Len())
		}
	}
	if !q.Full() {
		t.Fatal("queue should be full")
	}
}

func TestQueue_RoundTrip(t *testing.T) {
	const c = 4
	q := MustNew(c)
	var inserted []float64
	for i := 0; i < 3*c; i++ {
		v := float64(i*10 + 1)
		evicted, ok := q.Enqueue(v)
		inserted = append(inserted, v)

		if i < c {
			if ok {
				t.Fatalf("step %d: unexpected eviction of %v", i, evicted)
			}
		} else {
			if !ok || evicted != inserted[i-c] {
				t.Fatalf("step %d: expected eviction of %v, got %v ok=%v", i, inserted[i-c], evicted, ok)
			}
		}

		last, ok := q.Get(-1)
		if !ok || last != v {
			t.Fatalf("step %d: Get(-1) = %v, want %v", i, last, v)
		}
	}
	if q.Len() != c {
		t.Fatalf("expected len=%d, got %d", c, q.Len())
	}
}

func TestQueue_GetIndices(t *testing.T) {
	q := MustNew(3)
	for _, v := range []float64{1, 2, 3, 4} {
		q.Enqueue(v)
	}
	// retained: 2, 3, 4
	cases := []struct {
		i    int
		want float64
		ok   bool
	}{
		{0, 2, true},
		{1, 3, true},
		{2, 4, true},
		{3, 0, false},
		{-1, 4, true},
		{-3, 2, true},
		{-4, 0, false},
	}
	for _, tc := range cases {
		got, ok := q.Get(tc.i)
		if ok != tc.ok {
			t.Fatalf("Get(%d): ok=%v, want %v", tc.i, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("Get(%d) = %v, want %v", tc.i, got, tc.want)
		}
		if !ok && !math.IsNaN(got) {
			t.Fatalf("Get(%d) out of range should be NaN, got %v", tc.i, got)
		}
	}
}

func TestQueue_Clear(t *testing.T) {
	q := MustNew(2)
	q.Enqueue(1)
	q.Enqueue(2)
	q.Clear()

	if q.Len() != 0 || q.Cap() != 2 {
		t.Fatalf("after clear: len=%d cap=%d", q.Len(), q.Cap())
	}
	if _, ok := q.Get(0); ok {
		t.Fatal("Get on cleared queue should fail")
	}
	if _, ok := q.Enqueue(5); ok {
		t.Fatal("first enqueue after clear should not evict")
	}
	if v, _ := q.Get(-1); v != 5 {
		t.Fatalf("expected 5, got %v", v)
	}
}

func TestQueue_SumAndValues(t *testing.T) {
	q := MustNew(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		q.Enqueue(v)
	}
	if q.Sum() != 12 {
		t.Fatalf("expected sum 12, got %v", q.Sum())
	}
	vals := q.Values()
	want := []float64{3, 4, 5}
	for i := range want {
		if vals[i] != want[i] {
			t.Fatalf("Values()[%d] = %v, want %v", i, vals[i], want[i])
		}
	}
}
