package gateway

import (
	"strconv"
	"testing"
)

func seqs(data [][]byte) []int64 {
	out := make([]int64, len(data))
	for i, d := range data {
		n, _ := strconv.ParseInt(string(d), 10, 64)
		out[i] = n
	}
	return out
}

func TestReplayBuffer_Range(t *testing.T) {
	rb := NewReplayBuffer(100)
	for i := int64(1); i <= 10; i++ {
		rb.Push(i, []byte(strconv.FormatInt(i, 10)))
	}

	got := seqs(rb.Range(3, 7))
	if len(got) != 5 {
		t.Fatalf("Range(3,7): expected 5, got %d", len(got))
	}
	for i, s := range got {
		if want := int64(i) + 3; s != want {
			t.Errorf("entry[%d] = %d, want %d", i, s, want)
		}
	}
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(5)

	// Push 8 entries; first 3 should be evicted
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte(strconv.FormatInt(i, 10)))
	}

	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}
	if rb.Oldest() != 4 {
		t.Errorf("Oldest() = %d, want 4", rb.Oldest())
	}

	got := seqs(rb.Range(1, 10))
	if len(got) != 5 {
		t.Fatalf("Range(1,10): expected 5, got %d", len(got))
	}
	if got[0] != 4 || got[4] != 8 {
		t.Errorf("range = %v, want 4..8", got)
	}
}

func TestReplayBuffer_CopiesData(t *testing.T) {
	rb := NewReplayBuffer(2)
	buf := []byte("1")
	rb.Push(1, buf)
	buf[0] = 'x'
	if got := string(rb.Range(1, 1)[0]); got != "1" {
		t.Errorf("stored data = %q, want %q", got, "1")
	}
}

func TestReplayBuffer_Empty(t *testing.T) {
	rb := NewReplayBuffer(10)
	if got := rb.Range(1, 100); len(got) != 0 {
		t.Fatalf("empty buffer Range should return 0, got %d", len(got))
	}
	if rb.Oldest() != 0 {
		t.Errorf("Oldest() on empty buffer = %d", rb.Oldest())
	}
}
