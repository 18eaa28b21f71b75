package gateway

import (
	"sync"

	"github.com/gammazero/deque"
)

// replayEntry holds a single broadcasted envelope for replay.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps the most recent envelopes of one channel so clients
// can backfill a seq gap. Safe for concurrent use.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries *deque.Deque[replayEntry]
	cap     int
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{entries: deque.New[replayEntry](0, 64), cap: capacity}
}

// Push appends an envelope, dropping the oldest one when full. Seqs are
// expected to increase.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.entries.PushBack(replayEntry{Seq: seq, Data: cp})
	for rb.entries.Len() > rb.cap {
		rb.entries.PopFront()
	}
}

// Range returns the envelopes with seq in [fromSeq, toSeq], oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out [][]byte
	for i := 0; i < rb.entries.Len(); i++ {
		e := rb.entries.At(i)
		if e.Seq > toSeq {
			break
		}
		if e.Seq >= fromSeq {
			out = append(out, e.Data)
		}
	}
	return out
}

// Oldest returns the seq of the oldest retained envelope, or 0.
func (rb *ReplayBuffer) Oldest() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.entries.Len() == 0 {
		return 0
	}
	return rb.entries.Front().Seq
}

// Len returns the number of entries currently in the buffer.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.entries.Len()
}
