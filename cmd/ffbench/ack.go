package main

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// ackTracker records which of the benchmark's inserted keys have been
// durably acknowledged (their node's insert flushed) before a simulated
// crash. It is indexed by each key's position in the workload slice,
// not by the key's own value: the roaring bitmap this wraps only stores
// uint32s, and truncating an arbitrary int64 key to its low 32 bits
// would let two unrelated keys collide and falsely mark one acked. A
// workload position is unique by construction and never exceeds the
// number of keys in the run. After reopening the pool, the
// crash-injection scenario (spec.md §8 P6) checks that every
// acknowledged key is still found and tolerates any not-yet-
// acknowledged key going missing. A roaring bitmap keeps this set
// compact even at hundreds of millions of keys, which a plain
// map/slice would not.
type ackTracker struct {
	mu sync.Mutex
	bm *roaring.Bitmap
}

func newAckTracker() *ackTracker {
	return &ackTracker{bm: roaring.New()}
}

func (a *ackTracker) ack(idx int) {
	a.mu.Lock()
	a.bm.Add(uint32(idx))
	a.mu.Unlock()
}

func (a *ackTracker) acked(idx int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bm.Contains(uint32(idx))
}

func (a *ackTracker) count() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bm.GetCardinality()
}
