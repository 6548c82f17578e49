// Package history keeps the bounded in-memory views of recent activity:
// the processed-event records and the raw log tail. Both are lost on restart
// by design; nothing here persists.
package history

import "sync"

// Ring is a fixed-capacity FIFO buffer. Once full, appending evicts the
// oldest entry. Reads copy out so callers never observe the buffer mid-write.
type Ring[T any] struct {
	mu    sync.RWMutex
	buf   []T
	start int
	count int
}

// NewRing creates a ring with the given capacity. Capacity must be positive.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("history: ring capacity must be positive")
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Append adds an entry, evicting the oldest one when the ring is full.
func (r *Ring[T]) Append(entry T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = entry
		r.count++
		return
	}
	r.buf[r.start] = entry
	r.start = (r.start + 1) % len(r.buf)
}

// Last returns up to n entries, oldest first, newest last. n <= 0 returns all
// retained entries.
func (r *Ring[T]) Last(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]T, 0, n)
	for i := r.count - n; i < r.count; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

// Len reports how many entries are currently retained.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
