// Package ringbuf provides a bounded, overwrite-oldest ring buffer.
// It keeps the most recent N values for operator views such as the scan log.
package ringbuf

import "sync"

// Ring is a fixed-capacity circular buffer. When full, Push overwrites the
// oldest entry. Safe for concurrent use.
type Ring[T any] struct {
	mu      sync.RWMutex
	buf     []T
	pos     int // next write position
	full    bool
	evicted uint64
}

// New creates a ring holding at most capacity values. Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest value when the ring is full.
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.full {
		r.evicted++
	}
	r.buf[r.pos] = v
	r.pos = (r.pos + 1) % len(r.buf)
	if r.pos == 0 {
		r.full = true
	}
}

// Snapshot returns the retained values, newest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.len()
	out := make([]T, n)
	for i := 0; i < n; i++ {
		idx := (r.pos - 1 - i + len(r.buf)) % len(r.buf)
		out[i] = r.buf[idx]
	}
	return out
}

// Len returns the number of retained values.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.len()
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Evicted returns how many values were overwritten.
func (r *Ring[T]) Evicted() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.evicted
}

func (r *Ring[T]) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.pos
}
