package engine

import "sync"

// RetentionBuffer is a fixed-capacity circular buffer of chunks. It keeps
// the most recent output of a session so a sink attaching mid-stream can
// catch up on what it missed, minus anything already evicted.
type RetentionBuffer struct {
	mu       sync.RWMutex
	buf      []Chunk
	capacity int
	pos      int // next write position
	full     bool
}

// NewRetentionBuffer creates a buffer holding at most capacity chunks.
// A capacity of zero or less falls back to DefaultRetention.
func NewRetentionBuffer(capacity int) *RetentionBuffer {
	if capacity <= 0 {
		capacity = DefaultRetention
	}
	return &RetentionBuffer{
		buf:      make([]Chunk, capacity),
		capacity: capacity,
	}
}

// Append adds a chunk, evicting the oldest one when the buffer is full.
func (rb *RetentionBuffer) Append(c Chunk) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buf[rb.pos] = c
	rb.pos = (rb.pos + 1) % rb.capacity
	if rb.pos == 0 {
		rb.full = true
	}
}

// Snapshot returns the retained chunks in append order. The returned slice
// is a copy and safe to use without further synchronization.
func (rb *RetentionBuffer) Snapshot() []Chunk {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if !rb.full {
		result := make([]Chunk, rb.pos)
		copy(result, rb.buf[:rb.pos])
		return result
	}

	result := make([]Chunk, rb.capacity)
	copy(result, rb.buf[rb.pos:])
	copy(result[rb.capacity-rb.pos:], rb.buf[:rb.pos])
	return result
}

// Len returns the number of chunks currently retained.
func (rb *RetentionBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.full {
		return rb.capacity
	}
	return rb.pos
}

// Cap returns the buffer's fixed capacity.
func (rb *RetentionBuffer) Cap() int { return rb.capacity }
