package dispatch

import (
	"sync"
)

// Policy selects what happens when a ring is full.
type Policy string

const (
	// DropOldest discards the oldest buffered item to make room for the new
	// one. The stream stays live at the cost of losing the lagging tail.
	DropOldest Policy = "drop_oldest"

	// Block makes the sender wait until a receiver frees a slot. Nothing is
	// lost, but a stalled receiver backpressures the whole pipeline.
	Block Policy = "block"
)

// Ring is a thread-safe bounded ring buffer with a configurable full-buffer
// policy. It carries one sender and one receiver.
type Ring[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []T
	head   int // read position
	tail   int // write position
	count  int
	policy Policy
	closed bool

	// Stats
	totalReceived int64
	totalSent     int64
	totalDropped  int64
}

// NewRing creates a ring with the given capacity. Any policy other than
// Block behaves as DropOldest.
func NewRing[T any](capacity int, policy Policy) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	r := &Ring[T]{
		buf:    make([]T, capacity),
		policy: policy,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Send adds an item to the ring. When the ring is full, DropOldest discards
// the oldest buffered item and Block waits for space. The dropped flag
// reports whether an item was discarded; ok is false once the ring is closed.
func (r *Ring[T]) Send(item T) (dropped, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, false
	}

	if r.count == len(r.buf) {
		if r.policy == Block {
			for r.count == len(r.buf) && !r.closed {
				r.cond.Wait()
			}
			if r.closed {
				return false, false
			}
		} else {
			var zero T
			r.buf[r.head] = zero
			r.head = (r.head + 1) % len(r.buf)
			r.count--
			r.totalDropped++
			dropped = true
		}
	}

	r.buf[r.tail] = item
	r.tail = (r.tail + 1) % len(r.buf)
	r.count++
	r.totalReceived++

	// Signal waiting receivers
	r.cond.Signal()
	return dropped, true
}

// Receive removes and returns an item from the ring.
// Blocks until an item is available or the ring is closed.
// Returns the item and true, or zero value and false if closed and empty.
func (r *Ring[T]) Receive() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Wait for data or close
	for r.count == 0 && !r.closed {
		r.cond.Wait()
	}

	if r.count == 0 && r.closed {
		var zero T
		return zero, false
	}

	item := r.take()

	// Signal a sender waiting for space
	r.cond.Signal()
	return item, true
}

// TryReceive attempts to receive without blocking.
// Returns the item and true if available, or zero value and false otherwise.
func (r *Ring[T]) TryReceive() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		var zero T
		return zero, false
	}

	item := r.take()
	r.cond.Signal()
	return item, true
}

// take removes the item at head. Must be called with lock held.
func (r *Ring[T]) take() T {
	item := r.buf[r.head]
	var zero T
	r.buf[r.head] = zero // Clear reference for GC
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	r.totalSent++
	return item
}

// Close closes the ring. After closing, Send returns false.
// Receivers will get remaining items then receive closed signal.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.cond.Broadcast() // Wake all waiters
}

// Len returns the current number of items in the ring.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the capacity of the ring.
func (r *Ring[T]) Cap() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Stats returns ring statistics.
func (r *Ring[T]) Stats() RingStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RingStats{
		Count:         r.count,
		Capacity:      len(r.buf),
		TotalReceived: r.totalReceived,
		TotalSent:     r.totalSent,
		TotalDropped:  r.totalDropped,
	}
}

// RingStats contains ring statistics.
type RingStats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	TotalDropped  int64
}
