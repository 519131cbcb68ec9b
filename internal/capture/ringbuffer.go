package capture

import "sync"

// RingBuffer is a thread-safe ring buffer holding a fixed number of items.
// When full, adding overwrites the oldest item and counts it as dropped.
type RingBuffer[T any] struct {
	sync.RWMutex
	items    []T
	capacity int
	head     int // next write position
	size     int
	dropped  uint64
}

// NewRingBuffer creates a ring buffer. The capacity must be greater than zero.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		panic("ring buffer capacity must be greater than zero")
	}
	return &RingBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add inserts an item, overwriting the oldest one when full.
func (rb *RingBuffer[T]) Add(item T) {
	rb.Lock()
	defer rb.Unlock()
	rb.add(item)
}

// AddAll inserts items in order under a single lock.
func (rb *RingBuffer[T]) AddAll(items []T) {
	rb.Lock()
	defer rb.Unlock()
	for _, item := range items {
		rb.add(item)
	}
}

func (rb *RingBuffer[T]) add(item T) {
	rb.items[rb.head] = item
	rb.head = (rb.head + 1) % rb.capacity
	if rb.size < rb.capacity {
		rb.size++
	} else {
		rb.dropped++
	}
}

// GetAll returns a copy of all items, oldest first.
func (rb *RingBuffer[T]) GetAll() []T {
	rb.RLock()
	defer rb.RUnlock()

	if rb.size == 0 {
		return nil
	}
	result := make([]T, rb.size)
	if rb.size < rb.capacity {
		copy(result, rb.items[:rb.size])
	} else {
		// Wrapped: head is the oldest item.
		n := copy(result, rb.items[rb.head:])
		copy(result[n:], rb.items[:rb.head])
	}
	return result
}

// GetRecent returns the n most recent items, oldest first.
func (rb *RingBuffer[T]) GetRecent(n int) []T {
	all := rb.GetAll()
	if len(all) <= n {
		return all
	}
	return all[len(all)-n:]
}

// Size returns the current number of items.
func (rb *RingBuffer[T]) Size() int {
	rb.RLock()
	defer rb.RUnlock()
	return rb.size
}

// Capacity returns the maximum number of items.
func (rb *RingBuffer[T]) Capacity() int {
	return rb.capacity
}

// Dropped returns how many items were overwritten since the last Clear.
func (rb *RingBuffer[T]) Dropped() uint64 {
	rb.RLock()
	defer rb.RUnlock()
	return rb.dropped
}

// Clear removes all items.
func (rb *RingBuffer[T]) Clear() {
	rb.Lock()
	defer rb.Unlock()

	var zero T
	for i := range rb.items {
		rb.items[i] = zero
	}
	rb.head = 0
	rb.size = 0
	rb.dropped = 0
}
