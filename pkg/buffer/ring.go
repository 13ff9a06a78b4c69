package buffer

import (
	"sync"

	"github.com/c360/emgstream/errors"
)

// ring is a thread-safe ring buffer with configurable overflow policy.
type ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	stats    *Statistics
	metrics  *bufferMetrics // optional
	opts     *bufferOptions[T]
	closed   bool
}

func newRing[T any](capacity int, opts *bufferOptions[T]) (*ring[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	var metrics *bufferMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "newRing", "metrics registration")
		}
	}

	return &ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}, nil
}

// Write adds an item to the buffer according to the overflow policy.
func (rb *ring[T]) Write(item T) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "Write", "buffer closed")
	}

	if rb.size == rb.capacity {
		switch rb.opts.overflowPolicy {
		case DropOldest:
			dropped := rb.items[rb.tail]
			rb.tail = (rb.tail + 1) % rb.capacity
			rb.size--

			rb.stats.Overflow()
			rb.stats.Drop()
			if rb.metrics != nil {
				rb.metrics.recordOverflow()
				rb.metrics.recordDrop()
			}

			if rb.opts.dropCallback != nil {
				// Run the callback outside the lock to avoid deadlock
				defer rb.opts.dropCallback(dropped)
			}

		case DropNewest:
			rb.stats.Overflow()
			rb.stats.Drop()
			if rb.metrics != nil {
				rb.metrics.recordOverflow()
				rb.metrics.recordDrop()
			}

			if rb.opts.dropCallback != nil {
				defer rb.opts.dropCallback(item)
			}
			return nil
		}
	}

	rb.items[rb.head] = item
	rb.head = (rb.head + 1) % rb.capacity
	rb.size++

	rb.stats.Write()
	rb.stats.UpdateSize(int64(rb.size))
	if rb.metrics != nil {
		rb.metrics.recordWrite(rb.size, rb.capacity)
	}

	return nil
}

// Read retrieves and removes one item from the buffer.
func (rb *ring[T]) Read() (T, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var zero T
	if rb.size == 0 {
		return zero, false
	}

	item := rb.items[rb.tail]
	rb.items[rb.tail] = zero // clear for GC
	rb.tail = (rb.tail + 1) % rb.capacity
	rb.size--

	rb.stats.Read()
	rb.stats.UpdateSize(int64(rb.size))
	if rb.metrics != nil {
		rb.metrics.recordRead(rb.size, rb.capacity)
	}

	return item, true
}

// ReadBatch retrieves and removes up to max items from the buffer.
func (rb *ring[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == 0 {
		return nil
	}

	readCount := max
	if readCount > rb.size {
		readCount = rb.size
	}

	result := make([]T, readCount)
	var zero T
	for i := 0; i < readCount; i++ {
		result[i] = rb.items[rb.tail]
		rb.items[rb.tail] = zero
		rb.tail = (rb.tail + 1) % rb.capacity
		rb.size--
		rb.stats.Read()
	}

	rb.stats.UpdateSize(int64(rb.size))
	if rb.metrics != nil {
		rb.metrics.updateSize(rb.size, rb.capacity)
	}

	return result
}

// Snapshot returns the buffer contents in FIFO order without mutating state.
// Poll consumers (live visualization) use this so the writer never starves.
func (rb *ring[T]) Snapshot() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	result := make([]T, rb.size)
	for i := 0; i < rb.size; i++ {
		result[i] = rb.items[(rb.tail+i)%rb.capacity]
	}

	rb.stats.Peek()
	if rb.metrics != nil {
		rb.metrics.recordPeek()
	}

	return result
}

// Peek retrieves the oldest item without removing it.
func (rb *ring[T]) Peek() (T, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var zero T
	if rb.size == 0 {
		return zero, false
	}

	rb.stats.Peek()
	if rb.metrics != nil {
		rb.metrics.recordPeek()
	}

	return rb.items[rb.tail], true
}

// Size returns the current number of items in the buffer.
func (rb *ring[T]) Size() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// Capacity returns the maximum number of items the buffer can hold.
func (rb *ring[T]) Capacity() int {
	return rb.capacity // immutable, no lock needed
}

// IsFull returns true if the buffer is at maximum capacity.
func (rb *ring[T]) IsFull() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size == rb.capacity
}

// IsEmpty returns true if the buffer contains no items.
func (rb *ring[T]) IsEmpty() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size == 0
}

// Clear removes all items from the buffer.
func (rb *ring[T]) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var zero T
	for i := 0; i < rb.capacity; i++ {
		rb.items[i] = zero
	}

	rb.head = 0
	rb.tail = 0
	rb.size = 0

	rb.stats.UpdateSize(0)
	if rb.metrics != nil {
		rb.metrics.updateSize(0, rb.capacity)
	}
}

// Stats returns buffer statistics.
func (rb *ring[T]) Stats() *Statistics {
	return rb.stats
}

// Close shuts down the buffer.
func (rb *ring[T]) Close() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.closed = true
	return nil
}
