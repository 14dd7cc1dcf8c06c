package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrBufferFull is returned by Push when the event was dropped.
var ErrBufferFull = errors.New("buffer is full")

// RingBuffer is the bounded queue between the ingestors and the pipeline
// dispatcher. Any number of goroutines may Push; only the dispatcher Pops.
type RingBuffer[T any] struct {
	slots []T
	mask  uint64

	// writeMu serializes producers. The consumer never takes it.
	writeMu sync.Mutex
	next    atomic.Uint64 // next slot to write
	read    atomic.Uint64 // next slot to read
	dropped atomic.Uint64
}

// NewRingBuffer allocates size slots; size must be a power of 2.
func NewRingBuffer[T any](size uint64) (*RingBuffer[T], error) {
	if size == 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("ring buffer size %d is not a power of 2", size)
	}
	return &RingBuffer[T]{slots: make([]T, size), mask: size - 1}, nil
}

// Push enqueues item, or counts it as dropped and returns ErrBufferFull.
func (rb *RingBuffer[T]) Push(item T) error {
	rb.writeMu.Lock()
	defer rb.writeMu.Unlock()

	w := rb.next.Load()
	if w-rb.read.Load() > rb.mask {
		rb.dropped.Add(1)
		return ErrBufferFull
	}
	rb.slots[w&rb.mask] = item
	rb.next.Store(w + 1)
	return nil
}

// Pop dequeues the oldest item. ok is false when the buffer is empty.
func (rb *RingBuffer[T]) Pop() (item T, ok bool) {
	r := rb.read.Load()
	if r == rb.next.Load() {
		return item, false
	}
	var zero T
	item, rb.slots[r&rb.mask] = rb.slots[r&rb.mask], zero
	rb.read.Store(r + 1)
	return item, true
}

// DroppedCount is the number of items rejected because the buffer was full.
func (rb *RingBuffer[T]) DroppedCount() uint64 {
	return rb.dropped.Load()
}

// Usage is the number of queued items.
func (rb *RingBuffer[T]) Usage() uint64 {
	return rb.next.Load() - rb.read.Load()
}

func (rb *RingBuffer[T]) Capacity() uint64 {
	return rb.mask + 1
}
