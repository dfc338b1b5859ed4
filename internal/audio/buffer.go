package audio

import (
	"sync"
)

// RingBuffer is a thread-safe ring buffer of normalized samples.
// The capture pipeline uses it to reassemble device reads of arbitrary
// size into fixed-size frames.
type RingBuffer struct {
	buffer []float64
	size   int
	read   int
	write  int
	mu     sync.RWMutex
}

// NewRingBuffer creates a ring buffer holding up to size-1 samples.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]float64, size),
		size:   size,
	}
}

// Write appends samples to the buffer.
// Returns the number of samples written (less than len(samples) if full).
func (rb *RingBuffer) Write(samples []float64) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for i := 0; i < len(samples); i++ {
		if (rb.write+1)%rb.size == rb.read {
			break // buffer full
		}

		rb.buffer[rb.write] = samples[i]
		rb.write = (rb.write + 1) % rb.size
		written++
	}

	return written
}

// Read fills out with buffered samples in write order.
// Returns the number of samples read.
func (rb *RingBuffer) Read(out []float64) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for i := 0; i < len(out); i++ {
		if rb.read == rb.write {
			break // buffer empty
		}

		out[i] = rb.buffer[rb.read]
		rb.read = (rb.read + 1) % rb.size
		read++
	}

	return read
}

// Available returns the number of samples available to read.
func (rb *RingBuffer) Available() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.available()
}

func (rb *RingBuffer) available() int {
	if rb.write >= rb.read {
		return rb.write - rb.read
	}
	return rb.size - rb.read + rb.write
}

// Space returns the number of samples available to write.
func (rb *RingBuffer) Space() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	return rb.size - rb.available() - 1 // -1 to prevent full/empty ambiguity
}

// Clear resets the buffer.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.read = 0
	rb.write = 0
}

// IsEmpty returns true if no samples are buffered.
func (rb *RingBuffer) IsEmpty() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.read == rb.write
}
