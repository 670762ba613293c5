// Package live polls a running recording session without blocking and keeps
// the bounded state a presentation layer draws from.
package live

import (
	"fmt"

	"esp-csi-recorder/internal/csi"
)

// SeriesBuffer is a fixed-capacity FIFO of live samples. Pushing past the
// capacity evicts the oldest sample.
type SeriesBuffer struct {
	samples []csi.Sample
	head    int // Index of the oldest sample
	size    int
}

// NewSeriesBuffer creates a buffer holding at most capacity samples.
func NewSeriesBuffer(capacity int) (*SeriesBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid series capacity: %d", capacity)
	}
	return &SeriesBuffer{samples: make([]csi.Sample, capacity)}, nil
}

// Push appends s, evicting the oldest sample when full.
func (b *SeriesBuffer) Push(s csi.Sample) {
	capacity := len(b.samples)
	if b.size < capacity {
		b.samples[(b.head+b.size)%capacity] = s
		b.size++
		return
	}
	b.samples[b.head] = s
	b.head = (b.head + 1) % capacity
}

// Len returns the number of buffered samples.
func (b *SeriesBuffer) Len() int { return b.size }

// Cap returns the fixed capacity.
func (b *SeriesBuffer) Cap() int { return len(b.samples) }

// Points returns a copy of the buffered samples, oldest first.
func (b *SeriesBuffer) Points() []csi.Sample {
	out := make([]csi.Sample, b.size)
	for i := range out {
		out[i] = b.samples[(b.head+i)%len(b.samples)]
	}
	return out
}

// Latest returns the newest sample.
func (b *SeriesBuffer) Latest() (csi.Sample, bool) {
	if b.size == 0 {
		return csi.Sample{}, false
	}
	return b.samples[(b.head+b.size-1)%len(b.samples)], true
}

// Reset empties the buffer.
func (b *SeriesBuffer) Reset() {
	b.head, b.size = 0, 0
}
