// Package pool provides buffer pools for signal streams.
//
// Pools are owned by their users. Every audio keeps its own pool sized to
// the soundcard buffer.
package pool

import (
	"sync"
)

// Pool allocates buffers of a fixed size.
type Pool struct {
	bufferSize int
	pool       sync.Pool
}

// New returns a pool of buffers with provided size.
func New(bufferSize int) *Pool {
	p := Pool{
		bufferSize: bufferSize,
	}
	p.pool.New = func() any {
		b := make([]float64, bufferSize)
		return &b
	}
	return &p
}

// BufferSize returns size of allocated buffers.
func (p *Pool) BufferSize() int {
	return p.bufferSize
}

// Alloc returns a silent buffer.
func (p *Pool) Alloc() []float64 {
	b := *(p.pool.Get().(*[]float64))
	for i := range b {
		b[i] = 0
	}
	return b
}

// Free returns buffer to the pool. Buffers of a different size are
// dropped.
func (p *Pool) Free(b []float64) {
	if cap(b) < p.bufferSize {
		return
	}
	b = b[:p.bufferSize]
	p.pool.Put(&b)
}
