// Package pool provides buffer reuse for the chunk pipeline.
// Chunk buffers are large (10-50 MiB depending on strategy), so reusing
// them across chunks keeps allocation pressure flat for big transfers.
package pool

import (
	"sync"
)

// BufferPool manages reusable byte buffers of a single size class.
// A copier creates one pool per transfer, sized to the strategy's chunk size.
type BufferPool struct {
	size int
	pool *sync.Pool
}

// New creates a buffer pool whose buffers have capacity size.
func New(size int) *BufferPool {
	bp := &BufferPool{size: size}
	bp.pool = &sync.Pool{
		New: func() interface{} {
			buf := make([]byte, size)
			return &buf
		},
	}
	return bp
}

// Size returns the buffer capacity this pool hands out.
func (bp *BufferPool) Size() int { return bp.size }

// Get returns a zero-length buffer with the pool's capacity.
// The caller is responsible for calling Put to return the buffer.
func (bp *BufferPool) Get() []byte {
	bufPtr := bp.pool.Get().(*[]byte)
	return (*bufPtr)[:0]
}

// Put returns a buffer to the pool.
// The buffer must not be used after calling Put. Buffers that grew past the
// pool's size class are dropped rather than recycled.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) != bp.size {
		return
	}
	buf = buf[:0]
	bp.pool.Put(&buf)
}
