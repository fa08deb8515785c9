// Package bufpool provides sync.Pool-backed reusable buffers for the
// broker's record formatting path.
package bufpool

import (
	"bytes"
	"sync"
)

const maxPooledCapacity = 32 * 1024

// BufferPool hands out *bytes.Buffer values pre-sized to capacity and
// resets them before reuse.
type BufferPool struct {
	pool     sync.Pool
	capacity int
}

// NewBufferPool creates a pool whose buffers default to 512 bytes.
func NewBufferPool() *BufferPool {
	return NewBufferPoolWithCapacity(512)
}

// NewBufferPoolWithCapacity creates a pool whose fresh buffers are
// pre-allocated to capacity bytes.
func NewBufferPoolWithCapacity(capacity int) *BufferPool {
	p := &BufferPool{capacity: capacity}
	p.pool.New = func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, p.capacity))
	}
	return p
}

// Get returns an empty buffer.
func (p *BufferPool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

// Put returns a buffer to the pool. Buffers that grew past
// maxPooledCapacity are dropped instead, so a handful of oversized
// records never inflate every future allocation.
func (p *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	if buf.Cap() > maxPooledCapacity {
		return
	}
	buf.Reset()
	p.pool.Put(buf)
}

var (
	smallPool  = NewBufferPoolWithCapacity(256)
	mediumPool = NewBufferPoolWithCapacity(1024)
	largePool  = NewBufferPoolWithCapacity(4096)
)

// GetBuffer returns a buffer sized for typical formatted records; this
// is the pool the broker uses for its per-message scratch buffer.
func GetBuffer() *bytes.Buffer { return mediumPool.Get() }

// PutBuffer returns buf to the pool tier matching its capacity, so a
// buffer that grew while formatting a large record doesn't keep
// inflating every future Get from the medium pool.
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	switch {
	case buf.Cap() <= 256:
		smallPool.Put(buf)
	case buf.Cap() <= 1024:
		mediumPool.Put(buf)
	default:
		largePool.Put(buf)
	}
}
