package generic

import (
	"bytes"
	"sync"
)

// Pool is a typed wrapper over sync.Pool.
type Pool[T any] struct {
	pool sync.Pool
}

// NewPool creates a pool producing values with generate on miss.
func NewPool[T any](generate func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				return generate()
			},
		},
	}
}

func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(value T) {
	p.pool.Put(value)
}

// BufferPool recycles bytes.Buffers, resetting them on Get.
type BufferPool struct {
	inner *Pool[*bytes.Buffer]
}

// NewBufferPool creates a pool whose fresh buffers start with the given
// capacity.
func NewBufferPool(initialCap int) *BufferPool {
	return &BufferPool{
		inner: NewPool(func() *bytes.Buffer {
			return bytes.NewBuffer(make([]byte, 0, initialCap))
		}),
	}
}

func (p *BufferPool) Get() *bytes.Buffer {
	buf := p.inner.Get()
	buf.Reset()
	return buf
}

func (p *BufferPool) Put(buf *bytes.Buffer) {
	p.inner.Put(buf)
}
