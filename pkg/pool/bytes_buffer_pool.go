// Package pool provides typed sync.Pool wrappers for the hot-path
// allocations of the drivers.
package pool

import (
	"bytes"
	"sync"
)

// BytesBuffer is a strongly typed wrapper around a sync.Pool for
// *bytes.Buffer.  Executors serialize one record per operation; pooling the
// buffers keeps the per-operation allocation out of the dispatch loop.
type BytesBuffer struct {
	p sync.Pool
}

func NewBytesBuffer() *BytesBuffer {
	return &BytesBuffer{
		p: sync.Pool{
			New: func() interface{} {
				return &bytes.Buffer{}
			},
		},
	}
}

// Get returns an empty buffer ready to write into.
func (p *BytesBuffer) Get() *bytes.Buffer {
	buffer := p.p.Get().(*bytes.Buffer)
	buffer.Reset()
	return buffer
}

func (p *BytesBuffer) Put(b *bytes.Buffer) {
	p.p.Put(b)
}
