package native

import (
	"sync"
	"sync/atomic"
)

// Buffer is memory owned by the engine and lent to the caller for the
// duration of a single call. Release returns it to the engine; calling it
// more than once is a no-op.
type Buffer interface {
	Bytes() []byte
	Release()
}

// HeapBuffer is a Buffer backed by Go memory, for engines that run
// in-process.
type HeapBuffer struct {
	data      []byte
	released  atomic.Bool
	onRelease func()
}

// NewHeapBuffer wraps data. onRelease, if set, runs on the first Release.
func NewHeapBuffer(data []byte, onRelease func()) *HeapBuffer {
	return &HeapBuffer{data: data, onRelease: onRelease}
}

// Bytes returns nil once the buffer has been released.
func (b *HeapBuffer) Bytes() []byte {
	if b.released.Load() {
		return nil
	}
	return b.data
}

func (b *HeapBuffer) Release() {
	if !b.released.CompareAndSwap(false, true) {
		return
	}
	b.data = nil
	if b.onRelease != nil {
		b.onRelease()
	}
}

func (b *HeapBuffer) Released() bool {
	return b.released.Load()
}

// owned guards a Buffer handed out by a Library so that it is returned to
// the engine exactly once, whatever the Library's own Release does.
type owned struct {
	buf  Buffer
	once sync.Once
}

func own(buf Buffer) *owned {
	return &owned{buf: buf}
}

func (o *owned) Bytes() []byte {
	return o.buf.Bytes()
}

func (o *owned) Release() {
	o.once.Do(o.buf.Release)
}
