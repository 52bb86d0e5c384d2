package native

import (
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"math"
)

// Buffers exchanged with the engine use an explicit little-endian layout.
// Strings are a u32 length that counts the trailing NUL, the bytes, then NUL.

var (
	ErrShortBuffer        = stderrors.New("native: buffer too short")
	ErrMalformedBuffer    = stderrors.New("native: malformed buffer")
	ErrUnsupportedVersion = stderrors.New("native: unsupported layout version")
)

type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) u16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *writer) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) i32(v int32) {
	w.u32(uint32(v))
}

func (w *writer) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *writer) f64(v float64) {
	w.u64(math.Float64bits(v))
}

func (w *writer) str(s string) {
	w.u32(uint32(len(s) + 1))
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

func (w *writer) bytes() []byte {
	return w.buf
}

// reader decodes sequentially and latches the first error; after that all
// reads return zero values.
type reader struct {
	data []byte
	off  int
	err  error
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) remaining() int {
	return len(r.data) - r.off
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.remaining() < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, r.off, r.remaining())
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) i32() int32 {
	return int32(r.u32())
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) f64() float64 {
	return math.Float64frombits(r.u64())
}

func (r *reader) str() string {
	start := r.off
	n := r.u32()
	if r.err != nil {
		return ""
	}
	if n == 0 {
		r.err = fmt.Errorf("%w: zero string length at offset %d", ErrMalformedBuffer, start)
		return ""
	}
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	if b[n-1] != 0 {
		r.err = fmt.Errorf("%w: string at offset %d is not NUL-terminated", ErrMalformedBuffer, start)
		return ""
	}
	return string(b[:n-1])
}

// count reads an element count and checks that the rest of the buffer can
// hold that many elements of at least minSize bytes each.
func (r *reader) count(minSize int) int {
	n := r.u32()
	if r.err != nil {
		return 0
	}
	if uint64(n)*uint64(minSize) > uint64(r.remaining()) {
		r.err = fmt.Errorf("%w: %d elements do not fit in %d bytes", ErrMalformedBuffer, n, r.remaining())
		return 0
	}
	return int(n)
}

func (r *reader) version() {
	if v := r.u32(); r.err == nil && v != WireVersion {
		r.err = fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
}
