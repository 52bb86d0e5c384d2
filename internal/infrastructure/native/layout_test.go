package native

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_LittleEndianLayout(t *testing.T) {
	w := &writer{}
	w.u8(0x01)
	w.u16(0x0203)
	w.u32(0x04050607)
	w.i32(-1)
	w.str("ab")

	assert.Equal(t, []byte{
		0x01,
		0x03, 0x02,
		0x07, 0x06, 0x05, 0x04,
		0xff, 0xff, 0xff, 0xff,
		0x03, 0x00, 0x00, 0x00, 'a', 'b', 0x00,
	}, w.bytes())
}

func TestReader_RoundTrip(t *testing.T) {
	w := &writer{}
	w.u8(7)
	w.u16(65535)
	w.u32(42)
	w.i32(-5)
	w.u64(1 << 40)
	w.f64(29.97)
	w.str("")
	w.str("video/VP8")

	r := newReader(w.bytes())
	assert.Equal(t, uint8(7), r.u8())
	assert.Equal(t, uint16(65535), r.u16())
	assert.Equal(t, uint32(42), r.u32())
	assert.Equal(t, int32(-5), r.i32())
	assert.Equal(t, uint64(1<<40), r.u64())
	assert.Equal(t, 29.97, r.f64())
	assert.Equal(t, "", r.str())
	assert.Equal(t, "video/VP8", r.str())
	require.NoError(t, r.err)
	assert.Zero(t, r.remaining())
}

func TestReader_ShortBufferLatches(t *testing.T) {
	r := newReader([]byte{0x01, 0x02})
	assert.Equal(t, uint32(0), r.u32())
	assert.ErrorIs(t, r.err, ErrShortBuffer)

	// later reads keep the first error and return zero values
	assert.Equal(t, uint8(0), r.u8())
	assert.ErrorIs(t, r.err, ErrShortBuffer)
}

func TestReader_MalformedStrings(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"zero length", []byte{0, 0, 0, 0}, ErrMalformedBuffer},
		{"missing terminator", []byte{2, 0, 0, 0, 'a', 'b'}, ErrMalformedBuffer},
		{"length past end", []byte{9, 0, 0, 0, 'a', 0}, ErrShortBuffer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newReader(tt.data)
			assert.Equal(t, "", r.str())
			assert.ErrorIs(t, r.err, tt.want)
		})
	}
}

func TestReader_CountBoundedByRemaining(t *testing.T) {
	w := &writer{}
	w.u32(1000)
	w.u32(0)

	r := newReader(w.bytes())
	assert.Equal(t, 0, r.count(minCodecSize))
	assert.ErrorIs(t, r.err, ErrMalformedBuffer)
}
