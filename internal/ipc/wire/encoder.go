package wire

import (
	"encoding/binary"

	"github.com/valyala/bytebufferpool"
)

// Encoder writes little-endian fields into a pooled buffer. The first four
// bytes are reserved for the total length of the encoded body.
type Encoder struct {
	buf *bytebufferpool.ByteBuffer
}

// NewEncoder creates a new Encoder backed by a pooled buffer.
func NewEncoder() *Encoder {
	buf := bytebufferpool.Get()
	buf.B = append(buf.B[:0], 0, 0, 0, 0)
	return &Encoder{buf: buf}
}

// Release returns the buffer to the pool. The encoder must not be used afterwards.
func (e *Encoder) Release() {
	if e.buf == nil {
		return
	}
	bytebufferpool.Put(e.buf)
	e.buf = nil
}

func (e *Encoder) WriteUint32(value uint32) {
	e.buf.B = binary.LittleEndian.AppendUint32(e.buf.B, value)
}

func (e *Encoder) WriteInt32(value int32) {
	e.WriteUint32(uint32(value))
}

func (e *Encoder) WriteUint64(value uint64) {
	e.buf.B = binary.LittleEndian.AppendUint64(e.buf.B, value)
}

// WriteBytes writes a length-prefixed byte slice.
func (e *Encoder) WriteBytes(data []byte) {
	e.WriteUint32(uint32(len(data)))
	e.buf.B = append(e.buf.B, data...)
}

// WriteString writes a length-prefixed string.
func (e *Encoder) WriteString(value string) {
	e.WriteUint32(uint32(len(value)))
	e.buf.B = append(e.buf.B, value...)
}

// Bytes patches the total length at the beginning of the buffer and returns
// a copy of the encoded data that outlives Release.
func (e *Encoder) Bytes() []byte {
	binary.LittleEndian.PutUint32(e.buf.B[0:], uint32(len(e.buf.B)))
	out := make([]byte, len(e.buf.B))
	copy(out, e.buf.B)
	return out
}
