package wire

import (
	"encoding/binary"
	"errors"
	"sync"
)

var (
	ErrTooSmall       = errors.New("buffer too small to contain total length")
	ErrLengthMismatch = errors.New("total length mismatch: data may be corrupted or incomplete")
	ErrShortBuffer    = errors.New("buffer too small to read field")
	ErrTrailingData   = errors.New("trailing data after last field")
)

var decoderPool = sync.Pool{
	New: func() interface{} {
		return &Decoder{}
	},
}

// Decoder reads fields written by an Encoder.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder validates the total length prefix of buf and returns a pooled
// Decoder positioned after it.
func NewDecoder(buf []byte) (*Decoder, error) {
	if len(buf) < 4 {
		return nil, ErrTooSmall
	}
	if int(binary.LittleEndian.Uint32(buf[:4])) != len(buf) {
		return nil, ErrLengthMismatch
	}

	d := decoderPool.Get().(*Decoder)
	d.buf = buf
	d.pos = 4
	return d, nil
}

// Release returns the Decoder to the pool.
func (d *Decoder) Release() {
	d.buf = nil
	d.pos = 0
	decoderPool.Put(d)
}

// Remaining reports how many unread bytes are left.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// Finish fails if any bytes were left unread.
func (d *Decoder) Finish() error {
	if d.Remaining() != 0 {
		return ErrTrailingData
	}
	return nil
}

func (d *Decoder) ReadUint32() (uint32, error) {
	if d.Remaining() < 4 {
		return 0, ErrShortBuffer
	}
	value := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return value, nil
}

func (d *Decoder) ReadInt32() (int32, error) {
	value, err := d.ReadUint32()
	return int32(value), err
}

func (d *Decoder) ReadUint64() (uint64, error) {
	if d.Remaining() < 8 {
		return 0, ErrShortBuffer
	}
	value := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return value, nil
}

// ReadBytes reads a length-prefixed byte slice. The result is a copy.
func (d *Decoder) ReadBytes() ([]byte, error) {
	length, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	if d.Remaining() < int(length) {
		return nil, ErrShortBuffer
	}
	data := make([]byte, length)
	copy(data, d.buf[d.pos:d.pos+int(length)])
	d.pos += int(length)
	return data, nil
}

func (d *Decoder) ReadString() (string, error) {
	length, err := d.ReadUint32()
	if err != nil {
		return "", err
	}
	if d.Remaining() < int(length) {
		return "", ErrShortBuffer
	}
	value := string(d.buf[d.pos : d.pos+int(length)])
	d.pos += int(length)
	return value, nil
}
