package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoderDecoder_Fields(t *testing.T) {
	enc := NewEncoder()
	defer enc.Release()

	enc.WriteInt32(-42)
	enc.WriteUint64(1 << 40)
	enc.WriteString("/tmp/crashes")
	enc.WriteBytes([]byte{0xde, 0xad})

	buf := enc.Bytes()
	require.Equal(t, len(buf), int(binary.LittleEndian.Uint32(buf[:4])))

	dec, err := NewDecoder(buf)
	require.NoError(t, err)
	defer dec.Release()

	i32, err := dec.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(-42), i32)

	u64, err := dec.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), u64)

	s, err := dec.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/crashes", s)

	raw, err := dec.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, raw)

	assert.NoError(t, dec.Finish())
}

func TestDecoder_LengthChecks(t *testing.T) {
	_, err := NewDecoder([]byte{1, 0})
	assert.ErrorIs(t, err, ErrTooSmall)

	enc := NewEncoder()
	enc.WriteUint32(5)
	buf := enc.Bytes()
	enc.Release()

	_, err = NewDecoder(buf[:len(buf)-1])
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = NewDecoder(append(buf, 0))
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestDecoder_ShortFieldAndTrailingData(t *testing.T) {
	enc := NewEncoder()
	enc.WriteUint32(10)
	buf := enc.Bytes()
	enc.Release()

	dec, err := NewDecoder(buf)
	require.NoError(t, err)
	defer dec.Release()

	_, err = dec.ReadUint64()
	assert.ErrorIs(t, err, ErrShortBuffer)

	// A string whose declared length runs past the end.
	_, err = dec.ReadString()
	assert.ErrorIs(t, err, ErrShortBuffer)

	dec2, err := NewDecoder(buf)
	require.NoError(t, err)
	defer dec2.Release()
	assert.ErrorIs(t, dec2.Finish(), ErrTrailingData)
}
