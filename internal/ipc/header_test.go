package ipc

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_EncodeLayout(t *testing.T) {
	h := Header{Kind: KindRegisterChildProcess, Flags: FlagAncillary, Size: 0x01020304}
	buf := h.Encode()
	assert.Equal(t, [HeaderSize]byte{8, 0, 1, 0, 4, 3, 2, 1}, buf)

	got, err := DecodeHeader(buf[:])
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.True(t, got.HasAncillary())
}

func TestDecodeHeader_Rejects(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{"short", []byte{1, 0, 0, 0}, ErrInvalidData},
		{"long", make([]byte, HeaderSize+1), ErrInvalidData},
		{"zero kind", []byte{0, 0, 0, 0, 0, 0, 0, 0}, ErrInvalidKind},
		{"unknown kind", []byte{0xff, 0, 0, 0, 0, 0, 0, 0}, ErrInvalidKind},
		{"unknown flag", []byte{1, 0, 2, 0, 0, 0, 0, 0}, ErrInvalidData},
		{"too large", []byte{1, 0, 0, 0, 0x01, 0x00, 0x01, 0x00}, ErrTooLarge},
		{"ancillary without payload", []byte{8, 0, 1, 0, 0, 0, 0, 0}, ErrInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeHeader(tt.buf)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBadMessage)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "Ping", KindPing.String())
	assert.Equal(t, "SetPHCAddrInfo", KindSetPHCAddrInfo.String())
	assert.Equal(t, "Kind(99)", Kind(99).String())
	assert.False(t, Kind(0).Valid())
	assert.False(t, kindEnd.Valid())
}

func TestValidateOutgoing(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "anc")
	require.NoError(t, err)
	defer f.Close()

	assert.NoError(t, validateOutgoing(Header{Kind: KindPing}, nil, nil))
	assert.ErrorIs(t, validateOutgoing(Header{Kind: KindPing, Size: 3}, []byte{1}, nil), ErrInvalidData)
	assert.ErrorIs(t, validateOutgoing(Header{Kind: 0}, nil, nil), ErrInvalidKind)
	assert.ErrorIs(t, validateOutgoing(Header{Kind: KindPing, Size: MaxPayloadSize + 1},
		make([]byte, MaxPayloadSize+1), nil), ErrTooLarge)
	assert.ErrorIs(t, validateOutgoing(Header{Kind: KindRegisterChildProcess, Size: 1}, []byte{1}, f),
		ErrMissingAncillary)
	assert.ErrorIs(t, validateOutgoing(Header{Kind: KindRegisterChildProcess, Flags: FlagAncillary}, nil, f),
		ErrInvalidData)
}

func TestIPCError_Is(t *testing.T) {
	err := newError(ConnectionFailure, "connect", os.ErrNotExist)
	assert.ErrorIs(t, err, ErrConnectionFailure)
	assert.NotErrorIs(t, err, ErrDisconnected)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, "connect: connection failure: file does not exist", err.Error())

	var ipcErr *IPCError
	require.True(t, errors.As(error(err), &ipcErr))
	assert.Equal(t, ConnectionFailure, ipcErr.Kind)

	assert.True(t, IsDisconnect(newError(Disconnected, "recv", nil)))
	assert.False(t, IsDisconnect(err))
}
