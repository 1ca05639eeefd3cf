package messages

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozilla/gecko-dev-sub036/internal/ipc"
)

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()
	payload, err := msg.Encode()
	require.NoError(t, err)
	h := ipc.HeaderFor(msg, payload)
	assert.LessOrEqual(t, int(h.Size), ipc.MaxPayloadSize)

	got, err := Decode(h, payload, msg.Ancillary())
	require.NoError(t, err)
	return got
}

func TestPing_EmptyPayload(t *testing.T) {
	payload, err := (&Ping{}).Encode()
	require.NoError(t, err)
	assert.Empty(t, payload)
	assert.Equal(t, ipc.Header{Kind: ipc.KindPing}, ipc.HeaderFor(&Ping{}, payload))

	_, err = Decode(ipc.Header{Kind: ipc.KindPong, Size: 1}, []byte{0}, nil)
	assert.ErrorIs(t, err, ipc.ErrInvalidData)
}

func TestMessages_RoundTrip(t *testing.T) {
	reply := &TransferMinidumpReply{
		Path:      "/tmp/crashes/0b1c.dmp",
		ExtraPath: "/tmp/crashes/0b1c.extra",
	}
	assert.Equal(t, reply, roundTrip(t, reply))

	auxv := &RegisterAuxvInfo{PID: 77, Auxv: AuxvInfo{
		ProgramHeaderCount:   11,
		ProgramHeaderAddress: 0x5555_0000_0040,
		LinuxGateAddress:     0x7fff_f7fc_1000,
		EntryAddress:         0x5555_0000_1040,
	}}
	assert.Equal(t, auxv, roundTrip(t, auxv))

	gen := &GenerateMinidump{PID: 1234, TID: -1}
	assert.Equal(t, gen, roundTrip(t, gen))

	phc := &SetPHCAddrInfo{PID: 9, AddrInfo: []byte{1, 2, 3}}
	assert.Equal(t, phc, roundTrip(t, phc))
}

func TestRegisterChildProcess_Ancillary(t *testing.T) {
	_, err := (&RegisterChildProcess{PID: 5}).Encode()
	assert.ErrorIs(t, err, ipc.ErrMissingAncillary)

	f, err := os.Create(filepath.Join(t.TempDir(), "endpoint"))
	require.NoError(t, err)

	msg := &RegisterChildProcess{PID: 5, Endpoint: f}
	payload, err := msg.Encode()
	require.NoError(t, err)
	h := ipc.HeaderFor(msg, payload)
	assert.True(t, h.HasAncillary())

	got, err := Decode(h, payload, f)
	require.NoError(t, err)
	assert.Same(t, f, got.Ancillary())
	require.NoError(t, f.Close())

	_, err = Decode(ipc.Header{Kind: ipc.KindRegisterChildProcess, Size: uint32(len(payload))}, payload, nil)
	assert.ErrorIs(t, err, ipc.ErrMissingAncillary)
}

func TestDecode_ClosesAncillaryOnError(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "stray"))
	require.NoError(t, err)

	payload, err := (&UnregisterAuxvInfo{PID: 3}).Encode()
	require.NoError(t, err)
	_, err = Decode(ipc.Header{Kind: ipc.KindUnregisterAuxvInfo, Flags: ipc.FlagAncillary, Size: uint32(len(payload))}, payload, f)
	assert.ErrorIs(t, err, ipc.ErrInvalidData)

	// Already closed by Decode.
	assert.ErrorIs(t, f.Close(), os.ErrClosed)
}

func TestDecode_MalformedBodies(t *testing.T) {
	payload, err := (&GenerateMinidump{PID: 1, TID: 2}).Encode()
	require.NoError(t, err)

	_, err = Decode(ipc.Header{Kind: ipc.KindGenerateMinidump}, payload[:len(payload)-2], nil)
	assert.ErrorIs(t, err, ipc.ErrBadMessage)
	assert.ErrorIs(t, err, ipc.ErrInvalidData)

	// A valid body of the wrong message leaves trailing data.
	_, err = Decode(ipc.Header{Kind: ipc.KindTransferMinidump}, payload, nil)
	assert.ErrorIs(t, err, ipc.ErrInvalidData)

	_, err = New(ipc.Kind(200))
	assert.ErrorIs(t, err, ipc.ErrInvalidKind)
}
