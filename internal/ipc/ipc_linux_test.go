//go:build linux

package ipc

import (
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// testPID returns a made-up PID so tests do not collide with a real helper
// in the abstract namespace.
func testPID() int {
	return 10_000_000 + rand.Intn(1_000_000)
}

func newTestListener(t *testing.T) (*Listener, int) {
	t.Helper()
	pid := testPID()
	l, err := NewListener(pid)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	require.NoError(t, l.Listen())
	return l, pid
}

func acceptOne(t *testing.T, l *Listener) *Connector {
	t.Helper()
	events, err := WaitForEvents(l, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev, ok := events[0].(ConnectEvent)
	require.True(t, ok, "got %v", events[0])
	t.Cleanup(func() { ev.Connector.Close() })
	return ev.Connector
}

func TestWaitForEvents_ConnectHeaderDisconnect(t *testing.T) {
	l, pid := newTestListener(t)
	assert.Equal(t, "@gecko-crash-helper-pipe.", l.Address()[:25])

	client, err := Connect(pid)
	require.NoError(t, err)
	defer client.Close()

	server := acceptOne(t, l)
	conns := []*Connector{server}

	require.NoError(t, client.Send(Header{Kind: KindPing}, nil, nil))
	events, err := WaitForEvents(l, conns)
	require.NoError(t, err)
	require.Equal(t, []Event{HeaderEvent{Index: 0, Header: Header{Kind: KindPing}}}, events)

	payload, ancillary, err := server.RecvPayload(Header{Kind: KindPing})
	require.NoError(t, err)
	assert.Nil(t, payload)
	assert.Nil(t, ancillary)

	require.NoError(t, client.Close())
	events, err = WaitForEvents(l, conns)
	require.NoError(t, err)
	assert.Equal(t, []Event{DisconnectEvent{Index: 0}}, events)
}

func TestConnect_NoListener(t *testing.T) {
	_, err := Connect(testPID())
	assert.ErrorIs(t, err, ErrConnectionFailure)

	// Bound but not yet listening is refused as well.
	pid := testPID()
	l, err := NewListener(pid)
	require.NoError(t, err)
	defer l.Close()
	_, err = Connect(pid)
	assert.ErrorIs(t, err, ErrConnectionFailure)
}

func TestNewListener_AddressInUse(t *testing.T) {
	l, pid := newTestListener(t)
	_, err := NewListener(pid)
	assert.ErrorIs(t, err, ErrBindFailed)
	assert.ErrorIs(t, err, unix.EADDRINUSE)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
}

func TestSend_PayloadRoundTrip(t *testing.T) {
	l, pid := newTestListener(t)
	client, err := Connect(pid)
	require.NoError(t, err)
	defer client.Close()
	server := acceptOne(t, l)

	payload := []byte("/var/crash/reports")
	require.NoError(t, client.Send(Header{Kind: KindSetCrashReportPath, Size: uint32(len(payload))}, payload, nil))

	h, got, ancillary, err := server.RecvMessage()
	require.NoError(t, err)
	assert.Equal(t, KindSetCrashReportPath, h.Kind)
	assert.Equal(t, payload, got)
	assert.Nil(t, ancillary)

	// And the other direction.
	require.NoError(t, server.Send(Header{Kind: KindPong}, nil, nil))
	h, _, _, err = client.RecvMessage()
	require.NoError(t, err)
	assert.Equal(t, KindPong, h.Kind)
}

func TestSend_AncillaryFile(t *testing.T) {
	l, pid := newTestListener(t)
	client, err := Connect(pid)
	require.NoError(t, err)
	defer client.Close()
	server := acceptOne(t, l)

	path := filepath.Join(t.TempDir(), "shared")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	payload := []byte{1, 2, 3, 4}
	h := Header{Kind: KindRegisterChildProcess, Flags: FlagAncillary, Size: uint32(len(payload))}
	require.NoError(t, client.Send(h, payload, f))

	events, err := WaitForEvents(l, []*Connector{server})
	require.NoError(t, err)
	require.Equal(t, []Event{HeaderEvent{Index: 0, Header: h}}, events)

	got, received, err := server.RecvPayload(h)
	require.NoError(t, err)
	require.NotNil(t, received)
	defer received.Close()
	assert.Equal(t, payload, got)

	flags, err := unix.FcntlInt(received.Fd(), unix.F_GETFD, 0)
	require.NoError(t, err)
	assert.NotZero(t, flags&unix.FD_CLOEXEC)

	data, err := io.ReadAll(received)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestRecvPayload_LengthMismatch(t *testing.T) {
	l, pid := newTestListener(t)
	client, err := Connect(pid)
	require.NoError(t, err)
	defer client.Close()
	server := acceptOne(t, l)

	// Declared 10, sent 4.
	h := Header{Kind: KindSetCrashReportPath, Size: 10}
	hdr := h.Encode()
	require.NoError(t, sendRecord(client.fd, hdr[:], nil))
	require.NoError(t, sendRecord(client.fd, []byte("abcd"), nil))
	_, _, _, err = server.RecvMessage()
	assert.ErrorIs(t, err, ErrBadMessage)
	assert.ErrorIs(t, err, ErrInvalidData)

	// Declared 4, sent 10.
	h = Header{Kind: KindSetCrashReportPath, Size: 4}
	hdr = h.Encode()
	require.NoError(t, sendRecord(client.fd, hdr[:], nil))
	require.NoError(t, sendRecord(client.fd, []byte("abcdefghij"), nil))
	_, _, _, err = server.RecvMessage()
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestRecvPayload_MissingAncillary(t *testing.T) {
	l, pid := newTestListener(t)
	client, err := Connect(pid)
	require.NoError(t, err)
	defer client.Close()
	server := acceptOne(t, l)

	h := Header{Kind: KindRegisterChildProcess, Flags: FlagAncillary, Size: 1}
	hdr := h.Encode()
	require.NoError(t, sendRecord(client.fd, hdr[:], nil))
	require.NoError(t, sendRecord(client.fd, []byte{0}, nil))
	_, _, _, err = server.RecvMessage()
	assert.ErrorIs(t, err, ErrMissingAncillary)
}

func TestWaitForEvents_Malformed(t *testing.T) {
	l, pid := newTestListener(t)
	client, err := Connect(pid)
	require.NoError(t, err)
	defer client.Close()
	server := acceptOne(t, l)
	conns := []*Connector{server}

	require.NoError(t, sendRecord(client.fd, []byte{0xff, 0xff, 0, 0, 0, 0, 0, 0}, nil))
	events, err := WaitForEvents(l, conns)
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev, ok := events[0].(MalformedEvent)
	require.True(t, ok, "got %v", events[0])
	assert.Equal(t, 0, ev.Index)
	assert.ErrorIs(t, ev.Err, ErrInvalidKind)

	require.NoError(t, sendRecord(client.fd, []byte{1, 0, 0}, nil))
	events, err = WaitForEvents(l, conns)
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev, ok = events[0].(MalformedEvent)
	require.True(t, ok, "got %v", events[0])
	assert.ErrorIs(t, ev.Err, ErrInvalidData)

	// The connection is still usable afterwards.
	require.NoError(t, client.Send(Header{Kind: KindPing}, nil, nil))
	events, err = WaitForEvents(l, conns)
	require.NoError(t, err)
	assert.Equal(t, []Event{HeaderEvent{Index: 0, Header: Header{Kind: KindPing}}}, events)
}

// A backlog of one does not stop the kernel from completing a second
// connection; it is accepted on the next cycle as another connector.
func TestWaitForEvents_SecondClientBeyondBacklog(t *testing.T) {
	l, pid := newTestListener(t)

	first, err := Connect(pid)
	require.NoError(t, err)
	defer first.Close()
	second, err := Connect(pid)
	require.NoError(t, err)
	defer second.Close()

	var conns []*Connector
	for len(conns) < 2 {
		events, err := WaitForEvents(l, conns)
		require.NoError(t, err)
		for _, ev := range events {
			c, ok := ev.(ConnectEvent)
			require.True(t, ok, "got %v", ev)
			conns = append(conns, c.Connector)
		}
	}
	defer conns[0].Close()
	defer conns[1].Close()
	assert.NotEqual(t, conns[0].ID(), conns[1].ID())
}

func TestConnector_PassedAsAncillary(t *testing.T) {
	l, pid := newTestListener(t)
	client, err := Connect(pid)
	require.NoError(t, err)
	defer client.Close()
	server := acceptOne(t, l)

	fds, err := newSocketPair()
	require.NoError(t, err)
	child, err := FromFd(fds[0])
	require.NoError(t, err)
	defer child.Close()
	remote, err := FromFd(fds[1])
	require.NoError(t, err)

	f, err := remote.File()
	require.NoError(t, err)
	require.NoError(t, client.Send(Header{Kind: KindRegisterChildProcess, Flags: FlagAncillary, Size: 1}, []byte{0}, f))
	f.Close()
	remote.Close()

	_, _, received, err := server.RecvMessage()
	require.NoError(t, err)
	adopted, err := FromFile(received)
	require.NoError(t, err)
	defer adopted.Close()

	require.NoError(t, child.Send(Header{Kind: KindPing}, nil, nil))
	h, _, _, err := adopted.RecvMessage()
	require.NoError(t, err)
	assert.Equal(t, KindPing, h.Kind)

	pid2, err := adopted.PeerPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid2)
}

func TestChannel_DeconstructOnce(t *testing.T) {
	ch, err := NewChannel()
	require.NoError(t, err)

	listener, server, client, err := ch.Deconstruct()
	require.NoError(t, err)
	defer listener.Close()
	defer server.Close()
	defer client.Close()

	_, _, _, err = ch.Deconstruct()
	assert.ErrorIs(t, err, ErrChannelConsumed)
	assert.NoError(t, ch.Close())

	flags, err := unix.FcntlInt(uintptr(server.Fd()), unix.F_GETFD, 0)
	require.NoError(t, err)
	assert.Zero(t, flags&unix.FD_CLOEXEC)
	flags, err = unix.FcntlInt(uintptr(client.Fd()), unix.F_GETFD, 0)
	require.NoError(t, err)
	assert.NotZero(t, flags&unix.FD_CLOEXEC)

	require.NoError(t, client.Send(Header{Kind: KindPing}, nil, nil))
	h, _, _, err := server.RecvMessage()
	require.NoError(t, err)
	assert.Equal(t, KindPing, h.Kind)
}

func TestConnector_CloseTwice(t *testing.T) {
	fds, err := newSocketPair()
	require.NoError(t, err)
	a, err := FromFd(fds[0])
	require.NoError(t, err)
	b, err := FromFd(fds[1])
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Close())
	assert.NoError(t, a.Close())

	_, err = b.RecvHeader()
	assert.True(t, IsDisconnect(err), "%v", err)
	assert.True(t, IsDisconnect(b.Send(Header{Kind: KindPing}, nil, nil)))
}
