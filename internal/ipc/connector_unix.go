//go:build unix

package ipc

import (
	"os"
	"runtime"
	"strconv"

	"golang.org/x/sys/unix"
)

// Connector is one end of a bidirectional message channel. It is owned by a
// single goroutine at a time.
type Connector struct {
	id uint64
	fd int
}

func newConnector(fd int) *Connector {
	return &Connector{id: nextConnectorID(), fd: fd}
}

// Connect opens a client connection to the helper listening for pid. It
// fails with ConnectionFailure if nobody is listening yet; retrying is up to
// the caller.
func Connect(pid int) (*Connector, error) {
	fd, err := newSocket()
	if err != nil {
		return nil, newError(System, "socket", err)
	}

	address := RendezvousAddress(pid)
	err = ignoreEINTRErr(func() error {
		return unix.Connect(fd, sockaddr(address))
	})
	if err == unix.EINPROGRESS {
		err = waitConnected(fd)
	}
	if err != nil {
		unix.Close(fd)
		return nil, newError(ConnectionFailure, "connect "+address, err)
	}
	return newConnector(fd), nil
}

func waitConnected(fd int) error {
	if err := waitFor(fd, unix.POLLOUT); err != nil {
		return err
	}
	soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if soerr != 0 {
		return unix.Errno(soerr)
	}
	return nil
}

// FromFd wraps an existing connected socket. The connector takes ownership
// of fd and marks it non-blocking and close-on-exec.
func FromFd(fd int) (*Connector, error) {
	return fromFd(fd, false)
}

// FromFdInheritable is like FromFd but clears close-on-exec so the
// descriptor survives exec().
func FromFdInheritable(fd int) (*Connector, error) {
	return fromFd(fd, true)
}

func fromFd(fd int, inheritable bool) (*Connector, error) {
	if err := setInheritable(fd, inheritable); err != nil {
		return nil, newError(System, "fcntl", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, newError(System, "set nonblock", err)
	}
	return newConnector(fd), nil
}

// FromFile adopts the socket behind f, which is closed.
func FromFile(f *os.File) (*Connector, error) {
	defer f.Close()
	fd, err := dupFile(f)
	if err != nil {
		return nil, newError(System, "dup", err)
	}
	c, err := FromFd(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return c, nil
}

// AdoptConnector wraps an inherited endpoint given by its raw descriptor.
func AdoptConnector(handle uintptr) (*Connector, error) {
	return FromFd(int(handle))
}

// ID returns the process-wide unique identifier of the connector.
func (c *Connector) ID() uint64 {
	return c.id
}

// Fd returns the underlying descriptor. It stays owned by the connector.
func (c *Connector) Fd() int {
	return c.fd
}

// Handle returns the descriptor as passed to a child process.
func (c *Connector) Handle() uintptr {
	return uintptr(c.fd)
}

// File returns a duplicate of the underlying socket, suitable for
// os/exec ExtraFiles or as ancillary data of another message.
func (c *Connector) File() (*os.File, error) {
	fd, err := ignoreEINTR(func() (int, error) {
		return unix.FcntlInt(uintptr(c.fd), unix.F_DUPFD_CLOEXEC, 0)
	})
	if err != nil {
		return nil, newError(System, "dup", err)
	}
	return os.NewFile(uintptr(fd), "connector-"+strconv.FormatUint(c.id, 10)), nil
}

// SetInheritable controls whether the descriptor survives exec().
func (c *Connector) SetInheritable(inheritable bool) error {
	if err := setInheritable(c.fd, inheritable); err != nil {
		return newError(System, "fcntl", err)
	}
	return nil
}

// PeerPID returns the process ID of the connected peer where the platform
// exposes socket credentials.
func (c *Connector) PeerPID() (int, error) {
	pid, err := peerPID(c.fd)
	if err != nil {
		return 0, newError(System, "peer credentials", err)
	}
	return pid, nil
}

// Send writes header and payload as two records. If ancillary is non-nil a
// duplicate of its descriptor travels with the payload record; the caller
// keeps ownership of ancillary.
func (c *Connector) Send(h Header, payload []byte, ancillary *os.File) error {
	if err := validateOutgoing(h, payload, ancillary); err != nil {
		return err
	}

	hdr := h.Encode()
	if err := sendRecord(c.fd, hdr[:], nil); err != nil {
		return c.sendError(err)
	}
	if len(payload) == 0 {
		return nil
	}

	var fds []int
	if ancillary != nil {
		fds = []int{int(ancillary.Fd())}
	}
	err := sendRecord(c.fd, payload, fds)
	runtime.KeepAlive(ancillary)
	if err != nil {
		return c.sendError(err)
	}
	return nil
}

func (c *Connector) sendError(err error) error {
	if err == unix.EPIPE || err == unix.ECONNRESET {
		return newError(Disconnected, "send", err)
	}
	return newError(TransmissionFailure, "send", err)
}

// RecvHeader reads a header without blocking. It is meant to be called once
// the poller reported the connector readable.
func (c *Connector) RecvHeader() (Header, error) {
	buf, _, err := recvRecord("recv header", c.fd, HeaderSize, false, false)
	if err != nil {
		return Header{}, err
	}
	return DecodeHeader(buf)
}

// RecvPayload reads the payload announced by h, waiting for it if needed.
func (c *Connector) RecvPayload(h Header) ([]byte, *os.File, error) {
	if h.Size == 0 {
		return nil, nil, nil
	}
	return recvRecord("recv payload", c.fd, int(h.Size), h.HasAncillary(), true)
}

// RecvMessage blocks until a complete message is available.
func (c *Connector) RecvMessage() (Header, []byte, *os.File, error) {
	buf, _, err := recvRecord("recv header", c.fd, HeaderSize, false, true)
	if err != nil {
		return Header{}, nil, nil, err
	}
	h, err := DecodeHeader(buf)
	if err != nil {
		return Header{}, nil, nil, err
	}
	payload, ancillary, err := c.RecvPayload(h)
	if err != nil {
		return Header{}, nil, nil, err
	}
	return h, payload, ancillary, nil
}

// Close releases the socket. It is safe to call more than once.
func (c *Connector) Close() error {
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	return err
}
