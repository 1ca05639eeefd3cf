//go:build unix

package ipc

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// listenBacklog is 1: only the client that spawned the helper is expected.
const listenBacklog = 1

// Listener is the bound rendezvous endpoint of the helper process.
type Listener struct {
	fd      int
	address string
}

// NewListener creates and binds the listening socket for pid. Its address is
// a pure function of pid, see RendezvousAddress.
func NewListener(pid int) (*Listener, error) {
	address := RendezvousAddress(pid)

	fd, err := newSocket()
	if err != nil {
		return nil, newError(System, "socket", err)
	}

	if !strings.HasPrefix(address, "@") {
		// Stale socket files from a previous helper would make bind fail.
		_ = os.Remove(address)
	}
	if err := unix.Bind(fd, sockaddr(address)); err != nil {
		unix.Close(fd)
		return nil, newError(BindFailed, "bind "+address, err)
	}
	return &Listener{fd: fd, address: address}, nil
}

// ListenerFromFd wraps an inherited, already bound socket for pid.
func ListenerFromFd(fd int, pid int) (*Listener, error) {
	if err := setInheritable(fd, false); err != nil {
		return nil, newError(System, "fcntl", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, newError(System, "set nonblock", err)
	}
	return &Listener{fd: fd, address: RendezvousAddress(pid)}, nil
}

// AdoptListener wraps an inherited listener given by its raw descriptor.
func AdoptListener(handle uintptr, pid int) (*Listener, error) {
	return ListenerFromFd(int(handle), pid)
}

// Listen marks the socket as accepting connections.
func (l *Listener) Listen() error {
	if err := unix.Listen(l.fd, listenBacklog); err != nil {
		return newError(ListenFailed, "listen "+l.address, err)
	}
	return nil
}

// Accept returns the next pending connection as a Connector.
func (l *Listener) Accept() (*Connector, error) {
	fd, err := ignoreEINTR(func() (int, error) {
		return acceptSocket(l.fd)
	})
	if err != nil {
		return nil, newError(AcceptFailed, "accept", err)
	}
	return newConnector(fd), nil
}

// Address returns the rendezvous address the listener is bound to.
func (l *Listener) Address() string {
	return l.address
}

// Fd returns the listening descriptor. It stays owned by the listener.
func (l *Listener) Fd() int {
	return l.fd
}

// Handle returns the descriptor as passed to a child process.
func (l *Listener) Handle() uintptr {
	return uintptr(l.fd)
}

// SetInheritable controls whether the descriptor survives exec().
func (l *Listener) SetInheritable(inheritable bool) error {
	if err := setInheritable(l.fd, inheritable); err != nil {
		return newError(System, "fcntl", err)
	}
	return nil
}

// File returns a duplicate of the listening socket for handing to a child.
func (l *Listener) File() (*os.File, error) {
	fd, err := ignoreEINTR(func() (int, error) {
		return unix.FcntlInt(uintptr(l.fd), unix.F_DUPFD_CLOEXEC, 0)
	})
	if err != nil {
		return nil, newError(System, "dup", err)
	}
	return os.NewFile(uintptr(fd), "listener"), nil
}

// Close releases the socket and removes its file, if any.
func (l *Listener) Close() error {
	if l.fd < 0 {
		return nil
	}
	err := unix.Close(l.fd)
	l.fd = -1
	if !strings.HasPrefix(l.address, "@") {
		_ = os.Remove(l.address)
	}
	return err
}

// Detach closes the local descriptor but leaves the socket file in place,
// for a parent that handed the listener to a child process.
func (l *Listener) Detach() error {
	if l.fd < 0 {
		return nil
	}
	err := unix.Close(l.fd)
	l.fd = -1
	return err
}
