//go:build unix

package ipc

import (
	"os"

	"golang.org/x/sys/unix"
)

// NewChannel creates a listener keyed by the current PID plus a socketpair.
func NewChannel() (*Channel, error) {
	listener, err := NewListener(os.Getpid())
	if err != nil {
		return nil, err
	}

	fds, err := newSocketPair()
	if err != nil {
		listener.Close()
		return nil, newError(System, "socketpair", err)
	}

	server, err := FromFdInheritable(fds[0])
	if err != nil {
		listener.Close()
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, err
	}

	return &Channel{
		listener: listener,
		server:   server,
		client:   newConnector(fds[1]),
	}, nil
}
