//go:build unix && !linux

package ipc

import (
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	// SOCK_SEQPACKET is not available for AF_UNIX everywhere; stream sockets
	// are read with exact-size loops instead.
	socketType  = unix.SOCK_STREAM
	socketFlags = 0
	recvFlags   = 0
	sendFlags   = 0
)

func acceptSocket(fd int) (int, error) {
	syscall.ForkLock.RLock()
	nfd, _, err := unix.Accept(fd)
	if err == nil {
		unix.CloseOnExec(nfd)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return -1, err
	}
	return nfd, nil
}

func peerPID(fd int) (int, error) {
	return 0, unix.ENOTSUP
}
