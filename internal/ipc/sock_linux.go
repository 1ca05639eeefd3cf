//go:build linux

package ipc

import "golang.org/x/sys/unix"

const (
	socketType = unix.SOCK_SEQPACKET
	// Linux sets both flags atomically at creation time.
	socketFlags = unix.SOCK_NONBLOCK | unix.SOCK_CLOEXEC
	recvFlags   = unix.MSG_CMSG_CLOEXEC
	sendFlags   = unix.MSG_NOSIGNAL
)

func acceptSocket(fd int) (int, error) {
	nfd, _, err := unix.Accept4(fd, socketFlags)
	return nfd, err
}

func peerPID(fd int) (int, error) {
	cred, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return 0, err
	}
	return int(cred.Pid), nil
}
