//go:build unix

package ipc

import (
	"os"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"
)

// newSocket creates an AF_UNIX socket that is non-blocking and close-on-exec.
func newSocket() (int, error) {
	if socketFlags != 0 {
		return unix.Socket(unix.AF_UNIX, socketType|socketFlags, 0)
	}

	syscall.ForkLock.RLock()
	fd, err := unix.Socket(unix.AF_UNIX, socketType, 0)
	if err == nil {
		unix.CloseOnExec(fd)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// newSocketPair creates a connected pair of AF_UNIX sockets, both
// non-blocking and close-on-exec.
func newSocketPair() ([2]int, error) {
	if socketFlags != 0 {
		return unix.Socketpair(unix.AF_UNIX, socketType|socketFlags, 0)
	}

	syscall.ForkLock.RLock()
	fds, err := unix.Socketpair(unix.AF_UNIX, socketType, 0)
	if err == nil {
		unix.CloseOnExec(fds[0])
		unix.CloseOnExec(fds[1])
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return fds, err
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return fds, err
		}
	}
	return fds, nil
}

// setInheritable toggles FD_CLOEXEC so the descriptor survives exec().
func setInheritable(fd int, inheritable bool) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return err
	}
	if inheritable {
		flags &^= unix.FD_CLOEXEC
	} else {
		flags |= unix.FD_CLOEXEC
	}
	_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags)
	return err
}

// dupFile duplicates the descriptor behind f with close-on-exec set.
func dupFile(f *os.File) (int, error) {
	fd, err := ignoreEINTR(func() (int, error) {
		return unix.FcntlInt(f.Fd(), unix.F_DUPFD_CLOEXEC, 0)
	})
	runtime.KeepAlive(f)
	return fd, err
}

// waitFor blocks until fd reports one of events, or hangs up.
func waitFor(fd int, events int16) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	_, err := ignoreEINTR(func() (int, error) {
		return unix.Poll(fds, -1)
	})
	return err
}

func sockaddr(address string) *unix.SockaddrUnix {
	return &unix.SockaddrUnix{Name: address}
}

// sendRecord writes buf (and fds as SCM_RIGHTS) in a single sendmsg call.
// A short write is reported as EMSGSIZE: messages are never split.
func sendRecord(fd int, buf []byte, fds []int) error {
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	for {
		n, err := ignoreEINTR(func() (int, error) {
			return unix.SendmsgN(fd, buf, oob, nil, sendFlags)
		})
		if err == unix.EAGAIN {
			if err := waitFor(fd, unix.POLLOUT); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if n != len(buf) {
			return unix.EMSGSIZE
		}
		return nil
	}
}

// recvRecord reads exactly size bytes. On SOCK_SEQPACKET this is one record
// and any size mismatch is a protocol error. When wantFD is set exactly one
// descriptor must accompany the data. When block is false a missing record
// is reported instead of waited for.
func recvRecord(op string, fd int, size int, wantFD bool, block bool) ([]byte, *os.File, error) {
	buf := make([]byte, size)
	var oob []byte
	if wantFD {
		oob = make([]byte, unix.CmsgSpace(4))
	}

	var ancillary *os.File
	fail := func(err error) ([]byte, *os.File, error) {
		if ancillary != nil {
			ancillary.Close()
		}
		return nil, nil, err
	}

	got := 0
	for got < size {
		n, oobn, rflags, _, err := unix.Recvmsg(fd, buf[got:], oob, recvFlags)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			if !block && got == 0 {
				return fail(newError(ReceptionFailure, op, err))
			}
			if err := waitFor(fd, unix.POLLIN); err != nil {
				return fail(newError(ReceptionFailure, op, err))
			}
			continue
		}
		if err != nil {
			if err == unix.ECONNRESET {
				return fail(newError(Disconnected, op, err))
			}
			return fail(newError(ReceptionFailure, op, err))
		}

		if oobn > 0 {
			f, ferr := parseRights(oob[:oobn])
			if ferr != nil {
				return fail(badMessage(op, InvalidData, "%v", ferr))
			}
			ancillary = f
			oob = nil
		}
		if rflags&unix.MSG_CTRUNC != 0 {
			return fail(badMessage(op, Truncated, "control data truncated"))
		}
		if n == 0 {
			if got == 0 {
				return fail(newError(Disconnected, op, nil))
			}
			return fail(badMessage(op, InvalidData, "got %d of %d bytes", got, size))
		}
		got += n

		if socketType == unix.SOCK_SEQPACKET {
			if rflags&unix.MSG_TRUNC != 0 {
				return fail(badMessage(op, Truncated, "record longer than %d bytes", size))
			}
			if got != size {
				return fail(badMessage(op, InvalidData, "got %d of %d bytes", got, size))
			}
		}
	}

	if wantFD && ancillary == nil {
		return fail(badMessage(op, MissingAncillary, "no descriptor received"))
	}
	return buf, ancillary, nil
}

// parseRights extracts exactly one descriptor from a control message buffer.
// Extra descriptors are closed.
func parseRights(oob []byte) (*os.File, error) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, err
	}

	var fds []int
	for i := range msgs {
		rights, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			continue
		}
		fds = append(fds, rights...)
	}
	if len(fds) != 1 {
		for _, fd := range fds {
			unix.Close(fd)
		}
		return nil, unix.EBADMSG
	}
	if recvFlags == 0 {
		unix.CloseOnExec(fds[0])
	}
	return os.NewFile(uintptr(fds[0]), "ancillary"), nil
}
