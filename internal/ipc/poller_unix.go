//go:build unix

package ipc

import (
	"errors"

	"golang.org/x/sys/unix"
)

// WaitForEvents blocks until the listener or one of the connectors becomes
// ready and returns everything observed, listener first and then connectors
// in slice order. The slice is only borrowed for the duration of the call.
func WaitForEvents(listener *Listener, connectors []*Connector) ([]Event, error) {
	pollfds := make([]unix.PollFd, 0, len(connectors)+1)
	pollfds = append(pollfds, unix.PollFd{Fd: int32(listener.fd), Events: unix.POLLIN})
	for _, c := range connectors {
		pollfds = append(pollfds, unix.PollFd{Fd: int32(c.fd), Events: unix.POLLIN})
	}

	_, err := ignoreEINTR(func() (int, error) {
		return unix.Poll(pollfds, -1)
	})
	if err != nil {
		return nil, newError(WaitingFailure, "poll", err)
	}

	var events []Event
	for i, pfd := range pollfds {
		if i == 0 {
			if pfd.Revents&(unix.POLLHUP|unix.POLLNVAL) != 0 {
				// The listener never hangs up on its own.
				return nil, newError(WaitingFailure, "poll listener", unix.EFAULT)
			}
			if pfd.Revents&unix.POLLIN != 0 {
				c, err := listener.Accept()
				if err != nil {
					if acceptRetryable(err) {
						continue
					}
					return nil, err
				}
				events = append(events, ConnectEvent{Connector: c})
			}
			continue
		}

		index := i - 1
		hangup := pfd.Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0
		if pfd.Revents&unix.POLLIN != 0 {
			h, err := connectors[index].RecvHeader()
			switch {
			case err == nil:
				events = append(events, HeaderEvent{Index: index, Header: h})
			case errors.Is(err, ErrBadMessage):
				events = append(events, MalformedEvent{Index: index, Err: err})
			case errors.Is(err, unix.EAGAIN):
				// Spurious wakeup, try again next cycle.
			default:
				// A socket that is readable but fails to read is gone.
				hangup = true
			}
		}
		if hangup {
			events = append(events, DisconnectEvent{Index: index})
		}
	}
	return events, nil
}

// acceptRetryable reports whether a failed accept leaves the listener usable.
// A client that connects and goes away before being accepted yields
// ECONNABORTED.
func acceptRetryable(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.ECONNABORTED)
}
