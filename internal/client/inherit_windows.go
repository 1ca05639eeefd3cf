//go:build windows

package client

import (
	"os/exec"
	"strconv"
	"syscall"

	"github.com/mozilla/gecko-dev-sub036/internal/ipc"
)

// inheritEndpoints marks both handles inheritable and restricts inheritance
// to them. Handle values are the same in the child.
func inheritEndpoints(cmd *exec.Cmd, l *ipc.Listener, server *ipc.Connector) (func(), error) {
	if err := l.SetInheritable(true); err != nil {
		return nil, err
	}
	if err := server.SetInheritable(true); err != nil {
		return nil, err
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{
		AdditionalInheritedHandles: []syscall.Handle{
			syscall.Handle(l.Handle()),
			syscall.Handle(server.Handle()),
		},
	}
	cmd.Args = append(cmd.Args,
		"-listener-fd", strconv.FormatUint(uint64(l.Handle()), 10),
		"-endpoint-fd", strconv.FormatUint(uint64(server.Handle()), 10))
	return func() {}, nil
}
