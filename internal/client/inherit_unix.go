//go:build unix

package client

import (
	"os"
	"os/exec"

	"github.com/mozilla/gecko-dev-sub036/internal/ipc"
)

// inheritEndpoints passes the listener and the server end as fds 3 and 4.
// The returned function releases the parent's duplicates once the child
// has started.
func inheritEndpoints(cmd *exec.Cmd, l *ipc.Listener, server *ipc.Connector) (func(), error) {
	lf, err := l.File()
	if err != nil {
		return nil, err
	}
	sf, err := server.File()
	if err != nil {
		lf.Close()
		return nil, err
	}

	cmd.ExtraFiles = []*os.File{lf, sf}
	cmd.Args = append(cmd.Args, "-listener-fd", "3", "-endpoint-fd", "4")
	return func() {
		lf.Close()
		sf.Close()
	}, nil
}
