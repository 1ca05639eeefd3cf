//go:build windows

package ipc

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// NewChannel creates a listener keyed by the current PID plus a private,
// already connected pipe pair.
func NewChannel() (*Channel, error) {
	pid := os.Getpid()
	listener, err := NewListener(pid)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf(`\\.\pipe\%s.channel.%d`, SocketName(pid), nextConnectorID())
	serverHandle, err := createPipeInstance(name, true)
	if err != nil {
		listener.Close()
		return nil, newError(System, "create pipe "+name, err)
	}
	clientHandle, err := openPipe(name)
	if err != nil {
		listener.Close()
		windows.CloseHandle(serverHandle)
		return nil, newError(System, "open pipe "+name, err)
	}

	server, err := newConnector(serverHandle, true)
	if err != nil {
		listener.Close()
		windows.CloseHandle(serverHandle)
		windows.CloseHandle(clientHandle)
		return nil, err
	}
	client, err := newConnector(clientHandle, false)
	if err != nil {
		listener.Close()
		server.Close()
		windows.CloseHandle(clientHandle)
		return nil, err
	}
	if err := server.SetInheritable(true); err != nil {
		listener.Close()
		server.Close()
		client.Close()
		return nil, err
	}
	return &Channel{listener: listener, server: server, client: client}, nil
}
