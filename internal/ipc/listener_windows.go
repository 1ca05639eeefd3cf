//go:build windows

package ipc

import (
	"os"

	"golang.org/x/sys/windows"
)

// Listener is the rendezvous named pipe of the helper process. It always
// holds one unconnected pipe instance with an overlapped ConnectNamedPipe
// outstanding once Listen was called.
type Listener struct {
	address string
	handle  windows.Handle
	event   windows.Handle
	ov      windows.Overlapped
	pending bool
}

// NewListener creates the first instance of the named pipe for pid.
func NewListener(pid int) (*Listener, error) {
	address := RendezvousAddress(pid)
	h, err := createPipeInstance(address, true)
	if err != nil {
		return nil, newError(BindFailed, "create pipe "+address, err)
	}
	return newListener(address, h)
}

func newListener(address string, h windows.Handle) (*Listener, error) {
	event, err := newEvent()
	if err != nil {
		windows.CloseHandle(h)
		return nil, newError(System, "create event", err)
	}
	return &Listener{address: address, handle: h, event: event}, nil
}

// ListenerFromHandle wraps an inherited pipe instance for pid.
func ListenerFromHandle(h windows.Handle, pid int) (*Listener, error) {
	if err := setInheritable(h, false); err != nil {
		return nil, newError(System, "set handle information", err)
	}
	return newListener(RendezvousAddress(pid), h)
}

// AdoptListener wraps an inherited listener given by its raw handle value.
func AdoptListener(handle uintptr, pid int) (*Listener, error) {
	return ListenerFromHandle(windows.Handle(handle), pid)
}

// Listen starts an overlapped wait for a client on the current instance.
// A client that connected in between signals the event right away.
func (l *Listener) Listen() error {
	if l.pending {
		return nil
	}
	if err := windows.ResetEvent(l.event); err != nil {
		return newError(System, "reset event", err)
	}
	l.ov = windows.Overlapped{HEvent: l.event}
	err := windows.ConnectNamedPipe(l.handle, &l.ov)
	switch err {
	case windows.ERROR_IO_PENDING:
	case nil, windows.ERROR_PIPE_CONNECTED:
		if err := windows.SetEvent(l.event); err != nil {
			return newError(System, "set event", err)
		}
	default:
		return newError(ListenFailed, "connect named pipe "+l.address, err)
	}
	l.pending = true
	return nil
}

// Accept hands out the connected instance as a Connector, then creates and
// arms a fresh instance for the next client.
func (l *Listener) Accept() (*Connector, error) {
	if !l.pending {
		return nil, newError(AcceptFailed, "accept", windows.ERROR_INVALID_PARAMETER)
	}
	var n uint32
	err := windows.GetOverlappedResult(l.handle, &l.ov, &n, true)
	if err != nil && err != windows.ERROR_PIPE_CONNECTED {
		return nil, newError(AcceptFailed, "accept", err)
	}
	l.pending = false

	next, err := createPipeInstance(l.address, false)
	if err != nil {
		return nil, newError(AcceptFailed, "create pipe "+l.address, err)
	}
	connected := l.handle
	l.handle = next

	c, err := newConnector(connected, true)
	if err != nil {
		windows.CloseHandle(connected)
		return nil, err
	}
	if err := l.Listen(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Address returns the pipe path.
func (l *Listener) Address() string {
	return l.address
}

// Handle returns the pending pipe instance as passed to a child process.
func (l *Listener) Handle() uintptr {
	return uintptr(l.handle)
}

// SetInheritable controls whether the pending instance is inherited.
func (l *Listener) SetInheritable(inheritable bool) error {
	if err := setInheritable(l.handle, inheritable); err != nil {
		return newError(System, "set handle information", err)
	}
	return nil
}

// File returns a duplicate of the pending pipe instance.
func (l *Listener) File() (*os.File, error) {
	var dup windows.Handle
	self := windows.CurrentProcess()
	err := windows.DuplicateHandle(self, l.handle, self, &dup, 0, false, windows.DUPLICATE_SAME_ACCESS)
	if err != nil {
		return nil, newError(System, "duplicate handle", err)
	}
	return os.NewFile(uintptr(dup), "listener"), nil
}

// Close cancels the pending connect and releases the pipe instance.
func (l *Listener) Close() error {
	if l.handle == windows.InvalidHandle {
		return nil
	}
	if l.pending {
		_ = windows.CancelIoEx(l.handle, &l.ov)
		var n uint32
		_ = windows.GetOverlappedResult(l.handle, &l.ov, &n, true)
		l.pending = false
	}
	err := windows.CloseHandle(l.handle)
	l.handle = windows.InvalidHandle
	windows.CloseHandle(l.event)
	return err
}

// Detach closes the local handle. Pipe instances have no name to clean up,
// so it is the same as Close.
func (l *Listener) Detach() error {
	return l.Close()
}
