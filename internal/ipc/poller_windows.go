//go:build windows

package ipc

import (
	"errors"

	"golang.org/x/sys/windows"
)

// maxWaitObjects is the WaitForMultipleObjects limit; one slot belongs to
// the listener.
const maxWaitObjects = 64

// WaitForEvents arms a header read on every connector and blocks until the
// listener or any connector signals.
func WaitForEvents(listener *Listener, connectors []*Connector) ([]Event, error) {
	if len(connectors)+1 > maxWaitObjects {
		return nil, newError(WaitingFailure, "wait", windows.ERROR_INVALID_PARAMETER)
	}

	var events []Event
	handles := make([]windows.Handle, 0, len(connectors)+1)
	handles = append(handles, listener.event)
	for i, c := range connectors {
		// A pipe that cannot be read from is treated as gone.
		if err := c.SchedRecvHeader(); err != nil {
			events = append(events, DisconnectEvent{Index: i})
		}
		handles = append(handles, c.event)
	}
	if len(events) > 0 {
		return events, nil
	}

	s, err := windows.WaitForMultipleObjects(handles, false, windows.INFINITE)
	if err != nil {
		return nil, newError(WaitingFailure, "wait", err)
	}
	i := int(s - windows.WAIT_OBJECT_0)
	if i < 0 || i >= len(handles) {
		return nil, newError(WaitingFailure, "wait", windows.ERROR_INVALID_DATA)
	}

	// Only the lowest signaled object is reported; the others stay signaled
	// and are picked up by the next call.
	if i == 0 {
		c, err := listener.Accept()
		if err != nil {
			return nil, err
		}
		return []Event{ConnectEvent{Connector: c}}, nil
	}

	index := i - 1
	hdr, err := connectors[index].CollectHeader()
	switch {
	case err == nil:
		events = append(events, HeaderEvent{Index: index, Header: hdr})
	case errors.Is(err, ErrBadMessage):
		events = append(events, MalformedEvent{Index: index, Err: err})
	case errors.Is(err, windows.ERROR_IO_INCOMPLETE):
	default:
		events = append(events, DisconnectEvent{Index: index})
	}
	return events, nil
}
