//go:build windows

package ipc

import (
	"encoding/binary"
	"os"
	"runtime"
	"strconv"

	"github.com/mozilla/gecko-dev-sub036/internal/syslog"
	"golang.org/x/sys/windows"
)

// Connector is one end of a bidirectional message channel over a named pipe
// instance. It is owned by a single goroutine at a time.
type Connector struct {
	id     uint64
	handle windows.Handle
	server bool

	// event signals completion of the scheduled header read; ioEvent is used
	// for every other overlapped operation.
	event   windows.Handle
	ioEvent windows.Handle

	headerOv      windows.Overlapped
	headerBuf     [HeaderSize]byte
	headerPending bool

	peer windows.Handle
}

func newConnector(h windows.Handle, server bool) (*Connector, error) {
	event, err := newEvent()
	if err != nil {
		return nil, newError(System, "create event", err)
	}
	ioEvent, err := newEvent()
	if err != nil {
		windows.CloseHandle(event)
		return nil, newError(System, "create event", err)
	}
	return &Connector{
		id:      nextConnectorID(),
		handle:  h,
		server:  server,
		event:   event,
		ioEvent: ioEvent,
	}, nil
}

// Connect opens a client connection to the helper listening for pid. It
// fails with ConnectionFailure if the pipe does not exist or is busy.
func Connect(pid int) (*Connector, error) {
	name := RendezvousAddress(pid)
	h, err := openPipe(name)
	if err != nil {
		return nil, newError(ConnectionFailure, "connect "+name, err)
	}
	c, err := newConnector(h, false)
	if err != nil {
		windows.CloseHandle(h)
		return nil, err
	}
	return c, nil
}

// FromHandle wraps an existing connected pipe handle, taking ownership.
func FromHandle(h windows.Handle, server bool) (*Connector, error) {
	if err := setInheritable(h, false); err != nil {
		return nil, newError(System, "set handle information", err)
	}
	return newConnector(h, server)
}

// FromFile adopts the pipe behind f, which is closed.
func FromFile(f *os.File) (*Connector, error) {
	defer f.Close()
	var dup windows.Handle
	self := windows.CurrentProcess()
	err := windows.DuplicateHandle(self, windows.Handle(f.Fd()), self, &dup, 0, false,
		windows.DUPLICATE_SAME_ACCESS)
	runtime.KeepAlive(f)
	if err != nil {
		return nil, newError(System, "duplicate handle", err)
	}
	c, err := newConnector(dup, false)
	if err != nil {
		windows.CloseHandle(dup)
		return nil, err
	}
	return c, nil
}

// AdoptConnector wraps an inherited endpoint given by its raw handle value.
// Inherited endpoints are always the server end of a Channel.
func AdoptConnector(handle uintptr) (*Connector, error) {
	return FromHandle(windows.Handle(handle), true)
}

// ID returns the process-wide unique identifier of the connector.
func (c *Connector) ID() uint64 {
	return c.id
}

// Handle returns the pipe handle value as passed to a child process.
func (c *Connector) Handle() uintptr {
	return uintptr(c.handle)
}

// File returns a duplicate of the pipe handle, suitable for passing as
// ancillary data of another message.
func (c *Connector) File() (*os.File, error) {
	var dup windows.Handle
	self := windows.CurrentProcess()
	err := windows.DuplicateHandle(self, c.handle, self, &dup, 0, false, windows.DUPLICATE_SAME_ACCESS)
	if err != nil {
		return nil, newError(System, "duplicate handle", err)
	}
	return os.NewFile(uintptr(dup), "connector-"+strconv.FormatUint(c.id, 10)), nil
}

// SetInheritable controls whether the handle is inherited by child processes.
func (c *Connector) SetInheritable(inheritable bool) error {
	if err := setInheritable(c.handle, inheritable); err != nil {
		return newError(System, "set handle information", err)
	}
	return nil
}

// PeerPID returns the process ID at the other end of the pipe.
func (c *Connector) PeerPID() (int, error) {
	pid, err := namedPipePeerPID(c.handle, c.server)
	if err != nil {
		return 0, newError(System, "peer process id", err)
	}
	return int(pid), nil
}

func (c *Connector) peerProcess() (windows.Handle, error) {
	if c.peer != 0 {
		return c.peer, nil
	}
	pid, err := namedPipePeerPID(c.handle, c.server)
	if err != nil {
		return 0, err
	}
	peer, err := windows.OpenProcess(windows.PROCESS_DUP_HANDLE, false, pid)
	if err != nil {
		return 0, err
	}
	c.peer = peer
	return peer, nil
}

func (c *Connector) write(buf []byte) error {
	n, err := overlappedIO(c.handle, c.ioEvent, func(ov *windows.Overlapped) error {
		return windows.WriteFile(c.handle, buf, nil, ov)
	})
	if err != nil {
		if err == windows.ERROR_BROKEN_PIPE || err == windows.ERROR_NO_DATA {
			return newError(Disconnected, "send", err)
		}
		return newError(TransmissionFailure, "send", err)
	}
	if int(n) != len(buf) {
		return newError(TransmissionFailure, "send", windows.ERROR_MORE_DATA)
	}
	return nil
}

// Send writes header and payload as two pipe messages. A non-nil ancillary
// handle is duplicated into the peer process and its value follows as a
// third message; the caller keeps ownership of ancillary.
func (c *Connector) Send(h Header, payload []byte, ancillary *os.File) error {
	if err := validateOutgoing(h, payload, ancillary); err != nil {
		return err
	}

	var peer, remote windows.Handle
	if ancillary != nil {
		var err error
		peer, err = c.peerProcess()
		if err != nil {
			return newError(TransmissionFailure, "open peer process", err)
		}
		err = windows.DuplicateHandle(windows.CurrentProcess(), windows.Handle(ancillary.Fd()),
			peer, &remote, 0, false, windows.DUPLICATE_SAME_ACCESS)
		runtime.KeepAlive(ancillary)
		if err != nil {
			return newError(TransmissionFailure, "duplicate handle", err)
		}
	}

	err := c.writeMessage(h, payload, remote)
	if err != nil && remote != 0 {
		// The peer never learns the value, so reclaim the copy from here.
		closeRemoteHandle(peer, remote)
	}
	return err
}

func (c *Connector) writeMessage(h Header, payload []byte, remote windows.Handle) error {
	hdr := h.Encode()
	if err := c.write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	if err := c.write(payload); err != nil {
		return err
	}
	if remote != 0 {
		var rec [handleRecordSize]byte
		binary.LittleEndian.PutUint64(rec[:], uint64(remote))
		return c.write(rec[:])
	}
	return nil
}

// closeRemoteHandle closes h in the process owning it.
func closeRemoteHandle(process, h windows.Handle) {
	if err := windows.DuplicateHandle(process, h, 0, nil, 0, false,
		windows.DUPLICATE_CLOSE_SOURCE); err != nil {
		syslog.L.Warn().WithErr(err).WithMessage("failed to close handle in peer process").Write()
	}
}

// SchedRecvHeader arms an overlapped read of the next header. Completion is
// signaled on the connector's event and collected with CollectHeader.
func (c *Connector) SchedRecvHeader() error {
	if c.headerPending {
		return nil
	}
	if err := windows.ResetEvent(c.event); err != nil {
		return newError(System, "reset event", err)
	}
	c.headerOv = windows.Overlapped{HEvent: c.event}
	err := windows.ReadFile(c.handle, c.headerBuf[:], nil, &c.headerOv)
	switch err {
	case nil, windows.ERROR_IO_PENDING, windows.ERROR_MORE_DATA:
		c.headerPending = true
		return nil
	case windows.ERROR_BROKEN_PIPE:
		return newError(Disconnected, "recv header", err)
	}
	return newError(ReceptionFailure, "recv header", err)
}

// CollectHeader completes the read armed by SchedRecvHeader.
func (c *Connector) CollectHeader() (Header, error) {
	if !c.headerPending {
		return Header{}, newError(ReceptionFailure, "collect header", windows.ERROR_INVALID_PARAMETER)
	}
	var n uint32
	err := windows.GetOverlappedResult(c.handle, &c.headerOv, &n, false)
	if err == windows.ERROR_IO_INCOMPLETE {
		return Header{}, newError(ReceptionFailure, "collect header", err)
	}
	c.headerPending = false

	switch err {
	case nil:
	case windows.ERROR_BROKEN_PIPE:
		return Header{}, newError(Disconnected, "collect header", err)
	case windows.ERROR_MORE_DATA:
		c.drain()
		return Header{}, badMessage("collect header", Truncated, "record longer than %d bytes", HeaderSize)
	default:
		return Header{}, newError(ReceptionFailure, "collect header", err)
	}
	if n != HeaderSize {
		return Header{}, badMessage("collect header", InvalidData, "got %d of %d bytes", n, HeaderSize)
	}
	return DecodeHeader(c.headerBuf[:])
}

// drain discards the rest of an oversized pipe message.
func (c *Connector) drain() {
	var scratch [512]byte
	for {
		_, err := overlappedIO(c.handle, c.ioEvent, func(ov *windows.Overlapped) error {
			return windows.ReadFile(c.handle, scratch[:], nil, ov)
		})
		if err != windows.ERROR_MORE_DATA {
			return
		}
	}
}

func (c *Connector) readRecord(op string, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := overlappedIO(c.handle, c.ioEvent, func(ov *windows.Overlapped) error {
		return windows.ReadFile(c.handle, buf, nil, ov)
	})
	switch err {
	case nil:
	case windows.ERROR_BROKEN_PIPE:
		return nil, newError(Disconnected, op, err)
	case windows.ERROR_MORE_DATA:
		c.drain()
		return nil, badMessage(op, Truncated, "record longer than %d bytes", size)
	default:
		return nil, newError(ReceptionFailure, op, err)
	}
	if int(n) != size {
		return nil, badMessage(op, InvalidData, "got %d of %d bytes", n, size)
	}
	return buf, nil
}

// RecvHeader reads a header synchronously.
func (c *Connector) RecvHeader() (Header, error) {
	if c.headerPending {
		if _, err := windows.WaitForSingleObject(c.event, windows.INFINITE); err != nil {
			return Header{}, newError(ReceptionFailure, "recv header", err)
		}
		return c.CollectHeader()
	}
	buf, err := c.readRecord("recv header", HeaderSize)
	if err != nil {
		return Header{}, err
	}
	return DecodeHeader(buf)
}

// RecvPayload reads the payload announced by h, and the duplicated handle
// that follows it when h carries ancillary data.
func (c *Connector) RecvPayload(h Header) ([]byte, *os.File, error) {
	if h.Size == 0 {
		return nil, nil, nil
	}
	payload, err := c.readRecord("recv payload", int(h.Size))
	if err != nil {
		return nil, nil, err
	}
	if !h.HasAncillary() {
		return payload, nil, nil
	}
	rec, err := c.readRecord("recv handle", handleRecordSize)
	if err != nil {
		if IsDisconnect(err) {
			return nil, nil, err
		}
		return nil, nil, badMessage("recv handle", MissingAncillary, "%v", err)
	}
	handle := binary.LittleEndian.Uint64(rec)
	if handle == 0 {
		return nil, nil, badMessage("recv handle", MissingAncillary, "null handle")
	}
	return payload, os.NewFile(uintptr(handle), "ancillary"), nil
}

// RecvMessage blocks until a complete message is available.
func (c *Connector) RecvMessage() (Header, []byte, *os.File, error) {
	h, err := c.RecvHeader()
	if err != nil {
		return Header{}, nil, nil, err
	}
	payload, ancillary, err := c.RecvPayload(h)
	if err != nil {
		return Header{}, nil, nil, err
	}
	return h, payload, ancillary, nil
}

// Close cancels pending I/O and releases the pipe, its events and the
// cached peer process handle. It is safe to call more than once.
func (c *Connector) Close() error {
	if c.handle == windows.InvalidHandle {
		return nil
	}
	if c.headerPending {
		_ = windows.CancelIoEx(c.handle, &c.headerOv)
		var n uint32
		_ = windows.GetOverlappedResult(c.handle, &c.headerOv, &n, true)
		c.headerPending = false
	}
	err := windows.CloseHandle(c.handle)
	c.handle = windows.InvalidHandle
	windows.CloseHandle(c.event)
	windows.CloseHandle(c.ioEvent)
	if c.peer != 0 {
		windows.CloseHandle(c.peer)
		c.peer = 0
	}
	return err
}
