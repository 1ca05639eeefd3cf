//go:build windows

package ipc

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	pipeBufferSize = 4096
	pipeOpenMode   = windows.PIPE_ACCESS_DUPLEX | windows.FILE_FLAG_OVERLAPPED
	pipeMode       = windows.PIPE_TYPE_MESSAGE | windows.PIPE_READMODE_MESSAGE |
		windows.PIPE_WAIT | windows.PIPE_REJECT_REMOTE_CLIENTS
	// handleRecordSize is the size of the record carrying a duplicated handle.
	handleRecordSize = 8
)

var (
	modkernel32                     = windows.NewLazySystemDLL("kernel32.dll")
	procGetNamedPipeClientProcessId = modkernel32.NewProc("GetNamedPipeClientProcessId")
	procGetNamedPipeServerProcessId = modkernel32.NewProc("GetNamedPipeServerProcessId")
)

func newEvent() (windows.Handle, error) {
	// Manual reset, initially non-signaled.
	return windows.CreateEvent(nil, 1, 0, nil)
}

func createPipeInstance(name string, first bool) (windows.Handle, error) {
	path, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return windows.InvalidHandle, err
	}
	var flags uint32 = pipeOpenMode
	if first {
		flags |= windows.FILE_FLAG_FIRST_PIPE_INSTANCE
	}
	return windows.CreateNamedPipe(path, flags, pipeMode, windows.PIPE_UNLIMITED_INSTANCES,
		pipeBufferSize, pipeBufferSize, 0, nil)
}

func openPipe(name string) (windows.Handle, error) {
	path, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return windows.InvalidHandle, err
	}
	h, err := windows.CreateFile(path, windows.GENERIC_READ|windows.GENERIC_WRITE, 0, nil,
		windows.OPEN_EXISTING, windows.FILE_FLAG_OVERLAPPED, 0)
	if err != nil {
		return windows.InvalidHandle, err
	}
	mode := uint32(windows.PIPE_READMODE_MESSAGE)
	if err := windows.SetNamedPipeHandleState(h, &mode, nil, nil); err != nil {
		windows.CloseHandle(h)
		return windows.InvalidHandle, err
	}
	return h, nil
}

func setInheritable(h windows.Handle, inheritable bool) error {
	var flags uint32
	if inheritable {
		flags = windows.HANDLE_FLAG_INHERIT
	}
	return windows.SetHandleInformation(h, windows.HANDLE_FLAG_INHERIT, flags)
}

func namedPipePeerPID(h windows.Handle, server bool) (uint32, error) {
	proc := procGetNamedPipeClientProcessId
	if !server {
		proc = procGetNamedPipeServerProcessId
	}
	var pid uint32
	r1, _, e1 := proc.Call(uintptr(h), uintptr(unsafe.Pointer(&pid)))
	if r1 == 0 {
		return 0, e1
	}
	return pid, nil
}

// overlappedIO runs one read or write on h and waits for its completion on
// event. ERROR_MORE_DATA is returned along with the partial byte count.
func overlappedIO(h, event windows.Handle, op func(*windows.Overlapped) error) (uint32, error) {
	if err := windows.ResetEvent(event); err != nil {
		return 0, err
	}
	ov := windows.Overlapped{HEvent: event}
	err := op(&ov)
	if err != nil && err != windows.ERROR_IO_PENDING && err != windows.ERROR_MORE_DATA {
		return 0, err
	}
	var n uint32
	err = windows.GetOverlappedResult(h, &ov, &n, true)
	return n, err
}
