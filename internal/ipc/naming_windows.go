//go:build windows

package ipc

// RendezvousAddress returns the named pipe path for pid.
func RendezvousAddress(pid int) string {
	return `\\.\pipe\` + SocketName(pid)
}
