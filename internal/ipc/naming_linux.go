//go:build linux

package ipc

// RendezvousAddress returns the abstract socket address for pid. The leading
// '@' selects the abstract namespace, so nothing is created on disk.
func RendezvousAddress(pid int) string {
	return "@" + SocketName(pid)
}
