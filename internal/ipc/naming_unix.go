//go:build unix && !linux

package ipc

import (
	"os"
	"path/filepath"
)

// RendezvousAddress returns the socket file path for pid. Platforms without
// an abstract namespace use a file in the temporary directory.
func RendezvousAddress(pid int) string {
	return filepath.Join(os.TempDir(), SocketName(pid))
}
