//go:build unix

package ipc

import "golang.org/x/sys/unix"

// ignoreEINTR retries fn for as long as it fails with EINTR. Any other
// outcome is returned unchanged.
func ignoreEINTR[T any](fn func() (T, error)) (T, error) {
	for {
		v, err := fn()
		if err != unix.EINTR {
			return v, err
		}
	}
}

func ignoreEINTRErr(fn func() error) error {
	_, err := ignoreEINTR(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
