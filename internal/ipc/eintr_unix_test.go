//go:build unix

package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestIgnoreEINTR_Retries(t *testing.T) {
	calls := 0
	v, err := ignoreEINTR(func() (int, error) {
		calls++
		if calls < 3 {
			return 0, unix.EINTR
		}
		return 7, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 3, calls)
}

func TestIgnoreEINTR_PassesOtherErrors(t *testing.T) {
	calls := 0
	err := ignoreEINTRErr(func() error {
		calls++
		return unix.EBADF
	})
	assert.Equal(t, unix.EBADF, err)
	assert.Equal(t, 1, calls)
}
