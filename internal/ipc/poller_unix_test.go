//go:build unix

package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestAcceptRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"would block", newError(AcceptFailed, "accept", unix.EAGAIN), true},
		{"aborted before accept", newError(AcceptFailed, "accept", unix.ECONNABORTED), true},
		{"out of descriptors", newError(AcceptFailed, "accept", unix.EMFILE), false},
		{"bad listener", newError(AcceptFailed, "accept", unix.EBADF), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, acceptRetryable(tt.err))
		})
	}
}
