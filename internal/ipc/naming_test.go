package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRendezvousAddress_Deterministic(t *testing.T) {
	seen := make(map[string]int, 10000)
	for pid := 1; pid <= 10000; pid++ {
		address := RendezvousAddress(pid)
		require.Equal(t, address, RendezvousAddress(pid))
		if other, ok := seen[address]; ok {
			t.Fatalf("pids %d and %d share address %q", other, pid, address)
		}
		seen[address] = pid
	}
	assert.Equal(t, "gecko-crash-helper-pipe.1234", SocketName(1234))
}

func TestParsePID(t *testing.T) {
	pid, err := ParsePID("4321")
	require.NoError(t, err)
	assert.Equal(t, 4321, pid)

	for _, arg := range []string{"", "abc", "-5", "0", "12x"} {
		_, err := ParsePID(arg)
		assert.ErrorIs(t, err, ErrParseFailure, arg)
	}
}

func TestConnectorIDs_Unique(t *testing.T) {
	a, b := nextConnectorID(), nextConnectorID()
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}
