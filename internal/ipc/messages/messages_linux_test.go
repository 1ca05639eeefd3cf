//go:build linux

package messages

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozilla/gecko-dev-sub036/internal/ipc"
)

func TestSendMessage_Receive(t *testing.T) {
	ch, err := ipc.NewChannel()
	require.NoError(t, err)
	listener, server, client, err := ch.Deconstruct()
	require.NoError(t, err)
	defer listener.Close()
	defer server.Close()
	defer client.Close()

	path := filepath.Join(t.TempDir(), "shared")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, client.SendMessage(&SetCrashReportPath{Path: "/var/crash"}))
	require.NoError(t, client.SendMessage(&RegisterChildProcess{PID: 42, Endpoint: f}))

	msg, err := Receive(server)
	require.NoError(t, err)
	assert.Equal(t, &SetCrashReportPath{Path: "/var/crash"}, msg)

	msg, err = Receive(server)
	require.NoError(t, err)
	rcp, ok := msg.(*RegisterChildProcess)
	require.True(t, ok)
	assert.Equal(t, int32(42), rcp.PID)
	defer rcp.Endpoint.Close()

	data, err := io.ReadAll(rcp.Endpoint)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
