package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	t.Setenv(EnvMaxMalformed, "")
	t.Setenv(EnvLogLevel, "")

	path := filepath.Join(t.TempDir(), "crashhelper.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o644))

	reloaded := make(chan Config, 4)
	w, err := NewWatcher(path, func(cfg Config) {
		reloaded <- cfg
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nmax_malformed: 2\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 2, cfg.MaxMalformed)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestWatcher_CloseStopsCallbacks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crashhelper.yaml")

	called := make(chan struct{}, 1)
	w, err := NewWatcher(path, func(Config) {
		called <- struct{}{}
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o644))
	select {
	case <-called:
		t.Fatal("callback ran after Close")
	case <-time.After(3 * debounceInterval):
	}
}
