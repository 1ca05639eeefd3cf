//go:build windows

package syslog

import (
	"io"
	"sync"
)

// LogWriter serializes console output; the helper has no event log source
// of its own.
type LogWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (ew *LogWriter) Write(p []byte) (n int, err error) {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	return ew.out.Write(p)
}
