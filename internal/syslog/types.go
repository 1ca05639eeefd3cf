package syslog

import (
	"sync"

	"github.com/rs/zerolog"
)

type Logger struct {
	mu   sync.RWMutex
	zlog *zerolog.Logger
}

// LogEntry represents a structured log entry.
type LogEntry struct {
	Level   zerolog.Level
	Message string
	Err     error
	Fields  map[string]interface{}
	logger  *Logger
}
