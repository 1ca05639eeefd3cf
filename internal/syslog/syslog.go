// Package syslog is the crash helper's structured logger. Entries are built
// with a small fluent API and rendered by zerolog:
//
//	syslog.L.Error(err).WithMessage("accept failed").WithField("pid", pid).Write()
package syslog

import (
	"io"

	"github.com/rs/zerolog"
)

// Global logger instance.
var L *Logger

func newLogger(w io.Writer) *zerolog.Logger {
	logger := zerolog.New(w).With().Timestamp().CallerWithSkipFrameCount(3).Logger()
	return &logger
}

// SetOutput redirects the logger to w, bypassing the platform sink.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zlog = newLogger(w)
}

// SetLevel drops entries below the named level. Unknown names are an error
// and leave the level unchanged.
func (l *Logger) SetLevel(name string) error {
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	logger := l.zlog.Level(level)
	l.zlog = &logger
	return nil
}

func (l *Logger) entry(level zerolog.Level, err error) *LogEntry {
	return &LogEntry{
		Level:  level,
		Err:    err,
		Fields: make(map[string]interface{}),
		logger: l,
	}
}

// Error creates a new error-level LogEntry.
func (l *Logger) Error(err error) *LogEntry {
	return l.entry(zerolog.ErrorLevel, err)
}

// Warn creates a new warning-level LogEntry.
func (l *Logger) Warn() *LogEntry {
	return l.entry(zerolog.WarnLevel, nil)
}

// Info creates a new info-level LogEntry.
func (l *Logger) Info() *LogEntry {
	return l.entry(zerolog.InfoLevel, nil)
}

func (l *Logger) Debug() *LogEntry {
	return l.entry(zerolog.DebugLevel, nil)
}

// WithMessage sets the log message.
func (e *LogEntry) WithMessage(msg string) *LogEntry {
	e.Message = msg
	return e
}

// WithErr attaches an error to an entry of any level.
func (e *LogEntry) WithErr(err error) *LogEntry {
	e.Err = err
	return e
}

// WithField adds one key-value pair to the LogEntry.
func (e *LogEntry) WithField(key string, value interface{}) *LogEntry {
	e.Fields[key] = value
	return e
}

// WithFields adds multiple key-value pairs to the LogEntry.
func (e *LogEntry) WithFields(fields map[string]interface{}) *LogEntry {
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e
}

// Write finalizes the LogEntry.
func (e *LogEntry) Write() {
	e.logger.mu.RLock()
	defer e.logger.mu.RUnlock()

	event := e.logger.zlog.WithLevel(e.Level).Fields(e.Fields)
	if e.Err != nil {
		event = event.Err(e.Err)
	}
	event.Msg(e.Message)
}
