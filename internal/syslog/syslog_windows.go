//go:build windows

package syslog

import (
	"os"

	"github.com/rs/zerolog"
)

func init() {
	logger := zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = &LogWriter{out: os.Stderr}
		w.NoColor = true
	})).With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()

	L = &Logger{zlog: &logger}
}
