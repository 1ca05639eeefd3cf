//go:build !windows

package syslog

import (
	"log/syslog"

	"github.com/rs/zerolog"
)

func init() {
	sysWriter, _ := syslog.New(syslog.LOG_ERR|syslog.LOG_LOCAL7, "crashhelper")
	logger := zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = &LogWriter{logger: sysWriter}
		w.NoColor = true
	})).With().Timestamp().CallerWithSkipFrameCount(3).Logger()

	L = &Logger{zlog: &logger}
}
