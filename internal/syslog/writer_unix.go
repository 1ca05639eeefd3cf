//go:build !windows

package syslog

import (
	"log/syslog"
	"os"
	"strings"
)

// LogWriter sends the formatted output of zerolog.ConsoleWriter to syslog,
// or to stderr when no syslog daemon was reachable.
type LogWriter struct {
	logger *syslog.Writer
}

func (sw *LogWriter) Write(p []byte) (n int, err error) {
	if sw.logger == nil {
		return os.Stderr.Write(p)
	}
	message := string(p)
	switch {
	case strings.Contains(message, "ERR"):
		err = sw.logger.Err(message)
	case strings.Contains(message, "WRN"):
		err = sw.logger.Warning(message)
	case strings.Contains(message, "DBG"):
		err = sw.logger.Debug(message)
	default:
		err = sw.logger.Info(message)
	}
	return len(p), err
}
