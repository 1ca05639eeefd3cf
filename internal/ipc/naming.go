package ipc

import (
	"strconv"
	"sync/atomic"
)

const socketNamePrefix = "gecko-crash-helper-pipe."

// SocketName returns the rendezvous name shared by the client with PID pid
// and the helper serving it.
func SocketName(pid int) string {
	return socketNamePrefix + strconv.Itoa(pid)
}

// ParsePID parses a process identifier passed on the command line.
func ParsePID(arg string) (int, error) {
	pid, err := strconv.Atoi(arg)
	if err != nil || pid <= 0 {
		if err == nil {
			err = strconv.ErrRange
		}
		return 0, newError(ParseFailure, "parse pid "+strconv.Quote(arg), err)
	}
	return pid, nil
}

// connectorIDs hands out process-wide connector identifiers. An ID is never
// reused, so it stays valid after the connector set is reshuffled.
var connectorIDs atomic.Uint64

func nextConnectorID() uint64 {
	return connectorIDs.Add(1)
}
