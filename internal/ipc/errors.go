package ipc

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an IPCError.
type ErrorKind int

const (
	BadMessage ErrorKind = iota + 1
	System
	BindFailed
	ListenFailed
	AcceptFailed
	ConnectionFailure
	TransmissionFailure
	ReceptionFailure
	WaitingFailure
	ParseFailure
	Disconnected
)

var errorKindNames = map[ErrorKind]string{
	BadMessage:          "bad message",
	System:              "system error",
	BindFailed:          "bind failed",
	ListenFailed:        "listen failed",
	AcceptFailed:        "accept failed",
	ConnectionFailure:   "connection failure",
	TransmissionFailure: "transmission failure",
	ReceptionFailure:    "reception failure",
	WaitingFailure:      "waiting failure",
	ParseFailure:        "parse failure",
	Disconnected:        "peer disconnected",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// IPCError is returned by every operation of this package. Err holds the
// underlying OS error or a *MessageError for protocol violations.
type IPCError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *IPCError) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *IPCError) Unwrap() error {
	return e.Err
}

// Is matches the bare sentinels below by kind, so that
// errors.Is(err, ErrConnectionFailure) holds for any connection failure.
func (e *IPCError) Is(target error) bool {
	t, ok := target.(*IPCError)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrBadMessage          = &IPCError{Kind: BadMessage}
	ErrSystem              = &IPCError{Kind: System}
	ErrBindFailed          = &IPCError{Kind: BindFailed}
	ErrListenFailed        = &IPCError{Kind: ListenFailed}
	ErrAcceptFailed        = &IPCError{Kind: AcceptFailed}
	ErrConnectionFailure   = &IPCError{Kind: ConnectionFailure}
	ErrTransmissionFailure = &IPCError{Kind: TransmissionFailure}
	ErrReceptionFailure    = &IPCError{Kind: ReceptionFailure}
	ErrWaitingFailure      = &IPCError{Kind: WaitingFailure}
	ErrParseFailure        = &IPCError{Kind: ParseFailure}
	ErrDisconnected        = &IPCError{Kind: Disconnected}
)

func newError(kind ErrorKind, op string, err error) *IPCError {
	return &IPCError{Kind: kind, Op: op, Err: err}
}

// MessageErrorKind classifies a protocol violation.
type MessageErrorKind int

const (
	InvalidKind MessageErrorKind = iota + 1
	InvalidData
	Truncated
	TooLarge
	MissingAncillary
)

func (k MessageErrorKind) String() string {
	switch k {
	case InvalidKind:
		return "invalid message kind"
	case InvalidData:
		return "invalid message data"
	case Truncated:
		return "truncated message"
	case TooLarge:
		return "message too large"
	case MissingAncillary:
		return "missing ancillary data"
	}
	return fmt.Sprintf("MessageErrorKind(%d)", int(k))
}

// MessageError describes malformed wire data.
type MessageError struct {
	Kind   MessageErrorKind
	Detail string
}

func (e *MessageError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Detail
}

func (e *MessageError) Is(target error) bool {
	t, ok := target.(*MessageError)
	return ok && t.Detail == "" && t.Kind == e.Kind
}

var (
	ErrInvalidKind      = &MessageError{Kind: InvalidKind}
	ErrInvalidData      = &MessageError{Kind: InvalidData}
	ErrTruncated        = &MessageError{Kind: Truncated}
	ErrTooLarge         = &MessageError{Kind: TooLarge}
	ErrMissingAncillary = &MessageError{Kind: MissingAncillary}
)

// NewMessageError wraps a protocol violation as a BadMessage IPCError.
func NewMessageError(kind MessageErrorKind, format string, args ...interface{}) error {
	return &IPCError{
		Kind: BadMessage,
		Err:  &MessageError{Kind: kind, Detail: fmt.Sprintf(format, args...)},
	}
}

func badMessage(op string, kind MessageErrorKind, format string, args ...interface{}) error {
	return &IPCError{
		Kind: BadMessage,
		Op:   op,
		Err:  &MessageError{Kind: kind, Detail: fmt.Sprintf(format, args...)},
	}
}

// IsDisconnect reports whether err means the peer went away.
func IsDisconnect(err error) bool {
	return errors.Is(err, ErrDisconnected)
}
