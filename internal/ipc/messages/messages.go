// Package messages defines the typed messages exchanged between the crash
// helper and its clients. Bodies are encoded with package wire; Ping and
// Pong carry no payload at all.
package messages

import (
	"os"

	"github.com/mozilla/gecko-dev-sub036/internal/ipc"
)

// Message is an ipc.Message that can also be decoded from a payload.
type Message interface {
	ipc.Message
	Decode(buf []byte) error
}

// New returns an empty message of kind k.
func New(k ipc.Kind) (Message, error) {
	switch k {
	case ipc.KindPing:
		return &Ping{}, nil
	case ipc.KindPong:
		return &Pong{}, nil
	case ipc.KindSetCrashReportPath:
		return &SetCrashReportPath{}, nil
	case ipc.KindTransferMinidump:
		return &TransferMinidump{}, nil
	case ipc.KindTransferMinidumpReply:
		return &TransferMinidumpReply{}, nil
	case ipc.KindGenerateMinidump:
		return &GenerateMinidump{}, nil
	case ipc.KindGenerateMinidumpReply:
		return &GenerateMinidumpReply{}, nil
	case ipc.KindRegisterChildProcess:
		return &RegisterChildProcess{}, nil
	case ipc.KindRegisterAuxvInfo:
		return &RegisterAuxvInfo{}, nil
	case ipc.KindUnregisterAuxvInfo:
		return &UnregisterAuxvInfo{}, nil
	case ipc.KindSetPHCAddrInfo:
		return &SetPHCAddrInfo{}, nil
	}
	return nil, ipc.NewMessageError(ipc.InvalidKind, "%d", uint16(k))
}

// Decode builds the typed message announced by h. Ownership of ancillary
// passes to the returned message; on error it is closed.
func Decode(h ipc.Header, payload []byte, ancillary *os.File) (Message, error) {
	msg, err := decode(h, payload, ancillary)
	if err != nil && ancillary != nil {
		ancillary.Close()
	}
	return msg, err
}

func decode(h ipc.Header, payload []byte, ancillary *os.File) (Message, error) {
	msg, err := New(h.Kind)
	if err != nil {
		return nil, err
	}
	if err := msg.Decode(payload); err != nil {
		return nil, ipc.NewMessageError(ipc.InvalidData, "%s: %v", h.Kind, err)
	}

	if rcp, ok := msg.(*RegisterChildProcess); ok {
		if ancillary == nil {
			return nil, ipc.NewMessageError(ipc.MissingAncillary, "%s", h.Kind)
		}
		rcp.Endpoint = ancillary
		return msg, nil
	}
	if ancillary != nil {
		return nil, ipc.NewMessageError(ipc.InvalidData, "%s does not carry ancillary data", h.Kind)
	}
	return msg, nil
}

// Receive reads one complete message from c, blocking until it arrives.
func Receive(c *ipc.Connector) (Message, error) {
	h, payload, ancillary, err := c.RecvMessage()
	if err != nil {
		return nil, err
	}
	return Decode(h, payload, ancillary)
}

func expectEmpty(buf []byte) error {
	if len(buf) != 0 {
		return ipc.NewMessageError(ipc.InvalidData, "unexpected %d byte payload", len(buf))
	}
	return nil
}
