package ipc

import (
	"encoding/binary"
	"fmt"
	"os"
)

const (
	// HeaderSize is the size in bytes of an encoded Header.
	HeaderSize = 8
	// MaxPayloadSize bounds inline payloads; bulk data travels by descriptor.
	MaxPayloadSize = 64 * 1024
)

// FlagAncillary marks a message whose payload carries one OS handle.
const FlagAncillary uint16 = 1 << 0

// Kind identifies the type of a message.
type Kind uint16

const (
	KindPing Kind = iota + 1
	KindPong
	KindSetCrashReportPath
	KindTransferMinidump
	KindTransferMinidumpReply
	KindGenerateMinidump
	KindGenerateMinidumpReply
	KindRegisterChildProcess
	KindRegisterAuxvInfo
	KindUnregisterAuxvInfo
	KindSetPHCAddrInfo

	kindEnd
)

var kindNames = [...]string{
	KindPing:                  "Ping",
	KindPong:                  "Pong",
	KindSetCrashReportPath:    "SetCrashReportPath",
	KindTransferMinidump:      "TransferMinidump",
	KindTransferMinidumpReply: "TransferMinidumpReply",
	KindGenerateMinidump:      "GenerateMinidump",
	KindGenerateMinidumpReply: "GenerateMinidumpReply",
	KindRegisterChildProcess:  "RegisterChildProcess",
	KindRegisterAuxvInfo:      "RegisterAuxvInfo",
	KindUnregisterAuxvInfo:    "UnregisterAuxvInfo",
	KindSetPHCAddrInfo:        "SetPHCAddrInfo",
}

func (k Kind) Valid() bool {
	return k >= KindPing && k < kindEnd
}

func (k Kind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint16(k))
}

// Header precedes every payload on the wire:
//
//	offset 0: kind  (uint16, little-endian)
//	offset 2: flags (uint16, little-endian)
//	offset 4: size  (uint32, little-endian)
type Header struct {
	Kind  Kind
	Flags uint16
	Size  uint32
}

func (h Header) HasAncillary() bool {
	return h.Flags&FlagAncillary != 0
}

// Encode returns the wire form of h.
func (h Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint16(buf[0:], uint16(h.Kind))
	binary.LittleEndian.PutUint16(buf[2:], h.Flags)
	binary.LittleEndian.PutUint32(buf[4:], h.Size)
	return buf
}

// DecodeHeader parses and validates a header.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, NewMessageError(InvalidData, "header is %d bytes, want %d", len(buf), HeaderSize)
	}
	h := Header{
		Kind:  Kind(binary.LittleEndian.Uint16(buf[0:])),
		Flags: binary.LittleEndian.Uint16(buf[2:]),
		Size:  binary.LittleEndian.Uint32(buf[4:]),
	}
	if !h.Kind.Valid() {
		return Header{}, NewMessageError(InvalidKind, "%d", uint16(h.Kind))
	}
	if h.Flags&^FlagAncillary != 0 {
		return Header{}, NewMessageError(InvalidData, "unknown flags %#x", h.Flags)
	}
	if h.Size > MaxPayloadSize {
		return Header{}, NewMessageError(TooLarge, "%d bytes", h.Size)
	}
	if h.HasAncillary() && h.Size == 0 {
		return Header{}, NewMessageError(InvalidData, "ancillary data without payload")
	}
	return h, nil
}

// Message is a typed message that can be sent over a Connector.
type Message interface {
	Kind() Kind
	Encode() ([]byte, error)
	// Ancillary returns the handle carried alongside the payload, if any.
	// Ownership stays with the message.
	Ancillary() *os.File
}

// HeaderFor builds the header announcing payload for m.
func HeaderFor(m Message, payload []byte) Header {
	h := Header{Kind: m.Kind(), Size: uint32(len(payload))}
	if m.Ancillary() != nil {
		h.Flags |= FlagAncillary
	}
	return h
}

func validateOutgoing(h Header, payload []byte, ancillary *os.File) error {
	if !h.Kind.Valid() {
		return NewMessageError(InvalidKind, "%d", uint16(h.Kind))
	}
	if int(h.Size) != len(payload) {
		return NewMessageError(InvalidData, "header declares %d bytes, payload has %d", h.Size, len(payload))
	}
	if len(payload) > MaxPayloadSize {
		return NewMessageError(TooLarge, "%d bytes", len(payload))
	}
	if h.HasAncillary() != (ancillary != nil) {
		return NewMessageError(MissingAncillary, "flag and handle disagree")
	}
	if ancillary != nil && len(payload) == 0 {
		return NewMessageError(InvalidData, "ancillary data without payload")
	}
	return nil
}
