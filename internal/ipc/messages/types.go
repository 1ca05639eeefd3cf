package messages

import (
	"os"

	"github.com/mozilla/gecko-dev-sub036/internal/ipc"
	"github.com/mozilla/gecko-dev-sub036/internal/ipc/wire"
)

// Ping asks the helper to answer with a Pong. It has no payload.
type Ping struct{}

func (*Ping) Kind() ipc.Kind          { return ipc.KindPing }
func (*Ping) Encode() ([]byte, error) { return nil, nil }
func (*Ping) Ancillary() *os.File     { return nil }
func (*Ping) Decode(buf []byte) error { return expectEmpty(buf) }

// Pong answers a Ping.
type Pong struct{}

func (*Pong) Kind() ipc.Kind          { return ipc.KindPong }
func (*Pong) Encode() ([]byte, error) { return nil, nil }
func (*Pong) Ancillary() *os.File     { return nil }
func (*Pong) Decode(buf []byte) error { return expectEmpty(buf) }

// SetCrashReportPath tells the helper where minidumps go.
type SetCrashReportPath struct {
	Path string
}

func (*SetCrashReportPath) Kind() ipc.Kind      { return ipc.KindSetCrashReportPath }
func (*SetCrashReportPath) Ancillary() *os.File { return nil }

func (msg *SetCrashReportPath) Encode() ([]byte, error) {
	enc := wire.NewEncoder()
	defer enc.Release()
	enc.WriteString(msg.Path)
	return enc.Bytes(), nil
}

func (msg *SetCrashReportPath) Decode(buf []byte) error {
	dec, err := wire.NewDecoder(buf)
	if err != nil {
		return err
	}
	defer dec.Release()

	if msg.Path, err = dec.ReadString(); err != nil {
		return err
	}
	return dec.Finish()
}

// TransferMinidump requests the minidump generated for PID, if any.
type TransferMinidump struct {
	PID int32
}

func (*TransferMinidump) Kind() ipc.Kind      { return ipc.KindTransferMinidump }
func (*TransferMinidump) Ancillary() *os.File { return nil }

func (msg *TransferMinidump) Encode() ([]byte, error) {
	return encodePID(msg.PID), nil
}

func (msg *TransferMinidump) Decode(buf []byte) error {
	return decodePID(buf, &msg.PID)
}

// TransferMinidumpReply names the dump and its .extra annotations file.
// Both stay on disk; only the paths travel. An empty Path with a non-empty
// Error means no dump could be produced.
type TransferMinidumpReply struct {
	Path      string
	ExtraPath string
	Error     string
}

func (*TransferMinidumpReply) Kind() ipc.Kind      { return ipc.KindTransferMinidumpReply }
func (*TransferMinidumpReply) Ancillary() *os.File { return nil }

func (msg *TransferMinidumpReply) Encode() ([]byte, error) {
	enc := wire.NewEncoder()
	defer enc.Release()
	enc.WriteString(msg.Path)
	enc.WriteString(msg.ExtraPath)
	enc.WriteString(msg.Error)
	return enc.Bytes(), nil
}

func (msg *TransferMinidumpReply) Decode(buf []byte) error {
	dec, err := wire.NewDecoder(buf)
	if err != nil {
		return err
	}
	defer dec.Release()

	if msg.Path, err = dec.ReadString(); err != nil {
		return err
	}
	if msg.ExtraPath, err = dec.ReadString(); err != nil {
		return err
	}
	if msg.Error, err = dec.ReadString(); err != nil {
		return err
	}
	return dec.Finish()
}

// GenerateMinidump asks the helper to write a minidump of a live process.
type GenerateMinidump struct {
	PID int32
	TID int32
}

func (*GenerateMinidump) Kind() ipc.Kind      { return ipc.KindGenerateMinidump }
func (*GenerateMinidump) Ancillary() *os.File { return nil }

func (msg *GenerateMinidump) Encode() ([]byte, error) {
	enc := wire.NewEncoder()
	defer enc.Release()
	enc.WriteInt32(msg.PID)
	enc.WriteInt32(msg.TID)
	return enc.Bytes(), nil
}

func (msg *GenerateMinidump) Decode(buf []byte) error {
	dec, err := wire.NewDecoder(buf)
	if err != nil {
		return err
	}
	defer dec.Release()

	if msg.PID, err = dec.ReadInt32(); err != nil {
		return err
	}
	if msg.TID, err = dec.ReadInt32(); err != nil {
		return err
	}
	return dec.Finish()
}

// GenerateMinidumpReply returns the path of the new minidump.
type GenerateMinidumpReply struct {
	Path  string
	Error string
}

func (*GenerateMinidumpReply) Kind() ipc.Kind      { return ipc.KindGenerateMinidumpReply }
func (*GenerateMinidumpReply) Ancillary() *os.File { return nil }

func (msg *GenerateMinidumpReply) Encode() ([]byte, error) {
	enc := wire.NewEncoder()
	defer enc.Release()
	enc.WriteString(msg.Path)
	enc.WriteString(msg.Error)
	return enc.Bytes(), nil
}

func (msg *GenerateMinidumpReply) Decode(buf []byte) error {
	dec, err := wire.NewDecoder(buf)
	if err != nil {
		return err
	}
	defer dec.Release()

	if msg.Path, err = dec.ReadString(); err != nil {
		return err
	}
	if msg.Error, err = dec.ReadString(); err != nil {
		return err
	}
	return dec.Finish()
}

// RegisterChildProcess hands the helper a connected endpoint for a child
// process of the client. Endpoint travels as ancillary data.
type RegisterChildProcess struct {
	PID      int32
	Endpoint *os.File
}

func (*RegisterChildProcess) Kind() ipc.Kind          { return ipc.KindRegisterChildProcess }
func (msg *RegisterChildProcess) Ancillary() *os.File { return msg.Endpoint }

func (msg *RegisterChildProcess) Encode() ([]byte, error) {
	if msg.Endpoint == nil {
		return nil, ipc.NewMessageError(ipc.MissingAncillary, "register child process %d", msg.PID)
	}
	return encodePID(msg.PID), nil
}

func (msg *RegisterChildProcess) Decode(buf []byte) error {
	return decodePID(buf, &msg.PID)
}

// AuxvInfo holds the auxiliary vector entries a minidump writer needs to
// describe a process it cannot ptrace.
type AuxvInfo struct {
	ProgramHeaderCount   uint64
	ProgramHeaderAddress uint64
	LinuxGateAddress     uint64
	EntryAddress         uint64
}

// RegisterAuxvInfo records auxv data for PID.
type RegisterAuxvInfo struct {
	PID  int32
	Auxv AuxvInfo
}

func (*RegisterAuxvInfo) Kind() ipc.Kind      { return ipc.KindRegisterAuxvInfo }
func (*RegisterAuxvInfo) Ancillary() *os.File { return nil }

func (msg *RegisterAuxvInfo) Encode() ([]byte, error) {
	enc := wire.NewEncoder()
	defer enc.Release()
	enc.WriteInt32(msg.PID)
	enc.WriteUint64(msg.Auxv.ProgramHeaderCount)
	enc.WriteUint64(msg.Auxv.ProgramHeaderAddress)
	enc.WriteUint64(msg.Auxv.LinuxGateAddress)
	enc.WriteUint64(msg.Auxv.EntryAddress)
	return enc.Bytes(), nil
}

func (msg *RegisterAuxvInfo) Decode(buf []byte) error {
	dec, err := wire.NewDecoder(buf)
	if err != nil {
		return err
	}
	defer dec.Release()

	if msg.PID, err = dec.ReadInt32(); err != nil {
		return err
	}
	for _, field := range []*uint64{
		&msg.Auxv.ProgramHeaderCount,
		&msg.Auxv.ProgramHeaderAddress,
		&msg.Auxv.LinuxGateAddress,
		&msg.Auxv.EntryAddress,
	} {
		if *field, err = dec.ReadUint64(); err != nil {
			return err
		}
	}
	return dec.Finish()
}

// UnregisterAuxvInfo forgets the auxv data for PID.
type UnregisterAuxvInfo struct {
	PID int32
}

func (*UnregisterAuxvInfo) Kind() ipc.Kind      { return ipc.KindUnregisterAuxvInfo }
func (*UnregisterAuxvInfo) Ancillary() *os.File { return nil }

func (msg *UnregisterAuxvInfo) Encode() ([]byte, error) {
	return encodePID(msg.PID), nil
}

func (msg *UnregisterAuxvInfo) Decode(buf []byte) error {
	return decodePID(buf, &msg.PID)
}

// SetPHCAddrInfo attaches the heap checker's serialized AddrInfo to the
// next crash report of PID. The blob is opaque to the helper.
type SetPHCAddrInfo struct {
	PID      int32
	AddrInfo []byte
}

func (*SetPHCAddrInfo) Kind() ipc.Kind      { return ipc.KindSetPHCAddrInfo }
func (*SetPHCAddrInfo) Ancillary() *os.File { return nil }

func (msg *SetPHCAddrInfo) Encode() ([]byte, error) {
	enc := wire.NewEncoder()
	defer enc.Release()
	enc.WriteInt32(msg.PID)
	enc.WriteBytes(msg.AddrInfo)
	return enc.Bytes(), nil
}

func (msg *SetPHCAddrInfo) Decode(buf []byte) error {
	dec, err := wire.NewDecoder(buf)
	if err != nil {
		return err
	}
	defer dec.Release()

	if msg.PID, err = dec.ReadInt32(); err != nil {
		return err
	}
	if msg.AddrInfo, err = dec.ReadBytes(); err != nil {
		return err
	}
	return dec.Finish()
}

func encodePID(pid int32) []byte {
	enc := wire.NewEncoder()
	defer enc.Release()
	enc.WriteInt32(pid)
	return enc.Bytes()
}

func decodePID(buf []byte, pid *int32) error {
	dec, err := wire.NewDecoder(buf)
	if err != nil {
		return err
	}
	defer dec.Release()

	if *pid, err = dec.ReadInt32(); err != nil {
		return err
	}
	return dec.Finish()
}
