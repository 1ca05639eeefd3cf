package crashgen

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Annotations is the content of the .extra file stored next to a minidump.
type Annotations struct {
	MinidumpID        string    `json:"MinidumpID"`
	CrashTime         string    `json:"CrashTime"`
	ProcessID         int       `json:"ProcessID"`
	ThreadID          int       `json:"ThreadID,omitempty"`
	ProcessName       string    `json:"ProcessName,omitempty"`
	ProcessCreateTime int64     `json:"ProcessCreateTime,omitempty"`
	CommandLine       string    `json:"CommandLine,omitempty"`
	PHCAddrInfo       string    `json:"PHCAddrInfo,omitempty"`
	Auxv              *AuxvInfo `json:"Auxv,omitempty"`
	DumperError       string    `json:"DumperError,omitempty"`
}

// AuxvInfo mirrors the auxiliary vector entries a client registered for a
// process.
type AuxvInfo struct {
	ProgramHeaderCount   uint64 `json:"ProgramHeaderCount"`
	ProgramHeaderAddress uint64 `json:"ProgramHeaderAddress"`
	LinuxGateAddress     uint64 `json:"LinuxGateAddress"`
	EntryAddress         uint64 `json:"EntryAddress"`
}

func newAnnotations(id string, pid, tid int, now time.Time) *Annotations {
	a := &Annotations{
		MinidumpID: id,
		CrashTime:  strconv.FormatInt(now.Unix(), 10),
		ProcessID:  pid,
		ThreadID:   tid,
	}

	// Process metadata is best effort: the target may already be gone.
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return a
	}
	if name, err := p.Name(); err == nil {
		a.ProcessName = name
	}
	if created, err := p.CreateTime(); err == nil {
		a.ProcessCreateTime = created
	}
	if cmdline, err := p.Cmdline(); err == nil {
		a.CommandLine = cmdline
	}
	return a
}

func (a *Annotations) setPHC(blob []byte) {
	if len(blob) > 0 {
		a.PHCAddrInfo = hex.EncodeToString(blob)
	}
}

func (a *Annotations) marshal() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}
