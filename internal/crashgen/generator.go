// Package crashgen owns the crash report directory: it asks a
// MinidumpWriter for dumps, annotates them, and keeps them until a client
// claims them.
package crashgen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alexflint/go-filemutex"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/google/uuid"

	"github.com/mozilla/gecko-dev-sub036/internal/syslog"
)

// ErrNoMinidump is returned by TransferMinidump when nothing is pending for
// the requested process.
var ErrNoMinidump = errors.New("no minidump pending for process")

const lockFileName = ".crashhelper.lock"

// Minidump is a generated dump waiting to be transferred.
type Minidump struct {
	Path      string
	ExtraPath string
	Extra     []byte
}

type Generator struct {
	mu      sync.Mutex
	writer  MinidumpWriter
	dir     string
	pending map[int]Minidump
	auxv    map[int]AuxvInfo
	phc     map[int][]byte
	now     func() time.Time
}

// NewGenerator returns a generator writing into dir. A nil writer means
// NoopWriter.
func NewGenerator(writer MinidumpWriter, dir string) *Generator {
	if writer == nil {
		writer = NoopWriter{}
	}
	return &Generator{
		writer:  writer,
		dir:     dir,
		pending: make(map[int]Minidump),
		auxv:    make(map[int]AuxvInfo),
		phc:     make(map[int][]byte),
		now:     time.Now,
	}
}

// SetCrashReportPath switches the output directory, creating it if needed.
func (g *Generator) SetCrashReportPath(dir string) error {
	if !filepath.IsAbs(dir) {
		return fmt.Errorf("crash report path %q is not absolute", dir)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create crash report path: %w", err)
	}

	g.mu.Lock()
	g.dir = dir
	g.mu.Unlock()
	return nil
}

// CrashReportPath returns the current output directory.
func (g *Generator) CrashReportPath() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dir
}

// GenerateMinidump writes a minidump of pid and its annotations and keeps
// them pending for TransferMinidump. A previous pending dump of the same
// process is replaced, not deleted. PHC info is consumed only when both
// files were written.
func (g *Generator) GenerateMinidump(ctx context.Context, pid, tid int) (Minidump, error) {
	g.mu.Lock()
	dir := g.dir
	phc := g.phc[pid]
	auxv, hasAuxv := g.auxv[pid]
	g.mu.Unlock()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Minidump{}, fmt.Errorf("failed to create crash report path: %w", err)
	}
	lock, err := filemutex.New(filepath.Join(dir, lockFileName))
	if err != nil {
		return Minidump{}, fmt.Errorf("failed to open directory lock: %w", err)
	}
	defer lock.Close()
	if err := lock.Lock(); err != nil {
		return Minidump{}, fmt.Errorf("failed to lock crash report path: %w", err)
	}
	defer lock.Unlock()

	id := uuid.NewString()
	dumpPath, err := securejoin.SecureJoin(dir, id+".dmp")
	if err != nil {
		return Minidump{}, err
	}
	extraPath, err := securejoin.SecureJoin(dir, id+".extra")
	if err != nil {
		return Minidump{}, err
	}

	annotations := newAnnotations(id, pid, tid, g.now())
	annotations.setPHC(phc)
	if hasAuxv {
		annotations.Auxv = &auxv
	}

	if err := g.writeDump(ctx, dumpPath, pid, tid); err != nil {
		return Minidump{}, err
	}

	extra, err := annotations.marshal()
	if err != nil {
		os.Remove(dumpPath)
		return Minidump{}, err
	}
	if err := os.WriteFile(extraPath, extra, 0o600); err != nil {
		os.Remove(dumpPath)
		return Minidump{}, fmt.Errorf("failed to write annotations: %w", err)
	}

	dump := Minidump{Path: dumpPath, ExtraPath: extraPath, Extra: extra}
	g.mu.Lock()
	g.pending[pid] = dump
	// The blob belongs to this dump only once it is on disk. A blob set
	// while the dump was being written is left for the next one.
	if cur, ok := g.phc[pid]; ok && bytes.Equal(cur, phc) {
		delete(g.phc, pid)
	}
	g.mu.Unlock()

	syslog.L.Info().
		WithMessage("minidump written").
		WithFields(map[string]interface{}{"pid": pid, "tid": tid, "path": dumpPath}).
		Write()
	return dump, nil
}

func (g *Generator) writeDump(ctx context.Context, path string, pid, tid int) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create minidump: %w", err)
	}
	werr := g.writer.WriteMinidump(ctx, pid, tid, out)
	cerr := out.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write minidump of %d: %w", pid, werr)
	}
	return nil
}

// TransferMinidump hands over the pending dump of pid. Ownership of the
// files passes to the caller.
func (g *Generator) TransferMinidump(pid int) (Minidump, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	dump, ok := g.pending[pid]
	if !ok {
		return Minidump{}, fmt.Errorf("%w %d", ErrNoMinidump, pid)
	}
	delete(g.pending, pid)
	return dump, nil
}

// Pending reports how many dumps have not been transferred.
func (g *Generator) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

func (g *Generator) RegisterAuxvInfo(pid int, info AuxvInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.auxv[pid] = info
}

func (g *Generator) UnregisterAuxvInfo(pid int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.auxv, pid)
}

// SetPHCAddrInfo attaches blob to the next minidump of pid.
func (g *Generator) SetPHCAddrInfo(pid int, blob []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(blob) == 0 {
		delete(g.phc, pid)
		return
	}
	g.phc[pid] = append([]byte(nil), blob...)
}
