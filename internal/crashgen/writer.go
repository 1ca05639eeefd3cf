package crashgen

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// MinidumpWriter produces a minidump of thread tid in process pid into out.
// A tid of 0 or less means the writer picks the thread.
type MinidumpWriter interface {
	WriteMinidump(ctx context.Context, pid, tid int, out *os.File) error
}

// WriterFunc adapts a function to MinidumpWriter.
type WriterFunc func(ctx context.Context, pid, tid int, out *os.File) error

func (f WriterFunc) WriteMinidump(ctx context.Context, pid, tid int, out *os.File) error {
	return f(ctx, pid, tid, out)
}

// ExecWriter runs an external dumper as `Path [Args...] <pid> <tid>` with
// its standard output redirected into the minidump file.
type ExecWriter struct {
	Path    string
	Args    []string
	Timeout time.Duration
}

func (w *ExecWriter) WriteMinidump(ctx context.Context, pid, tid int, out *os.File) error {
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, w.Args...), strconv.Itoa(pid), strconv.Itoa(tid))
	cmd := exec.CommandContext(ctx, w.Path, args...)
	cmd.Stdout = out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("dumper %s failed: %w: %s", w.Path, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// NoopWriter leaves the minidump empty. It is used when no dumper is
// configured so that annotations are still recorded.
type NoopWriter struct{}

func (NoopWriter) WriteMinidump(context.Context, int, int, *os.File) error {
	return nil
}
