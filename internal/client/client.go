// Package client starts the crash helper for the current process and talks
// to it.
package client

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/mozilla/gecko-dev-sub036/internal/ipc"
	"github.com/mozilla/gecko-dev-sub036/internal/ipc/messages"
)

// ErrUnexpectedReply is returned when the helper answers with the wrong
// message kind.
var ErrUnexpectedReply = errors.New("unexpected reply from crash helper")

// RemoteError is a failure reported by the helper in a reply.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("crash helper %s: %s", e.Op, e.Message)
}

// Minidump is a dump handed over by TransferMinidump. Both files now belong
// to the caller.
type Minidump struct {
	Path      string
	ExtraPath string
}

// ReadExtra returns the JSON annotations stored next to the dump.
func (m Minidump) ReadExtra() ([]byte, error) {
	return os.ReadFile(m.ExtraPath)
}

// Client is the connection of a process to its crash helper. Requests are
// serialized, so a Client may be shared between goroutines.
type Client struct {
	mu   sync.Mutex
	conn *ipc.Connector

	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// New wraps an established connection. The helper process, if any, is not
// managed by the returned Client.
func New(conn *ipc.Connector) *Client {
	return &Client{conn: conn}
}

// Conn returns the underlying connector.
func (c *Client) Conn() *ipc.Connector {
	return c.conn
}

// Pid returns the helper's process id, or 0 if it was not spawned by this
// package.
func (c *Client) Pid() int {
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

func (c *Client) send(m ipc.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.SendMessage(m)
}

func (c *Client) request(m ipc.Message) (messages.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SendMessage(m); err != nil {
		return nil, err
	}
	return messages.Receive(c.conn)
}

func (c *Client) Ping() error {
	reply, err := c.request(&messages.Ping{})
	if err != nil {
		return err
	}
	if _, ok := reply.(*messages.Pong); !ok {
		return fmt.Errorf("%w: %s to Ping", ErrUnexpectedReply, reply.Kind())
	}
	return nil
}

// SetCrashReportPath points the helper at the directory new minidumps are
// written to. The helper does not acknowledge it.
func (c *Client) SetCrashReportPath(path string) error {
	return c.send(&messages.SetCrashReportPath{Path: path})
}

// GenerateMinidump asks the helper to dump thread tid of process pid and
// returns the path of the minidump.
func (c *Client) GenerateMinidump(pid, tid int) (string, error) {
	reply, err := c.request(&messages.GenerateMinidump{PID: int32(pid), TID: int32(tid)})
	if err != nil {
		return "", err
	}
	r, ok := reply.(*messages.GenerateMinidumpReply)
	if !ok {
		return "", fmt.Errorf("%w: %s to GenerateMinidump", ErrUnexpectedReply, reply.Kind())
	}
	if r.Error != "" {
		return "", &RemoteError{Op: "GenerateMinidump", Message: r.Error}
	}
	return r.Path, nil
}

// TransferMinidump takes over the minidump generated for pid along with its
// annotations.
func (c *Client) TransferMinidump(pid int) (Minidump, error) {
	reply, err := c.request(&messages.TransferMinidump{PID: int32(pid)})
	if err != nil {
		return Minidump{}, err
	}
	r, ok := reply.(*messages.TransferMinidumpReply)
	if !ok {
		return Minidump{}, fmt.Errorf("%w: %s to TransferMinidump", ErrUnexpectedReply, reply.Kind())
	}
	if r.Error != "" {
		return Minidump{}, &RemoteError{Op: "TransferMinidump", Message: r.Error}
	}
	return Minidump{Path: r.Path, ExtraPath: r.ExtraPath}, nil
}

// RegisterChildProcess hands the helper one end of a connection to child
// process pid. endpoint is sent as ancillary data and stays owned by the
// caller.
func (c *Client) RegisterChildProcess(pid int, endpoint *os.File) error {
	return c.send(&messages.RegisterChildProcess{PID: int32(pid), Endpoint: endpoint})
}

func (c *Client) RegisterAuxvInfo(pid int, info messages.AuxvInfo) error {
	return c.send(&messages.RegisterAuxvInfo{PID: int32(pid), Auxv: info})
}

func (c *Client) UnregisterAuxvInfo(pid int) error {
	return c.send(&messages.UnregisterAuxvInfo{PID: int32(pid)})
}

func (c *Client) SetPHCAddrInfo(pid int, addrInfo []byte) error {
	return c.send(&messages.SetPHCAddrInfo{PID: int32(pid), AddrInfo: addrInfo})
}

// Close disconnects from the helper, which makes a spawned helper exit, and
// waits for it.
func (c *Client) Close() error {
	c.mu.Lock()
	err := c.conn.Close()
	c.mu.Unlock()
	return errors.Join(err, c.Wait())
}

// Wait blocks until a spawned helper exits and returns its exit error.
func (c *Client) Wait() error {
	if c.done == nil {
		return nil
	}
	<-c.done
	return c.waitErr
}
