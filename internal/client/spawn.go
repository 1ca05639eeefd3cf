package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mozilla/gecko-dev-sub036/internal/config"
	"github.com/mozilla/gecko-dev-sub036/internal/ipc"
	"github.com/mozilla/gecko-dev-sub036/internal/syslog"
	"github.com/mozilla/gecko-dev-sub036/internal/utils"
)

const (
	connectBackoffInitial = 10 * time.Millisecond
	connectBackoffMax     = 500 * time.Millisecond
)

// ErrHelperExited is returned when the helper dies before the client could
// connect to it.
var ErrHelperExited = errors.New("crash helper exited early")

type Options struct {
	// ConnectTimeout bounds how long Spawn retries to reach the helper.
	ConnectTimeout time.Duration
	// Env is the helper's environment; nil means the current one.
	Env    []string
	Stderr io.Writer
}

func NewOptions(cfg config.Config) Options {
	return Options{ConnectTimeout: cfg.ConnectTimeout, Stderr: os.Stderr}
}

// ConnectWithBackoff connects to the helper serving pid, retrying with
// exponential backoff while nobody listens yet, until ctx is done.
func ConnectWithBackoff(ctx context.Context, pid int) (*ipc.Connector, error) {
	backoff := utils.NewExponentialBackoff(connectBackoffInitial, connectBackoffMax)
	for {
		conn, err := ipc.Connect(pid)
		if err == nil {
			return conn, nil
		}
		if !errors.Is(err, ipc.ErrConnectionFailure) {
			return nil, err
		}
		if werr := backoff.Wait(ctx); werr != nil {
			return nil, fmt.Errorf("failed to reach crash helper for pid %d: %w", pid, errors.Join(err, werr))
		}
	}
}

func (o Options) command(helperPath string, args ...string) *exec.Cmd {
	cmd := exec.Command(helperPath, args...)
	cmd.Env = o.Env
	cmd.Stderr = o.Stderr
	return cmd
}

// start launches cmd and returns a Client whose Wait reports its exit.
func start(cmd *exec.Cmd) (*Client, error) {
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start crash helper %s: %w", cmd.Path, err)
	}
	c := &Client{cmd: cmd, done: make(chan struct{})}
	go func() {
		c.waitErr = cmd.Wait()
		close(c.done)
	}()
	return c, nil
}

func (c *Client) kill() {
	_ = c.cmd.Process.Kill()
	<-c.done
}

// Spawn launches helperPath for the current process and connects to the
// listener it binds. Connecting races against the helper exiting early.
func Spawn(ctx context.Context, helperPath string, opts Options) (*Client, error) {
	pid := os.Getpid()
	c, err := start(opts.command(helperPath, strconv.Itoa(pid)))
	if err != nil {
		return nil, err
	}

	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		conn, err := ConnectWithBackoff(gctx, pid)
		if err != nil {
			return err
		}
		c.conn = conn
		stop()
		return nil
	})
	g.Go(func() error {
		select {
		case <-c.done:
			return fmt.Errorf("%w: %v", ErrHelperExited, c.waitErr)
		case <-gctx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil {
		if c.conn != nil {
			c.conn.Close()
		}
		c.kill()
		return nil, err
	}

	syslog.L.Debug().
		WithMessage("connected to crash helper").
		WithFields(map[string]interface{}{"helper_pid": c.Pid(), "client_pid": pid}).
		Write()
	return c, nil
}

// SpawnChannel creates the listener and a connected pair up front and
// launches helperPath with the listener and the server end inherited, so
// no connection has to be established after the helper starts.
func SpawnChannel(helperPath string, opts Options) (*Client, error) {
	channel, err := ipc.NewChannel()
	if err != nil {
		return nil, err
	}
	listener, serverEnd, clientEnd, err := channel.Deconstruct()
	if err != nil {
		channel.Close()
		return nil, err
	}

	cmd := opts.command(helperPath)
	release, err := inheritEndpoints(cmd, listener, serverEnd)
	if err != nil {
		listener.Close()
		serverEnd.Close()
		clientEnd.Close()
		return nil, err
	}
	cmd.Args = append(cmd.Args, strconv.Itoa(os.Getpid()))

	c, err := start(cmd)
	release()
	if err != nil {
		listener.Close()
		serverEnd.Close()
		clientEnd.Close()
		return nil, err
	}

	// The helper owns both from now on.
	listener.Detach()
	serverEnd.Close()

	c.conn = clientEnd
	return c, nil
}
