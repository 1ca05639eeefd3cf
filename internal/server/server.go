// Package server runs the crash helper's event loop: it owns the listener
// and every live connector, and turns client requests into crash generator
// calls.
package server

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/mozilla/gecko-dev-sub036/internal/crashgen"
	"github.com/mozilla/gecko-dev-sub036/internal/ipc"
	"github.com/mozilla/gecko-dev-sub036/internal/syslog"
)

type State int

const (
	Listening State = iota
	Connected
	ClientDisconnected
	Failed
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Connected:
		return "connected"
	case ClientDisconnected:
		return "client disconnected"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type options struct {
	malformedBurst  int
	malformedRefill time.Duration
}

type Option func(*options)

// WithMalformedLimit lets each connector send burst malformed headers,
// refilled at one per refill, before it is disconnected.
func WithMalformedLimit(burst int, refill time.Duration) Option {
	return func(o *options) {
		o.malformedBurst = burst
		o.malformedRefill = refill
	}
}

// peer is the bookkeeping kept next to each connector. Connectors and peers
// are parallel slices so the connector slice can be handed to the poller
// as is.
type peer struct {
	primary   bool
	malformed *rate.Limiter
}

type Server struct {
	listener   *ipc.Listener
	connectors []*ipc.Connector
	peers      []peer
	generator  *crashgen.Generator
	state      State
	opts       options
}

func New(listener *ipc.Listener, generator *crashgen.Generator, opts ...Option) *Server {
	o := options{malformedBurst: 8, malformedRefill: time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		listener:  listener,
		generator: generator,
		state:     Listening,
		opts:      o,
	}
}

// State returns the state of the loop. It must not be called while Run is
// executing on another goroutine.
func (s *Server) State() State {
	return s.state
}

// AddConnector adds an already connected peer, such as the inherited end of
// an ipc.Channel. The first primary connector is the client whose
// disconnection ends the loop.
func (s *Server) AddConnector(c *ipc.Connector, primary bool) {
	if primary && s.hasPrimary() {
		primary = false
	}
	s.connectors = append(s.connectors, c)
	s.peers = append(s.peers, peer{
		primary:   primary,
		malformed: rate.NewLimiter(rate.Every(s.opts.malformedRefill), s.opts.malformedBurst),
	})
	if primary {
		s.state = Connected
	}

	syslog.L.Debug().
		WithMessage("connector added").
		WithFields(map[string]interface{}{"connector": c.ID(), "primary": primary}).
		Write()
}

func (s *Server) hasPrimary() bool {
	return slices.ContainsFunc(s.peers, func(p peer) bool { return p.primary })
}

// Run serves events until the primary client disconnects, which returns 0,
// or an unrecoverable error occurs, which returns -1. ctx is checked between
// poll cycles; a cancelled context ends the loop with 0.
func (s *Server) Run(ctx context.Context) int {
	if err := s.listener.Listen(); err != nil {
		syslog.L.Error(err).WithMessage("failed to listen").Write()
		s.state = Failed
		return -1
	}

	for {
		if ctx.Err() != nil {
			syslog.L.Info().WithMessage("crash helper cancelled").Write()
			return 0
		}

		events, err := ipc.WaitForEvents(s.listener, s.connectors)
		if err != nil {
			syslog.L.Error(err).WithMessage("failed to wait for events").Write()
			s.state = Failed
			return -1
		}
		s.handleEvents(ctx, events)

		switch s.state {
		case ClientDisconnected:
			return 0
		case Failed:
			return -1
		}
	}
}

// RunOnThread runs the loop on a dedicated, locked OS thread and delivers
// its exit code on the returned channel.
func (s *Server) RunOnThread(ctx context.Context) <-chan int {
	result := make(chan int, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		result <- s.Run(ctx)
	}()
	return result
}

// Close releases the listener and every connector.
func (s *Server) Close() error {
	errs := []error{s.listener.Close()}
	for _, c := range s.connectors {
		errs = append(errs, c.Close())
	}
	s.connectors, s.peers = nil, nil
	return errors.Join(errs...)
}

// handleEvents processes one poll cycle. Indices in events refer to the
// connector slice as it was when polled; connectors accepted during the
// cycle are appended, and removals are applied at the end in descending
// index order so those indices stay valid throughout.
func (s *Server) handleEvents(ctx context.Context, events []ipc.Event) {
	drop := make(map[int]error)

	for _, ev := range events {
		switch e := ev.(type) {
		case ipc.ConnectEvent:
			s.AddConnector(e.Connector, !s.hasPrimary())

		case ipc.HeaderEvent:
			if _, dropped := drop[e.Index]; dropped {
				continue
			}
			if err := s.handleMessage(ctx, e.Index, e.Header); err != nil {
				drop[e.Index] = err
			}

		case ipc.MalformedEvent:
			if _, dropped := drop[e.Index]; dropped {
				continue
			}
			if !s.peers[e.Index].malformed.Allow() {
				drop[e.Index] = e.Err
				continue
			}
			syslog.L.Warn().
				WithErr(e.Err).
				WithMessage("ignoring malformed header").
				WithField("connector", s.connectors[e.Index].ID()).
				Write()

		case ipc.DisconnectEvent:
			if _, dropped := drop[e.Index]; !dropped {
				drop[e.Index] = nil
			}
		}
	}

	indices := make([]int, 0, len(drop))
	for i := range drop {
		indices = append(indices, i)
	}
	slices.Sort(indices)
	for j := len(indices) - 1; j >= 0; j-- {
		i := indices[j]
		s.removeConnector(i, drop[i])
	}
}

// removeConnector closes connectors[i]. cause is nil or a disconnect for a
// peer that went away, anything else for a peer that was dropped.
func (s *Server) removeConnector(i int, cause error) {
	c, p := s.connectors[i], s.peers[i]
	s.connectors = slices.Delete(s.connectors, i, i+1)
	s.peers = slices.Delete(s.peers, i, i+1)
	c.Close()

	clean := cause == nil || ipc.IsDisconnect(cause)
	if clean {
		syslog.L.Debug().
			WithMessage("connector disconnected").
			WithFields(map[string]interface{}{"connector": c.ID(), "primary": p.primary}).
			Write()
	} else {
		syslog.L.Error(cause).
			WithMessage("dropping connector").
			WithFields(map[string]interface{}{"connector": c.ID(), "primary": p.primary}).
			Write()
	}

	if !p.primary {
		return
	}
	if clean {
		s.state = ClientDisconnected
	} else {
		s.state = Failed
	}
}
