package server

import (
	"context"
	"errors"

	"github.com/mozilla/gecko-dev-sub036/internal/crashgen"
	"github.com/mozilla/gecko-dev-sub036/internal/ipc"
	"github.com/mozilla/gecko-dev-sub036/internal/ipc/messages"
	"github.com/mozilla/gecko-dev-sub036/internal/syslog"
)

// handleMessage reads the rest of the message announced by h on
// connectors[index] and serves it. A returned error means the connector
// must be dropped.
func (s *Server) handleMessage(ctx context.Context, index int, h ipc.Header) error {
	c := s.connectors[index]

	payload, ancillary, err := c.RecvPayload(h)
	if err != nil {
		return err
	}
	msg, err := messages.Decode(h, payload, ancillary)
	if err != nil {
		return err
	}

	syslog.L.Debug().
		WithMessage("message received").
		WithFields(map[string]interface{}{"connector": c.ID(), "kind": h.Kind.String(), "size": h.Size}).
		Write()

	switch m := msg.(type) {
	case *messages.Ping:
		return c.SendMessage(&messages.Pong{})

	case *messages.SetCrashReportPath:
		if err := s.generator.SetCrashReportPath(m.Path); err != nil {
			syslog.L.Error(err).WithMessage("failed to set crash report path").Write()
		}

	case *messages.GenerateMinidump:
		reply := &messages.GenerateMinidumpReply{}
		dump, err := s.generator.GenerateMinidump(ctx, int(m.PID), int(m.TID))
		if err != nil {
			syslog.L.Error(err).WithMessage("failed to generate minidump").WithField("pid", m.PID).Write()
			reply.Error = err.Error()
		} else {
			reply.Path = dump.Path
		}
		return sendReply(c, reply, &messages.GenerateMinidumpReply{Error: replyTooLarge})

	case *messages.TransferMinidump:
		reply := &messages.TransferMinidumpReply{}
		dump, err := s.generator.TransferMinidump(int(m.PID))
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Path = dump.Path
			reply.ExtraPath = dump.ExtraPath
		}
		return sendReply(c, reply, &messages.TransferMinidumpReply{Error: replyTooLarge})

	case *messages.RegisterChildProcess:
		child, err := ipc.FromFile(m.Endpoint)
		if err != nil {
			syslog.L.Error(err).WithMessage("failed to adopt child endpoint").WithField("pid", m.PID).Write()
			return nil
		}
		s.AddConnector(child, false)

	case *messages.RegisterAuxvInfo:
		s.generator.RegisterAuxvInfo(int(m.PID), crashgen.AuxvInfo(m.Auxv))

	case *messages.UnregisterAuxvInfo:
		s.generator.UnregisterAuxvInfo(int(m.PID))

	case *messages.SetPHCAddrInfo:
		s.generator.SetPHCAddrInfo(int(m.PID), m.AddrInfo)

	default:
		// Replies are only ever sent by the helper.
		syslog.L.Warn().
			WithMessage("unexpected message").
			WithFields(map[string]interface{}{"connector": c.ID(), "kind": h.Kind.String()}).
			Write()
	}
	return nil
}

const replyTooLarge = "reply does not fit in one message"

// sendReply sends reply, or fallback if reply exceeds ipc.MaxPayloadSize.
// Nothing is written before the size check fails, so the connection stays
// in sync.
func sendReply(c *ipc.Connector, reply, fallback ipc.Message) error {
	err := c.SendMessage(reply)
	if !errors.Is(err, ipc.ErrTooLarge) {
		return err
	}
	syslog.L.Warn().
		WithErr(err).
		WithMessage("reply too large, sending error instead").
		WithFields(map[string]interface{}{"connector": c.ID(), "kind": reply.Kind().String()}).
		Write()
	return c.SendMessage(fallback)
}
