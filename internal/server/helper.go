package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mozilla/gecko-dev-sub036/internal/config"
	"github.com/mozilla/gecko-dev-sub036/internal/crashgen"
	"github.com/mozilla/gecko-dev-sub036/internal/ipc"
	"github.com/mozilla/gecko-dev-sub036/internal/syslog"
)

// Main runs the crash helper executable and returns its exit code:
//
//	crashhelper [-listener-fd N -endpoint-fd M] <client-pid>
//
// Without inherited handles the helper binds its own listener for
// client-pid and waits for the client to connect.
func Main(args []string) int {
	fs := flag.NewFlagSet("crashhelper", flag.ContinueOnError)
	listenerHandle := fs.Uint64("listener-fd", 0, "inherited listener handle")
	endpointHandle := fs.Uint64("endpoint-fd", 0, "inherited handle of the connected client endpoint")
	if err := fs.Parse(args); err != nil {
		return -1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(fs.Output(), "usage: crashhelper [-listener-fd N -endpoint-fd M] <client-pid>")
		return -1
	}

	pid, err := ipc.ParsePID(fs.Arg(0))
	if err != nil {
		syslog.L.Error(err).WithMessage("invalid client pid").Write()
		return -1
	}

	cfg, err := config.Load()
	if err != nil {
		syslog.L.Error(err).WithMessage("failed to load config").Write()
		return -1
	}
	if err := syslog.L.SetLevel(cfg.LogLevel); err != nil {
		syslog.L.Warn().WithErr(err).WithMessage("ignoring log level").Write()
	}

	if path := os.Getenv(config.EnvConfigPath); path != "" {
		watcher, err := config.NewWatcher(path, func(c config.Config) {
			if err := syslog.L.SetLevel(c.LogLevel); err != nil {
				syslog.L.Warn().WithErr(err).WithMessage("ignoring log level").Write()
			}
		})
		if err != nil {
			syslog.L.Warn().WithErr(err).WithMessage("config changes will not be picked up").Write()
		} else {
			defer watcher.Close()
		}
	}

	listener, endpoint, err := openEndpoints(pid, uintptr(*listenerHandle), uintptr(*endpointHandle))
	if err != nil {
		syslog.L.Error(err).
			WithMessage("failed to set up ipc").
			WithField("client_pid", pid).
			Write()
		return -1
	}

	srv := New(listener, crashgen.NewGenerator(newWriter(cfg), cfg.ReportDir),
		WithMalformedLimit(cfg.MaxMalformed, cfg.MalformedRefill))
	defer srv.Close()
	if endpoint != nil {
		srv.AddConnector(endpoint, true)
	}

	syslog.L.Info().
		WithMessage("crash helper started").
		WithFields(map[string]interface{}{"client_pid": pid, "address": listener.Address()}).
		Write()

	code := run(context.Background(), srv)

	syslog.L.Info().
		WithMessage("crash helper exiting").
		WithFields(map[string]interface{}{"state": srv.State().String(), "code": code}).
		Write()
	return code
}

func openEndpoints(pid int, listenerHandle, endpointHandle uintptr) (*ipc.Listener, *ipc.Connector, error) {
	if (listenerHandle == 0) != (endpointHandle == 0) {
		return nil, nil, errors.New("-listener-fd and -endpoint-fd must be given together")
	}
	if listenerHandle == 0 {
		listener, err := ipc.NewListener(pid)
		return listener, nil, err
	}

	listener, err := ipc.AdoptListener(listenerHandle, pid)
	if err != nil {
		return nil, nil, err
	}
	endpoint, err := ipc.AdoptConnector(endpointHandle)
	if err != nil {
		listener.Close()
		return nil, nil, err
	}
	return listener, endpoint, nil
}

func newWriter(cfg config.Config) crashgen.MinidumpWriter {
	if cfg.Dumper == "" {
		return crashgen.NoopWriter{}
	}
	return &crashgen.ExecWriter{Path: cfg.Dumper, Args: cfg.DumperArgs, Timeout: cfg.DumperTimeout}
}
