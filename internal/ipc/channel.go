package ipc

import "errors"

// ErrChannelConsumed is returned by Deconstruct once the parts were taken.
var ErrChannelConsumed = errors.New("ipc channel already deconstructed")

// Channel bundles a listener with a connected pair of connectors, created
// before the helper is launched. The server end is inheritable, the client
// end is not.
type Channel struct {
	listener *Listener
	server   *Connector
	client   *Connector
}

// Deconstruct hands out the listener, the server end and the client end.
// It can succeed only once.
func (ch *Channel) Deconstruct() (*Listener, *Connector, *Connector, error) {
	if ch.listener == nil {
		return nil, nil, nil, ErrChannelConsumed
	}
	l, s, c := ch.listener, ch.server, ch.client
	ch.listener, ch.server, ch.client = nil, nil, nil
	return l, s, c, nil
}

// Close releases whatever has not been deconstructed yet.
func (ch *Channel) Close() error {
	var errs []error
	if ch.listener != nil {
		errs = append(errs, ch.listener.Close())
	}
	if ch.server != nil {
		errs = append(errs, ch.server.Close())
	}
	if ch.client != nil {
		errs = append(errs, ch.client.Close())
	}
	ch.listener, ch.server, ch.client = nil, nil, nil
	return errors.Join(errs...)
}
