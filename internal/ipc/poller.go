package ipc

import "fmt"

// Event is something WaitForEvents observed. Indices refer to the connector
// slice passed to that call and are valid for that cycle only.
type Event interface {
	isEvent()
}

// ConnectEvent reports a new peer accepted on the listener.
type ConnectEvent struct {
	Connector *Connector
}

// HeaderEvent reports a fully received header on connectors[Index].
type HeaderEvent struct {
	Index  int
	Header Header
}

// DisconnectEvent reports that connectors[Index] hung up.
type DisconnectEvent struct {
	Index int
}

// MalformedEvent reports a header read on connectors[Index] that failed to
// parse. The peer stays connected; callers may count these and drop peers
// that keep sending garbage.
type MalformedEvent struct {
	Index int
	Err   error
}

func (ConnectEvent) isEvent()    {}
func (HeaderEvent) isEvent()     {}
func (DisconnectEvent) isEvent() {}
func (MalformedEvent) isEvent()  {}

func (e ConnectEvent) String() string {
	return fmt.Sprintf("Connect(%d)", e.Connector.ID())
}

func (e HeaderEvent) String() string {
	return fmt.Sprintf("Header(%d, %s, %d)", e.Index, e.Header.Kind, e.Header.Size)
}

func (e DisconnectEvent) String() string {
	return fmt.Sprintf("Disconnect(%d)", e.Index)
}

func (e MalformedEvent) String() string {
	return fmt.Sprintf("Malformed(%d, %v)", e.Index, e.Err)
}
