package client

import "github.com/ZenHive/websockex-nova-go/events"

// Kind extends events.Kind with the one variant a leaf package cannot
// express: Reconnected, which carries a *ClientConn.
type Kind int

const (
	ConnectionUp Kind = iota
	ConnectionDown
	WebSocketUpgrade
	FrameReceived
	Error
	// Reconnected fires once per completed reconnection cycle, after
	// StateSync has brought ClientConn back in lockstep with the fresh
	// connstate.State (spec §4.8 step 5).
	Reconnected
)

func fromEventsKind(k events.Kind) Kind {
	switch k {
	case events.ConnectionUp:
		return ConnectionUp
	case events.ConnectionDown:
		return ConnectionDown
	case events.WebSocketUpgrade:
		return WebSocketUpgrade
	case events.FrameReceived:
		return FrameReceived
	case events.Error:
		return Error
	default:
		return Error
	}
}

// Event is what ClientConn's subscribers receive: the engine-level
// events.Event, enriched with the ClientConn itself on Reconnected so
// observers can pick up the post-reconnect session state directly.
type Event struct {
	Kind  Kind
	Inner events.Event
	Conn  *ClientConn
}
