// Package events defines the envelope ConnectionEngine emits to its single
// registered subscriber (spec §3's "callback_subscriber", §6's "Events
// emitted to subscribers"). It is a leaf package — transport and frame
// only — so connstate, engine, and client can all depend on it without
// creating a cycle back to client.ClientConn.
package events

import (
	"net/http"

	"github.com/ZenHive/websockex-nova-go/frame"
	"github.com/ZenHive/websockex-nova-go/transport"
)

// Kind tags the variant of an Event, matching spec §6's enumerated list:
// ConnectionUp, ConnectionDown, WebSocketUpgrade, Frame, Error,
// Reconnected. Reconnected itself is not modeled here — it carries a
// ClientConn, a session-level type engine does not know about — and is
// instead synthesized by package client once it observes a
// WebSocketUpgrade event tagged AfterReconnect (see Connection.handle in
// client's connection.go).
type Kind int

const (
	ConnectionUp Kind = iota
	ConnectionDown
	WebSocketUpgrade
	FrameReceived
	Error
)

func (k Kind) String() string {
	switch k {
	case ConnectionUp:
		return "connection_up"
	case ConnectionDown:
		return "connection_down"
	case WebSocketUpgrade:
		return "websocket_upgrade"
	case FrameReceived:
		return "frame"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Event is the envelope delivered to ConnectionState.CallbackSubscriber.
// Only the fields relevant to Kind are populated.
type Event struct {
	Kind Kind

	Protocol string
	Reason   error
	Stream   transport.StreamRef
	Headers  http.Header
	Frame    frame.Frame

	// AfterReconnect is set on a WebSocketUpgrade event that completed a
	// reconnection cycle (spec §4.8 step 5). Package client watches for
	// this to synthesize its own richer Reconnected(ClientConn') event
	// without events needing to know what a ClientConn is.
	AfterReconnect bool
}
