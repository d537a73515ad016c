// Package connstate holds the transport-only ConnectionState record and the
// StateMachine that guards its status transitions (spec §3, §4.3, §4.4).
//
// ConnectionState never carries session data (auth tokens, subscriptions,
// credentials): the type has no fields of its own for them, and New drops
// the credentials out of the config.Options it stores. See package client
// for the session-level record
// (ClientConn) and client/statesync.go for how the two stay in lockstep
// across reconnects.
package connstate

// Status is the connection lifecycle enum of spec §3.
type Status int

const (
	Initialized Status = iota
	Connecting
	Connected
	WebSocketConnected
	Disconnected
	Reconnecting
	Error
)

func (s Status) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case WebSocketConnected:
		return "websocket_connected"
	case Disconnected:
		return "disconnected"
	case Reconnecting:
		return "reconnecting"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}
