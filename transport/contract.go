// Package transport defines the external contract a TransportDriver must
// satisfy (spec §4.2). The core never touches wire bytes or raw sockets;
// it treats Handle and StreamRef as opaque, equality-comparable tokens and
// drives connections purely through this interface and the Event stream a
// driver emits back to its owner.
//
// Concrete drivers live in subpackages: gorillatransport wraps
// github.com/gorilla/websocket for real TCP/TLS + WS traffic,
// faketransport is an in-memory double used by engine/reconnect tests.
package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/ZenHive/websockex-nova-go/frame"
)

// Handle is the opaque identity of a live transport connection. Two Handles
// are equal iff they name the same underlying dial.
type Handle uint64

// NoHandle is the zero value, meaning "no live handle".
const NoHandle Handle = 0

// StreamRef is the opaque identity of an upgraded WebSocket stream within a
// Handle.
type StreamRef uint64

// NoStream is the zero value, meaning "no active stream".
const NoStream StreamRef = 0

// MonitorToken is an opaque liveness-watch token returned when a driver
// starts monitoring a Handle on the owner's behalf. It is the Go analogue
// of the source's monitored "Gun process" reference.
type MonitorToken uint64

// Kind ∈ {tcp, tls}.
type Kind int

const (
	TCP Kind = iota
	TLS
)

// Opts carries the transport-level knobs spec §6 names under "Transport":
// transport_opts, protocols, headers, ws_opts.
type Opts struct {
	Kind            Kind
	Headers         http.Header
	Protocols       []string
	DialTimeout     time.Duration
	HandshakeTimeout time.Duration
	Compress        bool
	MaxFrameSize    int64
	InsecureSkipVerify bool
}

// EventKind tags the variant of an Event.
type EventKind int

const (
	EventUp EventKind = iota
	EventDown
	EventUpgraded
	EventFrame
	EventStreamError
	EventOwnerDown
)

func (k EventKind) String() string {
	switch k {
	case EventUp:
		return "up"
	case EventDown:
		return "down"
	case EventUpgraded:
		return "upgraded"
	case EventFrame:
		return "frame"
	case EventStreamError:
		return "stream_error"
	case EventOwnerDown:
		return "owner_down"
	default:
		return "unknown"
	}
}

// Event is the single typed envelope a driver emits to its owner. Only the
// fields relevant to Kind are populated; every Event carries Handle so the
// owner (ConnectionEngine) can filter stale events per spec §4.8.
type Event struct {
	Kind    EventKind
	Handle  Handle
	Stream  StreamRef
	Protocol string

	// Down
	Reason  error
	Pending int
	Killed  bool

	// Upgraded
	Headers http.Header

	// Frame
	Wire frame.WireFrame

	// OwnerDown
	Monitor MonitorToken
}

// Driver is the external contract the core consumes (spec §4.2). One Driver
// instance is owned by exactly one ConnectionEngine at a time; ownership
// moves between engines only via SetOwner, and the caller must release any
// prior monitor before installing a new one (spec §3 invariant).
type Driver interface {
	// Open non-blockingly dials host:port and arranges for Event{Kind: Up}
	// to be delivered to owner once the TCP/TLS connection is ready, or
	// Event{Kind: Down} if it drops. The context bounds only the dial
	// itself, not the connection's lifetime.
	Open(ctx context.Context, host string, port uint16, opts Opts, owner chan<- Event) (Handle, error)

	// Upgrade performs the HTTP -> WebSocket upgrade on an already-open
	// Handle, emitting Event{Kind: Upgraded} on success or
	// Event{Kind: StreamError} on failure.
	Upgrade(ctx context.Context, h Handle, path string, headers http.Header) (StreamRef, error)

	// Send writes a single wire frame on the given stream.
	Send(h Handle, s StreamRef, w frame.WireFrame) error

	// SetOwner transfers event routing for h to a new channel, returning a
	// fresh MonitorToken. Callers must release the old monitor (via Close
	// or a subsequent SetOwner) before treating the handle as transferred.
	SetOwner(h Handle, owner chan<- Event) (MonitorToken, error)

	// Close tears down h and all of its streams. Safe to call more than
	// once; a second Close on an already-closed handle is a no-op.
	Close(h Handle)
}

// ErrNoHandle is returned by operations that require a live handle when
// none exists.
var ErrNoHandle = errNoHandle{}

type errNoHandle struct{}

func (errNoHandle) Error() string { return "no handle" }
