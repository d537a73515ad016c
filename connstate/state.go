package connstate

import (
	"sync"

	"github.com/ZenHive/websockex-nova-go/config"
	"github.com/ZenHive/websockex-nova-go/events"
	"github.com/ZenHive/websockex-nova-go/handlers"
	"github.com/ZenHive/websockex-nova-go/transport"
)

// StreamKind tags what stage a ConnectionState.ActiveStreams entry is in.
type StreamKind int

const (
	StreamUpgrading StreamKind = iota
	StreamWebSocket
)

func (k StreamKind) String() string {
	switch k {
	case StreamUpgrading:
		return "upgrading"
	case StreamWebSocket:
		return "websocket"
	default:
		return "unknown"
	}
}

// State is the transport-only record of spec §3/§4.3. It never holds
// session data (auth tokens, subscriptions, pending requests) — see
// package client's ClientConn for that layer, and client/statesync.go for
// how the two are kept in lockstep. Mutations go through the narrow setters
// below rather than direct field assignment; the one exception is
// client.SyncConnectionStateFromClient, which assigns Options directly.
type State struct {
	mu sync.RWMutex

	Host      string
	Port      uint16
	Path      string
	Transport transport.Kind
	Opts      transport.Opts

	status Status

	TransportHandle  transport.Handle
	TransportMonitor transport.MonitorToken
	ActiveStreams    map[transport.StreamRef]StreamKind
	currentStream    transport.StreamRef

	LastError         error
	ReconnectAttempts uint32

	Options  config.Options
	Handlers handlers.Bindings

	// CallbackSubscriber is the single channel ConnectionEngine emits
	// events.Event to (spec §3's "callback_subscriber"). Package client
	// installs itself here and fans richer client.Event values out to its
	// own plural set of external subscribers.
	CallbackSubscriber chan<- events.Event
}

// New builds a State in Initialized status with no active streams. Any
// credentials in co.Auth are dropped, since State never holds session data.
func New(host string, port uint16, path string, tk transport.Kind, opts transport.Opts, co config.Options, hb handlers.Bindings, sub chan<- events.Event) *State {
	co.Auth.Credentials = nil
	return &State{
		Host:               host,
		Port:               port,
		Path:               path,
		Transport:          tk,
		Opts:               opts,
		status:             Initialized,
		ActiveStreams:      make(map[transport.StreamRef]StreamKind),
		Options:            co,
		Handlers:           hb,
		CallbackSubscriber: sub,
	}
}

// Status returns the current lifecycle status.
func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// UpdateStatus sets the status directly. Callers outside this package
// should go through StateMachine.TransitionTo instead, which validates the
// transition before calling this.
func (s *State) UpdateStatus(next Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = next
}

// UpdateHandle records a new transport handle, e.g. after a fresh Open.
func (s *State) UpdateHandle(h transport.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TransportHandle = h
}

// UpdateMonitor records a new monitor token, e.g. after SetOwner.
func (s *State) UpdateMonitor(tok transport.MonitorToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TransportMonitor = tok
}

// RecordError stashes the most recent transport-level error; passing nil
// clears it. The engine only ever records errors and does not clear
// LastError after a successful reconnect.
func (s *State) RecordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastError = err
}

// IncrementReconnectAttempts bumps and returns the new attempt counter.
func (s *State) IncrementReconnectAttempts() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReconnectAttempts++
	return s.ReconnectAttempts
}

// ResetReconnectAttempts zeroes the attempt counter after a successful
// connect.
func (s *State) ResetReconnectAttempts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReconnectAttempts = 0
}

// UpdateStream records or updates the kind of one active stream and marks
// it the current stream (the one CurrentStream reports). Ranging over
// ActiveStreams to find "the" stream would be order-dependent once more
// than one entry exists (e.g. an upgrading stream alongside a live
// websocket one during a handoff) — tracking the most recently touched
// ref directly avoids that.
func (s *State) UpdateStream(ref transport.StreamRef, kind StreamKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ActiveStreams[ref] = kind
	s.currentStream = ref
}

// CurrentStream returns the ref most recently passed to UpdateStream, the
// stream callers should address outbound sends to.
func (s *State) CurrentStream() transport.StreamRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentStream
}

// RemoveStream drops one stream entry.
func (s *State) RemoveStream(ref transport.StreamRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ActiveStreams, ref)
}

// RemoveStreams drops several stream entries at once.
func (s *State) RemoveStreams(refs []transport.StreamRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range refs {
		delete(s.ActiveStreams, ref)
	}
}

// ClearAllStreams drops every active stream entry, e.g. on EventDown.
func (s *State) ClearAllStreams() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ActiveStreams = make(map[transport.StreamRef]StreamKind)
}

// Streams returns a snapshot copy of the active stream set.
func (s *State) Streams() map[transport.StreamRef]StreamKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[transport.StreamRef]StreamKind, len(s.ActiveStreams))
	for k, v := range s.ActiveStreams {
		out[k] = v
	}
	return out
}
