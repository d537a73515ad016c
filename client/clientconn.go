// Package client implements ClientConn, StateSync, and ClientAPI (spec
// §3, §4.10, §4.11): the session-level record layered on top of one
// engine.Engine, and the public façade adapters and callers use. This is
// also where the richer client.Event (wrapping a *ClientConn) is
// synthesized — see event.go's doc comment for why that can't live in the
// leaf events package.
package client

import (
	"sync"

	"github.com/ZenHive/websockex-nova-go/config"
	"github.com/ZenHive/websockex-nova-go/correlate"
	"github.com/ZenHive/websockex-nova-go/engine"
	"github.com/ZenHive/websockex-nova-go/handlers"
	"github.com/ZenHive/websockex-nova-go/transport"
)

// AuthStatus is ClientConn's authentication lifecycle (spec §3).
type AuthStatus int

const (
	Unauthenticated AuthStatus = iota
	Authenticating
	Authenticated
	AuthFailed
)

func (s AuthStatus) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case AuthFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SubscriptionRecord is one entry of ClientConn.Subscriptions.
type SubscriptionRecord struct {
	Channel string
	Params  map[string]any
}

// ClientConn is the session-level record of spec §3: everything that must
// survive a reconnect untouched (auth state, subscriptions, pending
// requests) plus a thin pointer to the transport-level Engine that
// currently backs it. Apart from Engine and the TransportHandle/StreamRef
// pair that StateSync (statesync.go) refreshes from connstate.State, every
// field here is session data that connstate.State never holds.
type ClientConn struct {
	mu sync.RWMutex

	Engine *engine.Engine

	TransportHandle transport.Handle
	StreamRef       transport.StreamRef
	ConnectionInfo  config.Options

	AuthStatus  AuthStatus
	AccessToken string
	Credentials config.Credentials

	Subscriptions map[string]SubscriptionRecord
	AdapterState  any

	LastError error

	Correlator *correlate.Correlator
	Handlers   handlers.Bindings

	callbacks map[chan Event]struct{}
}

// New builds a fresh ClientConn bound to e, in Unauthenticated status with
// no subscriptions and no pending requests.
func New(e *engine.Engine, info config.Options, hb handlers.Bindings) *ClientConn {
	return &ClientConn{
		Engine:         e,
		ConnectionInfo: info,
		AuthStatus:     Unauthenticated,
		Subscriptions:  make(map[string]SubscriptionRecord),
		Correlator:     correlate.New(),
		Handlers:       hb,
		callbacks:      make(map[chan Event]struct{}),
	}
}

// RegisterCallback adds ch to the set of subscribers observing this
// connection's reconnect/lifecycle events (spec §4.10's register_callback).
func (c *ClientConn) RegisterCallback(ch chan Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks[ch] = struct{}{}
}

// UnregisterCallback removes ch from the subscriber set.
func (c *ClientConn) UnregisterCallback(ch chan Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.callbacks, ch)
}

// callbackSnapshot returns the current subscriber set, safe to range over
// without holding c.mu.
func (c *ClientConn) callbackSnapshot() []chan Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]chan Event, 0, len(c.callbacks))
	for ch := range c.callbacks {
		out = append(out, ch)
	}
	return out
}

func (c *ClientConn) setAuthStatus(s AuthStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AuthStatus = s
}

func (c *ClientConn) setAccessToken(tok string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AccessToken = tok
}

func (c *ClientConn) recordError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastError = err
}

func (c *ClientConn) putSubscription(channel string, params map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Subscriptions[channel] = SubscriptionRecord{Channel: channel, Params: params}
}

func (c *ClientConn) dropSubscription(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Subscriptions, channel)
}

// SubscriptionSnapshot returns a copy of the current subscription set.
func (c *ClientConn) SubscriptionSnapshot() map[string]SubscriptionRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]SubscriptionRecord, len(c.Subscriptions))
	for k, v := range c.Subscriptions {
		out[k] = v
	}
	return out
}
