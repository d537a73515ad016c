// Package engine implements ConnectionEngine (spec §4.8): the single
// owner of a connstate.State, driving it through a cooperative,
// single-goroutine event loop in the style of the teacher's
// ConnectSignaling/runSignalingSession loop (internal/heartbeat/
// websocket.go: for { select { case <-ctx.Done(): ...; case <-time.After(delay): ... } }),
// generalized from one hard-coded control-plane URL into a driver-agnostic
// reconnection state machine.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ZenHive/websockex-nova-go/connstate"
	"github.com/ZenHive/websockex-nova-go/correlate"
	"github.com/ZenHive/websockex-nova-go/events"
	"github.com/ZenHive/websockex-nova-go/frame"
	"github.com/ZenHive/websockex-nova-go/handlers"
	"github.com/ZenHive/websockex-nova-go/ratelimit"
	"github.com/ZenHive/websockex-nova-go/reconnect"
	"github.com/ZenHive/websockex-nova-go/transport"
)

// ErrNotConnected is returned by SendFrame when no live stream exists.
var ErrNotConnected = fmt.Errorf("engine: not connected")

// ErrClosed is returned by any command issued after Close has completed.
var ErrClosed = fmt.Errorf("engine: closed")

// ErrNoHandle mirrors spec §4.8's TransferOwnership failure mode.
var ErrNoHandle = fmt.Errorf("engine: no live handle")

// Engine is the single owner of one connstate.State (spec §4.8). Every
// mutation happens inside Run, reached only through the exported command
// methods below, each of which posts a closure onto cmds and waits for it
// to execute — the classic "channel of funcs" Go actor shape.
type Engine struct {
	state      *connstate.State
	driver     transport.Driver
	correlator *correlate.Correlator
	limiter    *ratelimit.Limiter
	policy     *reconnect.Policy

	cmds   chan func()
	owner  chan transport.Event
	closed chan struct{}

	reconnecting bool // true from the moment a Down event starts a reconnect cycle until the next WebSocketUpgrade
}

// New builds an Engine around state, using driver to dial, correlator to
// match replies, limiter to gate outbound frames, and policy to decide
// reconnection.
func New(state *connstate.State, driver transport.Driver, correlator *correlate.Correlator, limiter *ratelimit.Limiter, policy *reconnect.Policy) *Engine {
	return &Engine{
		state:      state,
		driver:     driver,
		correlator: correlator,
		limiter:    limiter,
		policy:     policy,
		cmds:       make(chan func()),
		owner:      make(chan transport.Event, 64),
		closed:     make(chan struct{}),
	}
}

// Run is the engine's event loop. It blocks until Close completes or ctx
// is cancelled, whichever comes first. Besides commands and transport
// events, it owns the two timers spec §4.8 lists as engine-level event
// classes: the rate limiter's queue-drain tick (RateLimiterTick,
// process_interval) and the ping/pong keepalive tick — neither the
// limiter nor the handler is ever ticked by anything else.
func (e *Engine) Run(ctx context.Context) {
	var rateLimiterTick <-chan time.Time
	if e.limiter != nil && e.state.Options.RateLimit.RefillInterval > 0 {
		ticker := time.NewTicker(e.state.Options.RateLimit.RefillInterval)
		defer ticker.Stop()
		rateLimiterTick = ticker.C
	}

	var pingTick <-chan time.Time
	if e.state.Options.PingInterval > 0 {
		ticker := time.NewTicker(e.state.Options.PingInterval)
		defer ticker.Stop()
		pingTick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.closed:
			return
		case fn := <-e.cmds:
			fn()
		case ev := <-e.owner:
			e.handleTransportEvent(ctx, ev)
		case <-rateLimiterTick:
			e.limiter.Tick()
		case <-pingTick:
			e.sendPing()
		}
	}
}

// sendPing asks the bound ConnectionHandler for a ping frame and writes it
// straight to the wire, bypassing the rate limiter — keepalive traffic is
// engine-owned housekeeping, not an adapter-costed send (spec's supplemented
// "Engine-owned ping/pong keepalive" feature). A no-op until the first
// WebSocket upgrade, and again after any disconnect.
func (e *Engine) sendPing() {
	if e.state.Status() != connstate.WebSocketConnected {
		return
	}
	if e.state.Handlers.Connection == nil {
		return
	}
	if e.state.TransportHandle == transport.NoHandle {
		return
	}
	stream := e.state.CurrentStream()
	f, err := e.state.Handlers.Connection.Ping(stream)
	if err != nil {
		slog.Warn("ping: handler failed to build frame", "error", err)
		return
	}
	if werr := e.driver.Send(e.state.TransportHandle, stream, frame.Encode(f)); werr != nil {
		e.state.RecordError(werr)
	}
}

func (e *Engine) post(fn func()) {
	done := make(chan struct{})
	wrapped := func() { fn(); close(done) }
	select {
	case e.cmds <- wrapped:
		<-done
	case <-e.closed:
	}
}

// Connect dials the configured host/port, auto-upgrading to WebSocket once
// the TCP/TLS handshake completes (spec §4.8 step 4).
func (e *Engine) Connect(ctx context.Context) error {
	var err error
	e.post(func() {
		if _, tErr := connstate.TransitionTo(e.state, connstate.Connecting, connstate.TransitionContext{}); tErr != nil {
			err = tErr
			return
		}
		h, dErr := e.driver.Open(ctx, e.state.Host, e.state.Port, e.state.Opts, e.owner)
		if dErr != nil {
			err = dErr
			return
		}
		e.state.UpdateHandle(h)
	})
	return err
}

// SendFrame gates f through the rate limiter under costKey (one of the
// adapter's cost_map keys, e.g. "subscription"/"auth"/"order", or
// "default") and writes it to the wire on stream. Returns ErrNotConnected
// if the engine has no live handle or is not WebSocketConnected, or the
// limiter's rejection reason if the request is rejected outright.
func (e *Engine) SendFrame(stream transport.StreamRef, f frame.Frame, costKey string) error {
	var sendErr error
	e.post(func() {
		if e.state.TransportHandle == transport.NoHandle || e.state.Status() != connstate.WebSocketConnected {
			sendErr = ErrNotConnected
			return
		}
		wire := frame.Encode(f)
		do := func() {
			if werr := e.driver.Send(e.state.TransportHandle, stream, wire); werr != nil {
				e.state.RecordError(werr)
			}
		}
		if e.limiter == nil {
			do()
			return
		}
		outcome := e.limiter.Submit(costKey, do)
		if outcome.Kind == handlers.Reject {
			sendErr = fmt.Errorf("engine: send rejected: %s", outcome.Reason)
		}
	})
	return sendErr
}

// Upgrade issues the HTTP -> WebSocket upgrade on the current handle.
func (e *Engine) Upgrade(ctx context.Context, path string, headers http.Header) error {
	var err error
	e.post(func() {
		if e.state.TransportHandle == transport.NoHandle {
			err = ErrNotConnected
			return
		}
		if _, uerr := e.driver.Upgrade(ctx, e.state.TransportHandle, path, headers); uerr != nil {
			err = uerr
		}
	})
	return err
}

// TransferOwnership moves this engine's transport handle to another
// engine's owner channel (spec §4.8's "Ownership transfer").
func (e *Engine) TransferOwnership(to chan<- transport.Event) error {
	var err error
	e.post(func() {
		if e.state.TransportHandle == transport.NoHandle {
			err = ErrNoHandle
			return
		}
		tok, serr := e.driver.SetOwner(e.state.TransportHandle, to)
		if serr != nil {
			err = serr
			return
		}
		e.state.UpdateMonitor(tok)
	})
	return err
}

// SetStatus force-sets the state's status, bypassing the transition table.
// Test-only, per spec §4.8's event class list.
func (e *Engine) SetStatus(s connstate.Status) {
	e.post(func() { e.state.UpdateStatus(s) })
}

// GetState returns the owned connstate.State. Safe to read concurrently —
// State guards its own fields with a mutex — but callers must not bypass
// its setters.
func (e *Engine) GetState() *connstate.State {
	return e.state
}

// Close tears the engine down: closes the transport handle if any,
// transitions to Disconnected, and stops the event loop. Safe to call more
// than once.
func (e *Engine) Close() {
	select {
	case <-e.closed:
		return
	default:
	}
	e.post(func() {
		if e.state.TransportHandle != transport.NoHandle {
			e.driver.Close(e.state.TransportHandle)
		}
		e.state.UpdateStatus(connstate.Disconnected)
	})
	close(e.closed)
}

// handleTransportEvent is the stale-event filter and reconnection loop of
// spec §4.8, run inline in the select loop (not through post, since it
// arrives on e.owner rather than e.cmds).
func (e *Engine) handleTransportEvent(ctx context.Context, ev transport.Event) {
	if ev.Handle != e.state.TransportHandle {
		slog.Debug("ignoring stale transport event", "event_handle", ev.Handle, "current_handle", e.state.TransportHandle, "kind", ev.Kind)
		return
	}

	switch ev.Kind {
	case transport.EventUp:
		if _, err := connstate.TransitionTo(e.state, connstate.Connected, connstate.TransitionContext{}); err != nil {
			slog.Warn("invalid transition", "error", err)
			return
		}
		e.emit(events.Event{Kind: events.ConnectionUp})
		if _, uerr := e.driver.Upgrade(ctx, e.state.TransportHandle, e.state.Path, nil); uerr != nil {
			e.handleDown(ctx, uerr)
		}

	case transport.EventUpgraded:
		e.state.UpdateStream(ev.Stream, connstate.StreamWebSocket)
		wasReconnect := e.reconnecting
		e.reconnecting = false
		if _, err := connstate.TransitionTo(e.state, connstate.WebSocketConnected, connstate.TransitionContext{}); err != nil {
			slog.Warn("invalid transition", "error", err)
			return
		}
		e.state.ResetReconnectAttempts()
		if e.policy != nil && e.policy.Handler != nil {
			e.policy.Handler.ResetReconnectAttempts()
		}
		e.emit(events.Event{Kind: events.WebSocketUpgrade, Protocol: ev.Protocol, Stream: ev.Stream, Headers: ev.Headers, AfterReconnect: wasReconnect})

	case transport.EventDown:
		e.handleDown(ctx, ev.Reason)

	case transport.EventStreamError:
		e.emit(events.Event{Kind: events.Error, Stream: ev.Stream, Reason: ev.Reason})

	case transport.EventFrame:
		f, err := frame.Decode(ev.Wire)
		if err != nil {
			slog.Debug("dropping unparseable wire frame", "error", err)
			return
		}
		if e.correlator != nil {
			if raw := []byte(f.Text); len(raw) > 0 && e.correlator.Dispatch(raw) {
				return
			}
		}
		e.emit(events.Event{Kind: events.FrameReceived, Stream: ev.Stream, Frame: f})

	case transport.EventOwnerDown:
		// The monitor firing is itself a "the handle died" report, same as
		// EventDown (spec §4.8 reconnection-loop step 1: "driver reports
		// Down / monitor fires"), so it drives the exact same reconnection
		// decision instead of only being logged.
		reason := ev.Reason
		if reason == nil {
			reason = fmt.Errorf("engine: owner monitor %v fired", ev.Monitor)
		}
		slog.Warn("transport owner monitor fired", "monitor", ev.Monitor)
		e.handleDown(ctx, reason)
	}
}

func (e *Engine) handleDown(ctx context.Context, reason error) {
	e.state.RecordError(reason)
	e.state.ClearAllStreams()
	if _, err := connstate.TransitionTo(e.state, connstate.Disconnected, connstate.TransitionContext{Reason: reason}); err != nil {
		slog.Warn("invalid transition", "error", err)
		return
	}
	e.emit(events.Event{Kind: events.ConnectionDown, Reason: reason})

	if h := e.state.Handlers.Connection; h != nil {
		if r := h.HandleDisconnect(reason); r.Outcome != handlers.Reconnect {
			return
		}
	}

	if e.policy == nil {
		return
	}

	decision := e.policy.Decide(reason)
	if !decision.Reconnect {
		connstate.TransitionTo(e.state, connstate.Error, connstate.TransitionContext{Reason: reason})
		return
	}

	if _, err := connstate.TransitionTo(e.state, connstate.Reconnecting, connstate.TransitionContext{}); err != nil {
		slog.Warn("invalid transition", "error", err)
		return
	}
	e.reconnecting = true

	time.AfterFunc(decision.Delay, func() {
		e.post(func() {
			if e.state.Status() != connstate.Reconnecting {
				return // superseded by a newer cycle or an explicit Close
			}
			if _, err := connstate.TransitionTo(e.state, connstate.Connecting, connstate.TransitionContext{}); err != nil {
				slog.Warn("invalid transition", "error", err)
				return
			}
			h, oerr := e.driver.Open(ctx, e.state.Host, e.state.Port, e.state.Opts, e.owner)
			if oerr != nil {
				e.handleDown(ctx, oerr)
				return
			}
			e.state.UpdateHandle(h)
		})
	})
}

func (e *Engine) emit(ev events.Event) {
	if e.state.CallbackSubscriber == nil {
		return
	}
	select {
	case e.state.CallbackSubscriber <- ev:
	default:
		go func() { e.state.CallbackSubscriber <- ev }()
	}
}
