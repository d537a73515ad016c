package client

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc"

	"github.com/ZenHive/websockex-nova-go/config"
	"github.com/ZenHive/websockex-nova-go/connstate"
	"github.com/ZenHive/websockex-nova-go/correlate"
	"github.com/ZenHive/websockex-nova-go/engine"
	"github.com/ZenHive/websockex-nova-go/events"
	"github.com/ZenHive/websockex-nova-go/handlers"
	"github.com/ZenHive/websockex-nova-go/ratelimit"
	"github.com/ZenHive/websockex-nova-go/reconnect"
	"github.com/ZenHive/websockex-nova-go/transport"
)

// Connection bundles everything Connect wires together: the transport-level
// State/Engine pair and the session-level ClientConn riding on top of it,
// plus the listener goroutine that bridges engine-level events.Event into
// client.Event and runs the post-reconnect hook.
type Connection struct {
	State  *connstate.State
	Engine *engine.Engine
	Conn   *ClientConn

	subscriber chan events.Event
}

// Connect builds a new Connection: a connstate.State and engine.Engine
// pair over driver, and a ClientConn layered on top, then starts the
// engine's event loop and the client-level listener goroutine. Callers
// still must call conn.Engine.Connect(ctx) to actually dial.
func Connect(ctx context.Context, driver transport.Driver, host string, port uint16, path string, tk transport.Kind, topts transport.Opts, opts config.Options, hb handlers.Bindings) *Connection {
	subscriber := make(chan events.Event, 64)
	state := connstate.New(host, port, path, tk, topts, opts, hb, subscriber)

	correlator := correlate.New()
	limiter := ratelimit.New(opts.RateLimit)
	policy := reconnect.NewPolicy(hb.Error)

	e := engine.New(state, driver, correlator, limiter, policy)

	conn := New(e, opts, hb)
	conn.Correlator = correlator

	c := &Connection{State: state, Engine: e, Conn: conn, subscriber: subscriber}

	go e.Run(ctx)
	go c.listen(ctx)

	return c
}

// listen bridges engine-level events.Event onto ClientConn's richer
// client.Event, running the post-reconnect hook (spec §4.8 step 5: "emit a
// Reconnected(ClientConn') message ... where ClientConn' is the updated
// record after StateSync") before fanning the result out.
func (c *Connection) listen(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.subscriber:
			if !ok {
				return
			}
			c.handle(ctx, ev)
		}
	}
}

func (c *Connection) handle(ctx context.Context, ev events.Event) {
	if ev.Kind == events.WebSocketUpgrade {
		// Every upgrade, reconnect or not, refreshes ClientConn's
		// transport_handle/stream_ref from the (possibly fresh)
		// ConnectionState. Only a reconnect-tagged upgrade also runs the
		// post-reconnect hook and is surfaced as Reconnected instead of a
		// plain WebSocketUpgrade.
		SyncClientFromConnection(c.Conn, c.State)
		if ev.AfterReconnect {
			c.runPostReconnectHook(ctx)
			c.fanOut(Event{Kind: Reconnected, Inner: ev, Conn: c.Conn})
			return
		}
	}
	c.fanOut(Event{Kind: fromEventsKind(ev.Kind), Inner: ev})
}

// runPostReconnectHook replays re-auth and resubscription, the adapter
// hook spec §4.8 step 5 and §2's data-flow summary both call out as the
// typical post-reconnect action.
func (c *Connection) runPostReconnectHook(ctx context.Context) {
	if c.Conn.Handlers.Auth != nil && c.Conn.AuthStatus == Authenticated {
		if c.Conn.Handlers.Auth.NeedsReauthentication() {
			f, err := c.Conn.Handlers.Auth.GenerateAuthData()
			if err != nil {
				slog.Warn("post-reconnect reauth: generating auth data failed", "error", err)
			} else if sendErr := c.Engine.SendFrame(c.Conn.StreamRef, f, "auth"); sendErr != nil {
				slog.Warn("post-reconnect reauth: send failed", "error", sendErr)
			}
		}
	}

	if c.Conn.Handlers.Subscription != nil {
		c.Conn.Handlers.Subscription.PrepareForReconnect()
		for _, result := range c.Conn.Handlers.Subscription.ResubscribeAfterReconnect() {
			if result.Err != nil {
				slog.Warn("resubscribe after reconnect failed", "channel", result.Channel, "error", result.Err)
			}
		}
	}
}

// fanOut delivers ev to every registered subscriber concurrently,
// recovering from any subscriber-side panic so one broken observer cannot
// take down the others (spec §5's "no shared mutable memory between
// connections" extends, in spirit, to "no shared failure domain between
// subscribers"). Grounded on github.com/sourcegraph/conc's WaitGroup,
// whose WaitAndRecover catches a panic in any subscriber goroutine and
// hands it back instead of crashing the process; it is logged and dropped.
func (c *Connection) fanOut(ev Event) {
	subs := c.Conn.callbackSnapshot()
	if len(subs) == 0 {
		return
	}

	var wg conc.WaitGroup
	for _, ch := range subs {
		ch := ch
		wg.Go(func() {
			select {
			case ch <- ev:
			default:
			}
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		slog.Warn("subscriber fan-out panicked", "panic", r.Value)
	}
}
