package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/ZenHive/websockex-nova-go/config"
	"github.com/ZenHive/websockex-nova-go/correlate"
	"github.com/ZenHive/websockex-nova-go/frame"
	"github.com/ZenHive/websockex-nova-go/handlers"
)

// SendOptions configures one SendJSON call (spec §4.11's "opts.matcher
// selects correlation strategy").
type SendOptions struct {
	Matcher correlate.Matcher
	Timeout time.Duration
}

const defaultSendTimeout = 10 * time.Second

// SendText wraps s in a JSON message {"type": "text", "data": s}, sends it
// through SendJSON as a text frame, and waits for the default JSON id-match
// reply.
func (c *Connection) SendText(ctx context.Context, s string) (map[string]any, error) {
	return c.SendJSON(ctx, map[string]any{"type": "text", "data": s}, SendOptions{})
}

// SendJSON encodes msg as JSON, assigns it a request id if absent,
// registers a correlator waiter (opts.Matcher or the default id-match),
// sends it, and blocks for the reply or timeout (spec §4.11).
func (c *Connection) SendJSON(ctx context.Context, msg map[string]any, opts SendOptions) (map[string]any, error) {
	id, ok := msg["id"].(string)
	if !ok || id == "" {
		id = c.Conn.Correlator.NextID()
		msg["id"] = id
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	matcher := opts.Matcher
	if matcher == nil {
		matcher = correlate.DefaultMatcher(id)
	}

	result, err := c.Conn.Correlator.Register(ctx, id, matcher, timeout)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("client: encoding message: %w", err)
	}

	if err := c.Engine.SendFrame(c.Conn.StreamRef, frame.NewText(string(b)), costKeyFor(msg)); err != nil {
		return nil, err
	}

	reply := <-result
	if reply.Outcome == correlate.MatchError {
		return nil, reply.Err
	}
	value, _ := reply.Value.(map[string]any)
	return value, nil
}

// SendRaw bypasses JSON encoding entirely, sending raw as a binary frame
// and waiting on matcher for up to timeout.
func (c *Connection) SendRaw(ctx context.Context, raw []byte, matcher correlate.Matcher, timeout time.Duration) (any, error) {
	id := c.Conn.Correlator.NextID()
	result, err := c.Conn.Correlator.Register(ctx, id, matcher, timeout)
	if err != nil {
		return nil, err
	}

	if err := c.Engine.SendFrame(c.Conn.StreamRef, frame.NewBinary(raw), "default"); err != nil {
		return nil, err
	}

	reply := <-result
	if reply.Outcome == correlate.MatchError {
		return nil, reply.Err
	}
	return reply.Value, nil
}

// Subscribe asks the bound SubscriptionHandler to subscribe to channel,
// records it on the ClientConn's session state, and sends a JSON
// {"type": "subscribe", "channel": channel, ...params} message through
// SendJSON (spec §4.11). Any reply frame in the handler's Result is not
// used.
func (c *Connection) Subscribe(ctx context.Context, channel string, params map[string]any) (map[string]any, error) {
	if c.Conn.Handlers.Subscription != nil {
		result := c.Conn.Handlers.Subscription.Subscribe(channel, params)
		if result.Outcome == handlers.OutcomeError {
			return nil, result.Err
		}
	}
	c.Conn.putSubscription(channel, params)

	msg := map[string]any{"type": "subscribe", "channel": channel}
	for k, v := range params {
		msg[k] = v
	}
	return c.SendJSON(ctx, msg, SendOptions{})
}

// Authenticate runs the bound AuthHandler's credential exchange: generate
// auth data, send it, await the reply, and update AuthStatus/AccessToken
// accordingly (spec §4.11).
func (c *Connection) Authenticate(ctx context.Context, creds config.Credentials) (map[string]any, error) {
	if c.Conn.Handlers.Auth == nil {
		return nil, fmt.Errorf("client: no AuthHandler bound")
	}

	c.Conn.setAuthStatus(Authenticating)
	if result := c.Conn.Handlers.Auth.Authenticate(c.Conn.StreamRef, creds); result.Outcome == handlers.OutcomeError {
		c.Conn.setAuthStatus(AuthFailed)
		return nil, result.Err
	}

	f, err := c.Conn.Handlers.Auth.GenerateAuthData()
	if err != nil {
		c.Conn.setAuthStatus(AuthFailed)
		return nil, err
	}

	// GenerateAuthData's frame carries no correlation id (it mirrors the
	// teacher's registration exchange, which replies by message type, not
	// by echoing an id back) — match on the reply's own "type" field
	// rather than DefaultMatcher's id comparison.
	id := c.Conn.Correlator.NextID()
	result, err := c.Conn.Correlator.Register(ctx, id, authReplyMatcher(), defaultSendTimeout)
	if err != nil {
		c.Conn.setAuthStatus(AuthFailed)
		return nil, err
	}

	if err := c.Engine.SendFrame(c.Conn.StreamRef, f, "auth"); err != nil {
		c.Conn.setAuthStatus(AuthFailed)
		return nil, err
	}

	reply := <-result
	if reply.Outcome == correlate.MatchError {
		c.Conn.setAuthStatus(AuthFailed)
		return nil, reply.Err
	}

	value, _ := reply.Value.(map[string]any)
	token, authErr := c.Conn.Handlers.Auth.HandleAuthResponse(frame.NewText(toJSONString(value)))
	if authErr != nil {
		c.Conn.setAuthStatus(AuthFailed)
		return nil, authErr
	}

	c.Conn.setAccessToken(token)
	c.Conn.setAuthStatus(Authenticated)
	return value, nil
}

// Ping asks the bound ConnectionHandler for a ping frame and sends it.
func (c *Connection) Ping() error {
	f, err := c.Conn.Handlers.Connection.Ping(c.Conn.StreamRef)
	if err != nil {
		return err
	}
	return c.Engine.SendFrame(c.Conn.StreamRef, f, "default")
}

// Status reports the current connstate.Status as a string (spec §4.11).
func (c *Connection) Status() string {
	return c.State.Status().String()
}

// Close tears the connection down: closes the engine (which closes the
// transport handle) and closes every subscriber channel. Each callback
// channel is closed independently, and a panic closing one (e.g. a
// double-close by a racing caller) is recovered and aggregated with
// go.uber.org/multierr rather than aborting the rest of the teardown.
func (c *Connection) Close() error {
	c.Engine.Close()

	var errs error
	for _, ch := range c.Conn.callbackSnapshot() {
		c.Conn.UnregisterCallback(ch)
		errs = multierr.Append(errs, closeChannel(ch))
	}
	return errs
}

func closeChannel(ch chan Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("client: closing subscriber channel: %v", r)
		}
	}()
	close(ch)
	return nil
}

func costKeyFor(msg map[string]any) string {
	if t, ok := msg["type"].(string); ok {
		switch t {
		case "subscribe", "unsubscribe":
			return "subscription"
		case "auth":
			return "auth"
		}
	}
	return "default"
}

// authReplyMatcher matches the first inbound frame whose JSON "type" field
// is "auth", since the auth exchange (handlers.DefaultAuthHandler) replies
// by message type rather than by echoing a request id.
func authReplyMatcher() correlate.Matcher {
	return func(raw []byte) correlate.MatchResult {
		var msg map[string]any
		if err := json.Unmarshal(raw, &msg); err != nil {
			return correlate.MatchResult{Outcome: correlate.Skip}
		}
		if t, _ := msg["type"].(string); t == "auth" {
			return correlate.MatchResult{Outcome: correlate.Match, Value: msg}
		}
		return correlate.MatchResult{Outcome: correlate.Skip}
	}
}

func toJSONString(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
