package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZenHive/websockex-nova-go/config"
	"github.com/ZenHive/websockex-nova-go/frame"
	"github.com/ZenHive/websockex-nova-go/handlers"
	"github.com/ZenHive/websockex-nova-go/reconnect"
	"github.com/ZenHive/websockex-nova-go/transport"
	"github.com/ZenHive/websockex-nova-go/transport/faketransport"
)

// bringUp dials, drives Up+Upgraded, and returns the live stream ref so
// tests can send through it immediately.
func bringUp(t *testing.T, c *Connection, driver *faketransport.Driver) transport.StreamRef {
	t.Helper()
	require.NoError(t, c.Engine.Connect(context.Background()))
	handle := c.State.TransportHandle
	deliverByHandle(t, driver, transport.Event{Kind: transport.EventUp, Handle: handle})
	deliverByHandle(t, driver, transport.Event{Kind: transport.EventUpgraded, Handle: handle, Stream: transport.StreamRef(1)})
	require.Eventually(t, func() bool {
		return c.Conn.StreamRef == transport.StreamRef(1)
	}, time.Second, time.Millisecond)
	return c.Conn.StreamRef
}

func TestClientAPI_SendJSON_RoundTripsThroughCorrelator(t *testing.T) {
	c, driver := newConnectionHarness(t)
	bringUp(t, c, driver)

	replyCh := make(chan map[string]any, 1)
	go func() {
		reply, err := c.SendJSON(context.Background(), map[string]any{"type": "ping"}, SendOptions{Timeout: time.Second})
		require.NoError(t, err)
		replyCh <- reply
	}()

	require.Eventually(t, func() bool {
		return len(driver.Sent) == 1
	}, time.Second, time.Millisecond)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(driver.Sent[0].Wire.Payload, &sent))
	id, _ := sent["id"].(string)
	require.NotEmpty(t, id)

	reply := map[string]any{"id": id, "pong": true}
	replyWire := frame.Encode(frame.NewText(mustJSON(t, reply)))
	deliverByHandle(t, driver, transport.Event{Kind: transport.EventFrame, Handle: c.State.TransportHandle, Wire: replyWire})

	select {
	case got := <-replyCh:
		assert.Equal(t, true, got["pong"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SendJSON reply")
	}
}

func TestClientAPI_SendJSON_TimesOutWithNoReply(t *testing.T) {
	c, driver := newConnectionHarness(t)
	bringUp(t, c, driver)

	_, err := c.SendJSON(context.Background(), map[string]any{"type": "ping"}, SendOptions{Timeout: 20 * time.Millisecond})
	assert.Error(t, err)
}

func TestClientAPI_Subscribe_RecordsSubscriptionBeforeReplyArrives(t *testing.T) {
	c, driver := newConnectionHarness(t)
	bringUp(t, c, driver)

	go func() {
		_, _ = c.Subscribe(context.Background(), "trades.BTC-PERP", map[string]any{"depth": 10})
	}()

	require.Eventually(t, func() bool {
		_, ok := c.Conn.SubscriptionSnapshot()["trades.BTC-PERP"]
		return ok
	}, time.Second, time.Millisecond)
}

func TestClientAPI_Ping_SendsHandlerProvidedFrame(t *testing.T) {
	c, driver := newConnectionHarness(t)
	bringUp(t, c, driver)

	require.NoError(t, c.Ping())
	require.Len(t, driver.Sent, 1)
	const wirePingMessageType = 9 // gorilla/websocket.PingMessage
	assert.Equal(t, wirePingMessageType, driver.Sent[0].Wire.MessageType)
}

func TestClientAPI_Status_ReflectsConnstate(t *testing.T) {
	c, driver := newConnectionHarness(t)
	assert.Equal(t, "initialized", c.Status())
	bringUp(t, c, driver)
	assert.Equal(t, "websocket_connected", c.Status())
}

func TestClientAPI_Close_ClosesEverySubscriberChannel(t *testing.T) {
	c, driver := newConnectionHarness(t)
	bringUp(t, c, driver)

	sub := make(chan Event, 1)
	c.Conn.RegisterCallback(sub)

	require.NoError(t, c.Close())

	_, ok := <-sub
	assert.False(t, ok, "subscriber channel must be closed by Close")
}

func TestClientAPI_Authenticate_UpdatesAuthStatusOnSuccess(t *testing.T) {
	driver := faketransport.New()
	opts := config.Default()
	hb, err := handlers.Builder{
		Error: reconnect.NewDefaultErrorHandler(opts.Reconnect),
		Auth:  handlers.NewDefaultAuthHandler(config.Credentials{"api_key": "k", "api_secret": "s"}, time.Minute),
	}.Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c := Connect(ctx, driver, "example.com", 443, "/ws", transport.TLS, transport.Opts{}, opts, hb)
	bringUp(t, c, driver)

	replyCh := make(chan map[string]any, 1)
	go func() {
		reply, authErr := c.Authenticate(context.Background(), config.Credentials{"api_key": "k", "api_secret": "s"})
		require.NoError(t, authErr)
		replyCh <- reply
	}()

	require.Eventually(t, func() bool { return len(driver.Sent) == 1 }, time.Second, time.Millisecond)

	var sentReq map[string]any
	require.NoError(t, json.Unmarshal(driver.Sent[0].Wire.Payload, &sentReq))
	id, _ := sentReq["id"].(string)

	resp := map[string]any{"id": id, "type": "auth", "token": makeTestJWT(t), "error": ""}
	wire := frame.Encode(frame.NewText(mustJSON(t, resp)))
	deliverByHandle(t, driver, transport.Event{Kind: transport.EventFrame, Handle: c.State.TransportHandle, Wire: wire})

	select {
	case <-replyCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Authenticate to complete")
	}

	assert.Equal(t, Authenticated, c.Conn.AuthStatus)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

// makeTestJWT builds an unsigned JWT with a far-future exp claim, enough
// for DefaultAuthHandler.HandleAuthResponse's ParseUnverified call.
func makeTestJWT(t *testing.T) string {
	t.Helper()
	header := mustJSON(t, map[string]any{"alg": "none", "typ": "JWT"})
	claims := mustJSON(t, map[string]any{"exp": time.Now().Add(time.Hour).Unix()})
	enc := func(s string) string {
		return base64.RawURLEncoding.EncodeToString([]byte(s))
	}
	return enc(header) + "." + enc(claims) + "."
}
