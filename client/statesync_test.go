package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZenHive/websockex-nova-go/config"
	"github.com/ZenHive/websockex-nova-go/connstate"
	"github.com/ZenHive/websockex-nova-go/events"
	"github.com/ZenHive/websockex-nova-go/handlers"
	"github.com/ZenHive/websockex-nova-go/reconnect"
	"github.com/ZenHive/websockex-nova-go/transport"
)

func newSyncFixture(t *testing.T) (*ClientConn, *connstate.State) {
	t.Helper()

	hb, err := handlers.Builder{Error: reconnect.NewDefaultErrorHandler(config.ReconnectOpts{})}.Build()
	require.NoError(t, err)

	sub := make(chan events.Event, 4)
	state := connstate.New("echo.example.com", 443, "/ws", transport.TLS, transport.Opts{}, config.Options{}, hb, sub)

	conn := New(nil, config.Options{}, hb)
	return conn, state
}

// TestReconnectionCycle_SessionFieldsSurviveTransportReset is the contract
// test of spec §4.10/§8: after a full reconnection cycle a ClientConn must
// retain auth_status, access_token, credentials, and subscriptions exactly
// as they were, while the fresh ConnectionState carries none of them.
func TestReconnectionCycle_SessionFieldsSurviveTransportReset(t *testing.T) {
	conn, oldState := newSyncFixture(t)

	conn.setAuthStatus(Authenticated)
	conn.setAccessToken("tok-123")
	conn.Credentials = config.Credentials{"api_key": "k", "api_secret": "s"}
	conn.putSubscription("trades.BTC-PERP", map[string]any{"depth": 10})
	conn.putSubscription("orderbook.ETH-PERP", nil)

	oldState.UpdateHandle(transport.Handle(7))
	oldState.UpdateStream(transport.StreamRef(1), connstate.StreamWebSocket)
	UpdateClientFromTransport(conn, oldState)

	require.Equal(t, transport.Handle(7), conn.TransportHandle)
	require.Equal(t, transport.StreamRef(1), conn.StreamRef)

	// Simulate the transport reset: a brand new ConnectionState with a fresh
	// handle and stream, carrying no session data at all.
	hb, err := handlers.Builder{Error: reconnect.NewDefaultErrorHandler(config.ReconnectOpts{})}.Build()
	require.NoError(t, err)
	sub := make(chan events.Event, 4)
	freshState := connstate.New("echo.example.com", 443, "/ws", transport.TLS, transport.Opts{}, config.Options{}, hb, sub)
	freshState.UpdateHandle(transport.Handle(9))
	freshState.UpdateStream(transport.StreamRef(2), connstate.StreamWebSocket)

	SyncClientFromConnection(conn, freshState)

	assert.Equal(t, Authenticated, conn.AuthStatus, "auth_status must survive a reconnect")
	assert.Equal(t, "tok-123", conn.AccessToken, "access_token must survive a reconnect")
	assert.Equal(t, config.Credentials{"api_key": "k", "api_secret": "s"}, conn.Credentials, "credentials must survive a reconnect")
	assert.Len(t, conn.SubscriptionSnapshot(), 2, "subscriptions must survive a reconnect")

	assert.Equal(t, transport.Handle(9), conn.TransportHandle, "transport_handle must track the new transport")
	assert.Equal(t, transport.StreamRef(2), conn.StreamRef, "stream_ref must track the new transport")

	assert.Empty(t, freshState.Options.Auth.Credentials, "ConnectionState must never carry session auth data")
}

func TestExtractTransportState_IgnoresSessionFields(t *testing.T) {
	conn, _ := newSyncFixture(t)
	conn.mu.Lock()
	conn.ConnectionInfo = config.Options{Host: "h", Port: 1, Path: "/p", Transport: config.TLS}
	conn.mu.Unlock()
	conn.setAuthStatus(Authenticated)
	conn.setAccessToken("should-not-appear")

	ts := ExtractTransportState(conn)

	assert.Equal(t, "h", ts.Host)
	assert.Equal(t, uint16(1), ts.Port)
	assert.Equal(t, "/p", ts.Path)
	assert.Equal(t, transport.TLS, ts.Transport)
}

func TestSyncConnectionStateFromClient_CopiesTransportConfigOnly(t *testing.T) {
	conn, state := newSyncFixture(t)
	conn.mu.Lock()
	conn.ConnectionInfo = config.Options{Host: "new-host", Port: 8443}
	conn.mu.Unlock()

	SyncConnectionStateFromClient(state, conn)

	assert.Equal(t, "new-host", state.Options.Host)
	assert.Equal(t, uint16(8443), state.Options.Port)
}
