package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZenHive/websockex-nova-go/config"
	"github.com/ZenHive/websockex-nova-go/handlers"
	"github.com/ZenHive/websockex-nova-go/reconnect"
	"github.com/ZenHive/websockex-nova-go/transport"
	"github.com/ZenHive/websockex-nova-go/transport/faketransport"
)

func waitForClientEvent(t *testing.T, ch <-chan Event, kind Kind) Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for client event kind %v", kind)
		}
	}
}

func newConnectionHarness(t *testing.T) (*Connection, *faketransport.Driver) {
	t.Helper()
	driver := faketransport.New()
	opts := config.Default()
	opts.Reconnect.BaseBackoff = time.Millisecond
	opts.Reconnect.MaxBackoff = 5 * time.Millisecond

	hb, err := handlers.Builder{Error: reconnect.NewDefaultErrorHandler(opts.Reconnect)}.Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c := Connect(ctx, driver, "example.com", 443, "/ws", transport.TLS, transport.Opts{}, opts, hb)
	return c, driver
}

func deliverByHandle(t *testing.T, driver *faketransport.Driver, ev transport.Event) {
	t.Helper()
	owner, ok := driver.OwnerFor(ev.Handle)
	require.True(t, ok, "no registered owner for handle %v", ev.Handle)
	driver.Deliver(owner, ev)
}

// TestConnection_FullLifecycleUpToReconnected exercises Connect, the
// initial upgrade, a transport drop, and the automatic redial, asserting
// that the second upgrade is delivered to client-level subscribers as
// Reconnected rather than a plain WebSocketUpgrade (spec §4.8 step 5).
func TestConnection_FullLifecycleUpToReconnected(t *testing.T) {
	c, driver := newConnectionHarness(t)

	sub := make(chan Event, 16)
	c.Conn.RegisterCallback(sub)

	require.NoError(t, c.Engine.Connect(context.Background()))
	firstHandle := c.State.TransportHandle

	deliverByHandle(t, driver, transport.Event{Kind: transport.EventUp, Handle: firstHandle})
	waitForClientEvent(t, sub, ConnectionUp)

	deliverByHandle(t, driver, transport.Event{Kind: transport.EventUpgraded, Handle: firstHandle, Stream: transport.StreamRef(1)})
	first := waitForClientEvent(t, sub, WebSocketUpgrade)
	assert.False(t, first.Inner.AfterReconnect)

	deliverByHandle(t, driver, transport.Event{Kind: transport.EventDown, Handle: firstHandle, Reason: errors.New("reset")})
	waitForClientEvent(t, sub, ConnectionDown)

	require.Eventually(t, func() bool {
		return len(driver.Opened) == 2
	}, time.Second, 5*time.Millisecond)

	secondHandle := c.State.TransportHandle
	deliverByHandle(t, driver, transport.Event{Kind: transport.EventUp, Handle: secondHandle})
	waitForClientEvent(t, sub, ConnectionUp)
	deliverByHandle(t, driver, transport.Event{Kind: transport.EventUpgraded, Handle: secondHandle, Stream: transport.StreamRef(2)})

	reconnected := waitForClientEvent(t, sub, Reconnected)
	require.NotNil(t, reconnected.Conn)
	assert.Equal(t, secondHandle, reconnected.Conn.TransportHandle)
}

// TestConnection_StaleEventNeverReachesClientSubscribers confirms the
// engine's stale-handle filter (spec §4.8) shields package client from
// ever seeing an event addressed to a handle it has already moved past.
func TestConnection_StaleEventNeverReachesClientSubscribers(t *testing.T) {
	c, driver := newConnectionHarness(t)

	sub := make(chan Event, 16)
	c.Conn.RegisterCallback(sub)

	require.NoError(t, c.Engine.Connect(context.Background()))
	staleHandle := driver.NewHandle()

	driver.Deliver(mustOwner(t, driver, c.State.TransportHandle), transport.Event{Kind: transport.EventUp, Handle: staleHandle})

	select {
	case ev := <-sub:
		t.Fatalf("expected no client event from a stale handle, got %v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func mustOwner(t *testing.T, driver *faketransport.Driver, h transport.Handle) chan<- transport.Event {
	t.Helper()
	owner, ok := driver.OwnerFor(h)
	require.True(t, ok)
	return owner
}
