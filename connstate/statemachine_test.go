package connstate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZenHive/websockex-nova-go/config"
	"github.com/ZenHive/websockex-nova-go/handlers"
	"github.com/ZenHive/websockex-nova-go/transport"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	return New("example.com", 443, "/", transport.TLS, transport.Opts{}, config.Default(), handlers.Bindings{}, nil)
}

// allStatuses enumerates every Status value for exhaustive table testing.
var allStatuses = []Status{Initialized, Connecting, Connected, WebSocketConnected, Disconnected, Reconnecting, Error}

// TestTransitionTo_MatchesSpecTable is the universal invariant of spec §8:
// for every (from, to) pair, the transition succeeds iff the pair is in
// the table (or to == Error, which is always allowed); otherwise the
// state is left unchanged and an *InvalidTransition is returned.
func TestTransitionTo_MatchesSpecTable(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			s := newTestState(t)
			s.UpdateStatus(from)

			got, err := TransitionTo(s, to, TransitionContext{})

			wantOK := to == Error || allowed[from][to]
			if wantOK {
				require.NoError(t, err, "from=%s to=%s", from, to)
				assert.Equal(t, to, got)
				assert.Equal(t, to, s.Status())
			} else {
				require.Error(t, err, "from=%s to=%s", from, to)
				var invalid *InvalidTransition
				require.ErrorAs(t, err, &invalid)
				assert.Equal(t, from, s.Status(), "state must be unchanged on a rejected transition")
			}
		}
	}
}

func TestTransitionTo_ErrorAlwaysAllowedAndRecordsReason(t *testing.T) {
	s := newTestState(t)
	s.UpdateStatus(WebSocketConnected)

	reason := errors.New("handshake reset")
	got, err := TransitionTo(s, Error, TransitionContext{Reason: reason})

	require.NoError(t, err)
	assert.Equal(t, Error, got)
	assert.Equal(t, Error, s.Status())
	assert.Equal(t, reason, s.LastError)
}

func TestTransitionTo_InitializedToConnecting(t *testing.T) {
	s := newTestState(t)
	got, err := TransitionTo(s, Connecting, TransitionContext{})
	require.NoError(t, err)
	assert.Equal(t, Connecting, got)
}

func TestTransitionTo_ReconnectingToConnectingAfterTimer(t *testing.T) {
	s := newTestState(t)
	s.UpdateStatus(Reconnecting)
	got, err := TransitionTo(s, Connecting, TransitionContext{})
	require.NoError(t, err)
	assert.Equal(t, Connecting, got)
}

func TestState_StreamLifecycle(t *testing.T) {
	s := newTestState(t)
	ref := transport.StreamRef(7)

	s.UpdateStream(ref, StreamUpgrading)
	assert.Equal(t, StreamUpgrading, s.Streams()[ref])

	s.UpdateStream(ref, StreamWebSocket)
	assert.Equal(t, StreamWebSocket, s.Streams()[ref])

	s.RemoveStream(ref)
	_, ok := s.Streams()[ref]
	assert.False(t, ok)
}

func TestState_ClearAllStreams(t *testing.T) {
	s := newTestState(t)
	s.UpdateStream(transport.StreamRef(1), StreamWebSocket)
	s.UpdateStream(transport.StreamRef(2), StreamWebSocket)

	s.ClearAllStreams()

	assert.Empty(t, s.Streams())
}

func TestState_ReconnectAttemptCounter(t *testing.T) {
	s := newTestState(t)
	assert.EqualValues(t, 1, s.IncrementReconnectAttempts())
	assert.EqualValues(t, 2, s.IncrementReconnectAttempts())

	s.ResetReconnectAttempts()
	assert.EqualValues(t, 0, s.ReconnectAttempts)
}
