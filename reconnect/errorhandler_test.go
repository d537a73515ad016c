package reconnect

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZenHive/websockex-nova-go/config"
	"github.com/ZenHive/websockex-nova-go/handlers"
)

func TestDefaultErrorHandler_ClassifiesTerminalErrors(t *testing.T) {
	h := NewDefaultErrorHandler(config.ReconnectOpts{})

	for _, err := range terminalErrors {
		assert.Equal(t, handlers.ClassTerminal, h.ClassifyError(err))
		assert.False(t, h.ShouldReconnect(err, 1))
	}
	assert.Equal(t, handlers.ClassTransient, h.ClassifyError(errors.New("dial tcp: connection reset")))
}

func TestDefaultErrorHandler_ShouldReconnect_RespectsMaxAttempts(t *testing.T) {
	h := NewDefaultErrorHandler(config.ReconnectOpts{MaxAttempts: 3})
	transient := errors.New("reset")

	assert.True(t, h.ShouldReconnect(transient, 3))
	assert.False(t, h.ShouldReconnect(transient, 4))
}

func TestDefaultErrorHandler_ShouldReconnect_UnlimitedWhenMaxAttemptsZero(t *testing.T) {
	h := NewDefaultErrorHandler(config.ReconnectOpts{MaxAttempts: 0})
	assert.True(t, h.ShouldReconnect(errors.New("reset"), 9999))
}

// TestDefaultErrorHandler_ExponentialBackoffGrowsDeterministically drives
// the exponential shape with a jonboulle/clockwork fake clock so successive
// NextBackOff calls are asserted against exact, reproducible bounds instead
// of real wall-clock jitter.
func TestDefaultErrorHandler_ExponentialBackoffGrowsDeterministically(t *testing.T) {
	fake := clockwork.NewFakeClock()
	h := NewDefaultErrorHandler(config.ReconnectOpts{
		BackoffType: config.BackoffExponential,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
		Jitter:      false,
	}).WithClock(fake)

	first := h.NextBackOff()
	second := h.NextBackOff()
	third := h.NextBackOff()

	assert.InDelta(t, 100*time.Millisecond, first, float64(10*time.Millisecond))
	assert.Greater(t, second, first)
	assert.Greater(t, third, second)
	assert.LessOrEqual(t, third, 2*time.Second)
}

func TestDefaultErrorHandler_ResetReconnectAttempts_RestartsBackoff(t *testing.T) {
	h := NewDefaultErrorHandler(config.ReconnectOpts{
		BackoffType: config.BackoffExponential,
		BaseBackoff: 50 * time.Millisecond,
		MaxBackoff:  time.Second,
	})

	require.Equal(t, uint32(1), h.IncrementReconnectAttempts())
	require.Equal(t, uint32(2), h.IncrementReconnectAttempts())
	_ = h.NextBackOff()
	grown := h.NextBackOff()

	h.ResetReconnectAttempts()
	assert.Equal(t, uint32(0), h.attempts)

	restarted := h.NextBackOff()
	assert.Less(t, restarted, grown+50*time.Millisecond)
}

func TestLinearBackOff_GrowsByBaseAndCaps(t *testing.T) {
	l := &linearBackOff{base: 10 * time.Millisecond, max: 25 * time.Millisecond}

	assert.Equal(t, 10*time.Millisecond, l.NextBackOff())
	assert.Equal(t, 20*time.Millisecond, l.NextBackOff())
	assert.Equal(t, 25*time.Millisecond, l.NextBackOff(), "third attempt would be 30ms, capped at max")

	l.Reset()
	assert.Equal(t, 10*time.Millisecond, l.NextBackOff())
}
