// Package reconnect implements ReconnectionPolicy (spec §4.5) and a
// DefaultErrorHandler built on github.com/cenkalti/backoff/v4, replacing
// the teacher's hand-rolled calculateBackoff (internal/heartbeat/
// websocket.go: time.Duration(math.Pow(2, float64(attempt))) * base,
// capped at a fixed ceiling, no jitter) with a real backoff library that
// adds jitter and a proper ceiling out of the box.
package reconnect

import (
	"time"

	"github.com/ZenHive/websockex-nova-go/handlers"
)

// Decision is the outcome ReconnectionPolicy.Decide hands back to
// ConnectionEngine: whether to reconnect at all, and if so, after how
// long.
type Decision struct {
	Reconnect bool
	Delay     time.Duration
}

// Policy decides, on each transition into disconnected or error, whether
// and when to attempt reconnection, fully delegating the decision to an
// ErrorHandler (spec §4.5).
type Policy struct {
	Handler handlers.ErrorHandler
}

// NewPolicy builds a Policy around the given ErrorHandler.
func NewPolicy(h handlers.ErrorHandler) *Policy {
	return &Policy{Handler: h}
}

// Decide asks the handler to classify lastErr and, if not terminal,
// reports the handler's next backoff delay. The attempt counter is the
// handler's own (IncrementReconnectAttempts/ResetReconnectAttempts) —
// Policy never keeps a second copy.
func (p *Policy) Decide(lastErr error) Decision {
	p.Handler.LogError(lastErr)
	p.Handler.HandleError(lastErr)

	if p.Handler.ClassifyError(lastErr) == handlers.ClassTerminal {
		return Decision{Reconnect: false}
	}

	attempt := p.Handler.IncrementReconnectAttempts()
	if !p.Handler.ShouldReconnect(lastErr, attempt) {
		return Decision{Reconnect: false}
	}

	delay := time.Duration(0)
	if bd, ok := p.Handler.(interface{ NextBackOff() time.Duration }); ok {
		delay = bd.NextBackOff()
	}

	return Decision{Reconnect: true, Delay: delay}
}
