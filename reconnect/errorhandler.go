package reconnect

import (
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ZenHive/websockex-nova-go/config"
	"github.com/ZenHive/websockex-nova-go/handlers"
)

// Sentinel terminal-error markers. Adapters that want a disconnect reason
// classified as terminal should wrap one of these with fmt.Errorf's %w, or
// pass it as-is, matching the teacher's own plain sentinel-error style
// (e.g. p2p's session-not-found errors) rather than a typed error hierarchy.
var (
	ErrFatal                   = errors.New("reconnect: fatal error")
	ErrConnRefusedAfterUpgrade = errors.New("reconnect: connection refused after websocket upgrade")
	ErrAuthPermanentFailure    = errors.New("reconnect: permanent authentication failure")
	ErrHandshakeFailedBadCert  = errors.New("reconnect: tls handshake failed due to bad certificate")
)

var terminalErrors = []error{
	ErrFatal,
	ErrConnRefusedAfterUpgrade,
	ErrAuthPermanentFailure,
	ErrHandshakeFailedBadCert,
}

// DefaultErrorHandler implements handlers.ErrorHandler on top of
// cenkalti/backoff/v4, replacing the teacher's hand-rolled
// time.Duration(math.Pow(2, float64(attempt))) * base backoff with a
// library that also handles jitter and a hard ceiling. It is the default
// ReconnectionPolicy.Handler; package handlers cannot provide this default
// itself without importing backoff and creating a dependency the leaf
// handlers package should not carry.
type DefaultErrorHandler struct {
	mu       sync.Mutex
	opts     config.ReconnectOpts
	attempts uint32
	backoff  backoff.BackOff
	clock    backoff.Clock
}

// NewDefaultErrorHandler builds a DefaultErrorHandler from the resolved
// reconnection options (spec §6's reconnect.*), selecting a backoff shape
// per opts.BackoffType.
func NewDefaultErrorHandler(opts config.ReconnectOpts) *DefaultErrorHandler {
	h := &DefaultErrorHandler{opts: opts, clock: backoff.SystemClock}
	h.backoff = h.newBackOff()
	return h
}

// WithClock overrides the backoff clock, for deterministic tests driven by
// jonboulle/clockwork's fake clock, which satisfies backoff.Clock as is.
func (h *DefaultErrorHandler) WithClock(c backoff.Clock) *DefaultErrorHandler {
	h.clock = c
	h.backoff = h.newBackOff()
	return h
}

func (h *DefaultErrorHandler) newBackOff() backoff.BackOff {
	switch h.opts.BackoffType {
	case config.BackoffConstant:
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(h.opts.BaseBackoff), uint64(h.opts.MaxAttempts))
	case config.BackoffLinear:
		return &linearBackOff{base: h.opts.BaseBackoff, max: h.opts.MaxBackoff, jitter: h.opts.Jitter}
	default:
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = h.opts.BaseBackoff
		eb.MaxInterval = h.opts.MaxBackoff
		eb.Multiplier = 2
		if h.opts.Jitter {
			eb.RandomizationFactor = 0.1
		} else {
			eb.RandomizationFactor = 0
		}
		eb.Clock = h.clock
		eb.Reset()
		return eb
	}
}

// ShouldReconnect reports whether another attempt should be made. It
// defers to ClassifyError for terminal errors and to the configured
// max_reconnect_attempts ceiling otherwise: attempts 1 through max are
// allowed, and attempt max+1 is refused.
func (h *DefaultErrorHandler) ShouldReconnect(lastErr error, attempt uint32) bool {
	if h.ClassifyError(lastErr) == handlers.ClassTerminal {
		return false
	}
	if h.opts.MaxAttempts == 0 {
		return true
	}
	return attempt <= h.opts.MaxAttempts
}

// ClassifyError reports ClassTerminal for the spec §4.5 terminal set
// (fatal, econnrefused-after-upgrade, auth_permanent_failure,
// handshake_failed_with_bad_cert) and ClassTransient for everything else.
func (h *DefaultErrorHandler) ClassifyError(err error) handlers.ErrorClass {
	if err == nil {
		return handlers.ClassTransient
	}
	for _, terminal := range terminalErrors {
		if errors.Is(err, terminal) {
			return handlers.ClassTerminal
		}
	}
	return handlers.ClassTransient
}

func (h *DefaultErrorHandler) HandleError(error) {}

func (h *DefaultErrorHandler) LogError(err error) {
	if err == nil {
		return
	}
	slog.Warn("connection error", "error", err, "class", h.ClassifyError(err))
}

func (h *DefaultErrorHandler) IncrementReconnectAttempts() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts++
	return h.attempts
}

func (h *DefaultErrorHandler) ResetReconnectAttempts() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts = 0
	h.backoff = h.newBackOff()
}

// NextBackOff satisfies the interface Policy.Decide probes for, handing
// back the handler's next delay (spec §4.5's "handler returns ... delay_ms
// ... responsible for its own backoff shape").
func (h *DefaultErrorHandler) NextBackOff() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	d := h.backoff.NextBackOff()
	if d == backoff.Stop {
		return h.opts.MaxBackoff
	}
	return d
}

// linearBackOff grows delay by base per attempt, capped at max, with
// optional +-10% jitter — backoff/v4 ships exponential and constant only,
// so linear is a small adapter satisfying the same backoff.BackOff
// interface.
type linearBackOff struct {
	mu      sync.Mutex
	attempt int
	base    time.Duration
	max     time.Duration
	jitter  bool
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempt++
	d := time.Duration(l.attempt) * l.base
	if l.max > 0 && d > l.max {
		d = l.max
	}
	if l.jitter {
		jitterRange := float64(d) * 0.1
		d = time.Duration(float64(d) - jitterRange + 2*jitterRange*rand.Float64())
	}
	return d
}

func (l *linearBackOff) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempt = 0
}
