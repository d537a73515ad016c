// Package correlate implements RequestCorrelator (spec §4.9): matching
// async replies back to the caller that sent the originating request,
// either via a user-supplied matcher closure or the default JSON
// id-match. Request ids are assigned with github.com/google/uuid, the
// library the pack's teleport and irgordon-kari repos already depend on
// for identifier generation.
package correlate

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MatchOutcome is what a Matcher returns for one inbound event.
type MatchOutcome int

const (
	// Skip means "not mine, try the next matcher".
	Skip MatchOutcome = iota
	// Match means "this is my reply".
	Match
	// MatchError means "this is my reply, but it's an error".
	MatchError
)

// MatchResult pairs a MatchOutcome with the decoded reply value or error.
type MatchResult struct {
	Outcome MatchOutcome
	Value   any
	Err     error
}

// Matcher inspects one raw inbound event (typically JSON bytes) and
// decides whether it is the reply a particular pending request is waiting
// for.
type Matcher func(raw []byte) MatchResult

// ErrTimeout is delivered to a waiter whose timeout fires before any
// matcher claims a reply.
var ErrTimeout = errors.New("correlate: request timed out")

// ErrNoMatcher is returned by Register if called with a nil matcher.
var ErrNoMatcher = errors.New("correlate: matcher is required")

type pendingRequest struct {
	id      string
	matcher Matcher
	result  chan MatchResult
	timer   *time.Timer
}

// Correlator assigns request ids and resolves pending requests against
// inbound frames, dispatched through registered matchers in registration
// order.
type Correlator struct {
	mu      sync.Mutex
	pending []*pendingRequest
}

// New builds an empty Correlator.
func New() *Correlator {
	return &Correlator{}
}

// NextID returns a fresh, unique request id. Callers may instead supply
// their own id to Register, e.g. to match an adapter's own id scheme.
func (c *Correlator) NextID() string {
	return uuid.NewString()
}

// Register records a pending request awaiting a reply, returning a channel
// that receives exactly one MatchResult — either a real match, or
// {Outcome: MatchError, Err: ErrTimeout} if timeout elapses first.
func (c *Correlator) Register(ctx context.Context, id string, matcher Matcher, timeout time.Duration) (<-chan MatchResult, error) {
	if matcher == nil {
		return nil, ErrNoMatcher
	}

	req := &pendingRequest{id: id, matcher: matcher, result: make(chan MatchResult, 1)}

	c.mu.Lock()
	c.pending = append(c.pending, req)
	c.mu.Unlock()

	req.timer = time.AfterFunc(timeout, func() {
		c.resolve(req, MatchResult{Outcome: MatchError, Err: ErrTimeout}, true)
	})

	go func() {
		<-ctx.Done()
		c.resolve(req, MatchResult{Outcome: MatchError, Err: ctx.Err()}, true)
	}()

	return req.result, nil
}

// Dispatch runs raw through every pending matcher in registration order
// until one returns Match or MatchError, resolving and removing that
// waiter. Returns true if some waiter claimed the event.
func (c *Correlator) Dispatch(raw []byte) bool {
	c.mu.Lock()
	candidates := make([]*pendingRequest, len(c.pending))
	copy(candidates, c.pending)
	c.mu.Unlock()

	for _, req := range candidates {
		result := req.matcher(raw)
		if result.Outcome == Skip {
			continue
		}
		c.resolve(req, result, false)
		return true
	}
	return false
}

func (c *Correlator) resolve(req *pendingRequest, result MatchResult, fromTimer bool) {
	c.mu.Lock()
	idx := -1
	for i, p := range c.pending {
		if p == req {
			idx = i
			break
		}
	}
	if idx == -1 {
		c.mu.Unlock()
		return // already resolved by another path
	}
	c.pending = append(c.pending[:idx], c.pending[idx+1:]...)
	c.mu.Unlock()

	if !fromTimer && req.timer != nil {
		req.timer.Stop()
	}
	req.result <- result
}

// DefaultMatcher decodes raw as JSON and matches on msg["id"] == id (spec
// §4.9's "decode frame as JSON and compare msg['id'] == request_id").
func DefaultMatcher(id string) Matcher {
	return func(raw []byte) MatchResult {
		var msg map[string]any
		if err := json.Unmarshal(raw, &msg); err != nil {
			return MatchResult{Outcome: Skip}
		}
		got, ok := msg["id"]
		if !ok {
			return MatchResult{Outcome: Skip}
		}
		if gotStr, ok := got.(string); ok && gotStr == id {
			return MatchResult{Outcome: Match, Value: msg}
		}
		return MatchResult{Outcome: Skip}
	}
}

// Pending reports how many requests are currently awaiting a reply.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
