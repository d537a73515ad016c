// Package ratelimit implements RateLimiter (spec §4.7): a token bucket
// gating every outbound frame, with a bounded FIFO queue for requests that
// arrive over capacity and a periodic drain tick that replays them as
// tokens refill. Built on golang.org/x/time/rate for the bucket itself and
// github.com/eapache/queue for the replay queue — grounded on
// momentics-hioload-ws's internal/concurrency/executor.go, the one repo in
// the pack that already imports eapache/queue for a worker dispatch queue.
package ratelimit

import (
	"sync"
	"time"

	"github.com/eapache/queue"
	"golang.org/x/time/rate"

	"github.com/ZenHive/websockex-nova-go/config"
	"github.com/ZenHive/websockex-nova-go/handlers"
)

// pendingSend is one queued outbound request: its cost key (for bucket
// accounting on replay) and the callback the Limiter invokes once it is
// finally allowed through.
type pendingSend struct {
	costKey string
	send    func()
}

// Limiter is the RateLimiter of spec §4.7. client.Connect creates one
// private instance per connection; config.Options.RateLimiterName is not
// consulted, so a Limiter is not shared across connections.
type Limiter struct {
	mu         sync.Mutex
	bucket     *rate.Limiter
	costMap    map[string]int
	queueLimit int
	queue      *queue.Queue
	handler    handlers.RateLimitHandler
}

// New builds a Limiter from the resolved rate_limit_opts. Its handler
// decides allow/queue/reject for each Submit call; New installs
// NewTokenBucketHandler(l) so the bucket itself makes that decision. Use
// WithHandler to swap in one of handlers.NewAlwaysAllowRateLimitHandler /
// NewAlwaysQueueRateLimitHandler / NewAlwaysRejectRateLimitHandler for the
// three canonical test modes of spec §4.7/§8.
func New(opts config.RateLimitOpts) *Limiter {
	refillRate := opts.RefillRate
	if refillRate <= 0 {
		refillRate = 1
	}
	l := &Limiter{
		bucket:     rate.NewLimiter(rate.Limit(refillRate), maxInt(opts.Capacity, 1)),
		costMap:    opts.CostMap,
		queueLimit: opts.QueueLimit,
		queue:      queue.New(),
	}
	l.handler = NewTokenBucketHandler(l)
	return l
}

// WithHandler overrides the RateLimitHandler consulted by Submit, e.g. to
// install one of the always_allow/always_queue/always_reject test modes.
func (l *Limiter) WithHandler(h handlers.RateLimitHandler) *Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
	return l
}

func (l *Limiter) cost(costKey string) int {
	if c, ok := l.costMap[costKey]; ok {
		return c
	}
	if c, ok := l.costMap["default"]; ok {
		return c
	}
	return 1
}

// Submit gates one outbound frame. On allow, send runs synchronously
// before Submit returns. On queue, send is stored and replayed by a later
// Tick call; Submit returns immediately. On reject, send never runs and
// the rejection reason is returned.
func (l *Limiter) Submit(costKey string, send func()) handlers.CheckOutcome {
	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()

	outcome := h.Check(costKey)
	switch outcome.Kind {
	case handlers.Allow:
		send()
	case handlers.Queue:
		l.mu.Lock()
		if l.queue.Length() >= l.queueLimit && l.queueLimit > 0 {
			l.mu.Unlock()
			return handlers.CheckOutcome{Kind: handlers.Reject, Reason: "queue_full"}
		}
		l.queue.Add(pendingSend{costKey: costKey, send: send})
		l.mu.Unlock()
	case handlers.Reject:
		// send never runs; outcome.Reason already carries why.
	}
	return outcome
}

// Tick drains queued sends while the bucket still has capacity, driven by
// ConnectionEngine's RateLimiterTick timer event (spec §4.8). It stops at
// the first item the bucket cannot yet admit, preserving FIFO order.
func (l *Limiter) Tick() {
	for {
		l.mu.Lock()
		if l.queue.Length() == 0 {
			l.mu.Unlock()
			return
		}
		head := l.queue.Peek().(pendingSend)
		if !l.bucket.AllowN(time.Now(), l.cost(head.costKey)) {
			l.mu.Unlock()
			return
		}
		l.queue.Remove()
		l.mu.Unlock()

		head.send()
	}
}

// QueueLen reports the number of sends currently waiting for capacity.
func (l *Limiter) QueueLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Length()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// TokenBucketHandler is the production RateLimitHandler: it consults the
// owning Limiter's token bucket directly, returning Allow when a token for
// costKey is available, Queue when the bucket is dry but the queue still
// has room, and Reject(queue_full) otherwise.
type TokenBucketHandler struct {
	l *Limiter
}

// NewTokenBucketHandler builds the default, bucket-backed RateLimitHandler
// for l.
func NewTokenBucketHandler(l *Limiter) *TokenBucketHandler {
	return &TokenBucketHandler{l: l}
}

func (h *TokenBucketHandler) Check(costKey string) handlers.CheckOutcome {
	cost := h.l.cost(costKey)
	if h.l.bucket.AllowN(time.Now(), cost) {
		return handlers.CheckOutcome{Kind: handlers.Allow}
	}
	if h.l.queueLimit <= 0 || h.l.QueueLen() < h.l.queueLimit {
		return handlers.CheckOutcome{Kind: handlers.Queue}
	}
	return handlers.CheckOutcome{Kind: handlers.Reject, Reason: "queue_full"}
}
