package handlers

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ZenHive/websockex-nova-go/config"
	"github.com/ZenHive/websockex-nova-go/frame"
	"github.com/ZenHive/websockex-nova-go/transport"
)

// DefaultConnectionHandler is the no-op-by-default ConnectionHandler every
// adapter starts from: accept the connection, always vote to reconnect on
// disconnect, ignore inbound frames, and answer pings with a bare Ping.
// Adapters typically embed this and override one or two methods, the same
// "delegate the rest to the default" shape the teacher's macro-injected
// handlers used (spec §9's design note on replacing macros with a default
// struct + builder).
type DefaultConnectionHandler struct {
	status string
}

func NewDefaultConnectionHandler() *DefaultConnectionHandler {
	return &DefaultConnectionHandler{status: "initialized"}
}

func (h *DefaultConnectionHandler) Init(config.Options) error { return nil }

func (h *DefaultConnectionHandler) HandleConnect(config.Options) Result {
	h.status = "connected"
	return Ok()
}

func (h *DefaultConnectionHandler) HandleDisconnect(error) Result {
	h.status = "disconnected"
	return ReconnectResult()
}

func (h *DefaultConnectionHandler) HandleFrame(frame.Frame) Result { return Ok() }

func (h *DefaultConnectionHandler) HandleTimeout() {}

func (h *DefaultConnectionHandler) Ping(transport.StreamRef) (frame.Frame, error) {
	return frame.NewPing(nil), nil
}

func (h *DefaultConnectionHandler) Status(transport.StreamRef) (string, error) {
	return h.status, nil
}

// DefaultMessageHandler treats every adapter message as a JSON-encodable
// value and gives it the message's "type" field (if any) as its tag.
type DefaultMessageHandler struct{}

func NewDefaultMessageHandler() *DefaultMessageHandler { return &DefaultMessageHandler{} }

func (DefaultMessageHandler) HandleMessage(any) Result { return Ok() }

func (DefaultMessageHandler) Validate(msg any) error {
	if msg == nil {
		return fmt.Errorf("message handler: nil message")
	}
	return nil
}

func (DefaultMessageHandler) TypeOf(msg any) string {
	if m, ok := msg.(map[string]any); ok {
		if t, ok := m["type"].(string); ok {
			return t
		}
	}
	return "unknown"
}

func (DefaultMessageHandler) Encode(msg any) (frame.Kind, []byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return frame.Text, nil, fmt.Errorf("encoding message: %w", err)
	}
	return frame.Text, b, nil
}

// DefaultSubscriptionHandler keeps an in-memory channel->params map. On
// reconnect, ResubscribeAfterReconnect reports one successful ReplayResult
// per recorded channel; it sends no frames itself. Subscribe/
// Unsubscribe return Ok immediately; adapters that need a request/response
// round trip before confirming a subscription should override
// HandleSubscriptionResponse and call back into this handler's bookkeeping.
type DefaultSubscriptionHandler struct {
	mu   sync.Mutex
	subs map[string]map[string]any
}

func NewDefaultSubscriptionHandler() *DefaultSubscriptionHandler {
	return &DefaultSubscriptionHandler{subs: make(map[string]map[string]any)}
}

func (h *DefaultSubscriptionHandler) Subscribe(channel string, params map[string]any) Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[channel] = params
	return Ok()
}

func (h *DefaultSubscriptionHandler) Unsubscribe(channel string) Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, channel)
	return Ok()
}

func (h *DefaultSubscriptionHandler) ActiveSubscriptions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.subs))
	for ch := range h.subs {
		out = append(out, ch)
	}
	return out
}

func (h *DefaultSubscriptionHandler) FindSubscriptionByChannel(channel string) (map[string]any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	params, ok := h.subs[channel]
	return params, ok
}

func (h *DefaultSubscriptionHandler) HandleSubscriptionResponse(frame.Frame) Result { return Ok() }

func (h *DefaultSubscriptionHandler) PrepareForReconnect() {}

func (h *DefaultSubscriptionHandler) ResubscribeAfterReconnect() []ReplayResult {
	h.mu.Lock()
	snapshot := make(map[string]map[string]any, len(h.subs))
	for ch, params := range h.subs {
		snapshot[ch] = params
	}
	h.mu.Unlock()

	results := make([]ReplayResult, 0, len(snapshot))
	for ch := range snapshot {
		results = append(results, ReplayResult{Channel: ch})
	}
	return results
}

// fixedOutcomeRateLimitHandler always returns the same CheckOutcome,
// backing spec §4.7's three canonical test modes: always_allow,
// always_queue, always_reject.
type fixedOutcomeRateLimitHandler struct {
	outcome CheckOutcome
}

func (h fixedOutcomeRateLimitHandler) Check(string) CheckOutcome { return h.outcome }

// NewAlwaysAllowRateLimitHandler never queues or rejects.
func NewAlwaysAllowRateLimitHandler() RateLimitHandler {
	return fixedOutcomeRateLimitHandler{outcome: CheckOutcome{Kind: Allow}}
}

// NewAlwaysQueueRateLimitHandler always defers every send to the queue.
func NewAlwaysQueueRateLimitHandler() RateLimitHandler {
	return fixedOutcomeRateLimitHandler{outcome: CheckOutcome{Kind: Queue}}
}

// NewAlwaysRejectRateLimitHandler rejects every send synchronously with
// reason.
func NewAlwaysRejectRateLimitHandler(reason string) RateLimitHandler {
	return fixedOutcomeRateLimitHandler{outcome: CheckOutcome{Kind: Reject, Reason: reason}}
}
