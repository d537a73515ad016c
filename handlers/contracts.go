// Package handlers defines the extension points of spec §4.6 — the six
// capability sets an adapter implements to target a specific remote
// service — plus default implementations and a Builder that composes user
// overrides over them, the way teacher-adjacent agents compose named
// handler structs (see other_examples' darthnorse-dockmon
// agent/internal/client/websocket.go, which wires a WebSocketClient out of
// statsHandler/updateHandler/healthCheckHandler/... fields, each with its
// own constructor). Unlike the Elixir source's functional state-threading
// ABI, each handler here is a stateful object with pointer-receiver
// methods — the idiomatic Go shape for "a capability set with private,
// mutable state" — so Bindings just stores interfaces, not a
// separate state blob threaded through every call.
package handlers

import (
	"github.com/ZenHive/websockex-nova-go/config"
	"github.com/ZenHive/websockex-nova-go/frame"
	"github.com/ZenHive/websockex-nova-go/transport"
)

// Outcome tags what a handler wants the caller to do next (spec §6:
// "ok | reply(...) | reconnect | stop | error(reason)").
type Outcome int

const (
	OK Outcome = iota
	Reply
	Reconnect
	Stop
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Reply:
		return "reply"
	case Reconnect:
		return "reconnect"
	case Stop:
		return "stop"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is the tagged-union return value shared by every handler
// operation named in spec §4.6.
type Result struct {
	Outcome Outcome
	Reply   frame.Frame
	Err     error
}

// Ok is shorthand for Result{Outcome: OK}.
func Ok() Result { return Result{Outcome: OK} }

// ReplyWith is shorthand for Result{Outcome: Reply, Reply: f}.
func ReplyWith(f frame.Frame) Result { return Result{Outcome: Reply, Reply: f} }

// ReconnectResult is shorthand for Result{Outcome: Reconnect}.
func ReconnectResult() Result { return Result{Outcome: Reconnect} }

// Errorf is shorthand for Result{Outcome: OutcomeError, Err: err}.
func Errorf(err error) Result { return Result{Outcome: OutcomeError, Err: err} }

// ConnectionHandler is the primary lifecycle hook set (spec §4.6).
type ConnectionHandler interface {
	Init(opts config.Options) error
	HandleConnect(info config.Options) Result
	HandleDisconnect(reason error) Result
	HandleFrame(f frame.Frame) Result
	HandleTimeout()
	Ping(stream transport.StreamRef) (frame.Frame, error)
	Status(stream transport.StreamRef) (string, error)
}

// MessageHandler encodes/decodes and validates adapter-level application
// messages layered on top of raw Frames.
type MessageHandler interface {
	HandleMessage(msg any) Result
	Validate(msg any) error
	TypeOf(msg any) string
	Encode(msg any) (frame.Kind, []byte, error)
}

// ErrorHandler is consulted by package reconnect on every transition into
// disconnected/error (spec §4.5).
type ErrorHandler interface {
	ShouldReconnect(lastErr error, attempt uint32) bool
	ClassifyError(err error) ErrorClass
	HandleError(err error)
	LogError(err error)
	IncrementReconnectAttempts() uint32
	ResetReconnectAttempts()
}

// ErrorClass distinguishes terminal failures (never retry) from transient
// ones (spec §4.5's classification list).
type ErrorClass int

const (
	ClassTransient ErrorClass = iota
	ClassTerminal
)

// AuthHandler manages adapter-specific authentication.
type AuthHandler interface {
	GenerateAuthData() (frame.Frame, error)
	HandleAuthResponse(f frame.Frame) (token string, err error)
	NeedsReauthentication() bool
	Authenticate(stream transport.StreamRef, creds config.Credentials) Result
}

// SubscriptionHandler manages channel subscriptions and their replay after
// a reconnect (spec §4.6, §8 scenario S3).
type SubscriptionHandler interface {
	Subscribe(channel string, params map[string]any) Result
	Unsubscribe(channel string) Result
	ActiveSubscriptions() []string
	FindSubscriptionByChannel(channel string) (params map[string]any, ok bool)
	HandleSubscriptionResponse(f frame.Frame) Result
	PrepareForReconnect()
	ResubscribeAfterReconnect() []ReplayResult
}

// ReplayResult reports the outcome of resubscribing to one channel after a
// reconnect.
type ReplayResult struct {
	Channel string
	Err     error
}

// RateLimitHandler decides the fate of one outbound request (spec §4.6,
// §4.7). The always_allow/always_queue/always_reject modes are implemented
// in this package and the bucket-backed one by ratelimit.TokenBucketHandler;
// consumed by ratelimit.Limiter.
type RateLimitHandler interface {
	Check(costKey string) CheckOutcome
}

// CheckKind tags a RateLimitHandler.Check result.
type CheckKind int

const (
	Allow CheckKind = iota
	Queue
	Reject
)

// CheckOutcome is the result of a RateLimitHandler.Check call.
type CheckOutcome struct {
	Kind   CheckKind
	Reason string
}
