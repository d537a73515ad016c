package handlers

import "fmt"

// Builder composes a Bindings value from user-supplied overrides layered
// over the package defaults, mirroring spec §9's design note: "a default
// struct implementing each handler trait plus a builder that composes user
// overrides" in place of the original's compile-time behaviour-module
// injection. A nil Auth falls back to NewNoopAuthHandler and a nil
// RateLimit to NewAlwaysAllowRateLimitHandler; the other fields left nil
// fall back to NewDefault*. Error has no
// in-package default (package reconnect's DefaultErrorHandler needs
// cenkalti/backoff, which would cycle back through handlers) and must be
// supplied by the caller.
type Builder struct {
	Connection   ConnectionHandler
	Message      MessageHandler
	Error        ErrorHandler
	Auth         AuthHandler
	Subscription SubscriptionHandler
	RateLimit    RateLimitHandler
}

// Build assembles the final Bindings, filling every unset field except
// Error with its package default.
func (b Builder) Build() (Bindings, error) {
	if b.Error == nil {
		return Bindings{}, fmt.Errorf("handlers: builder requires an ErrorHandler (see reconnect.NewDefaultErrorHandler)")
	}

	bound := Bindings{
		Connection:   b.Connection,
		Message:      b.Message,
		Error:        b.Error,
		Auth:         b.Auth,
		Subscription: b.Subscription,
		RateLimit:    b.RateLimit,
	}

	if bound.Connection == nil {
		bound.Connection = NewDefaultConnectionHandler()
	}
	if bound.Message == nil {
		bound.Message = NewDefaultMessageHandler()
	}
	if bound.Auth == nil {
		bound.Auth = NewNoopAuthHandler()
	}
	if bound.Subscription == nil {
		bound.Subscription = NewDefaultSubscriptionHandler()
	}
	if bound.RateLimit == nil {
		bound.RateLimit = NewAlwaysAllowRateLimitHandler()
	}

	return bound, nil
}
