package connstate

import "fmt"

// InvalidTransition is returned when a requested (from, to) pair is absent
// from the transition table below. It is an internal invariant violation,
// never surfaced to user code directly (spec §4.4, §4.9): ConnectionEngine
// logs it at Warn and continues.
type InvalidTransition struct {
	From Status
	To   Status
}

func (e *InvalidTransition) Error() string {
	return fmt.Sprintf("connstate: invalid transition %s -> %s", e.From, e.To)
}

// TransitionContext carries the optional reason for a transition,
// consumed downstream by package reconnect's ReconnectionPolicy.
type TransitionContext struct {
	Reason error
}

// allowed is the transition table of spec §4.4 (row = from, col = to).
// Transitions to Error are handled separately below since every row
// permits them.
var allowed = map[Status]map[Status]bool{
	Initialized:        {Connecting: true},
	Connecting:         {Connected: true, Disconnected: true},
	Connected:          {WebSocketConnected: true, Disconnected: true},
	WebSocketConnected: {Disconnected: true},
	Disconnected:       {Reconnecting: true},
	Reconnecting:       {Connecting: true, Disconnected: true},
	Error:              {Connecting: true, Reconnecting: true},
}

// TransitionTo validates and, if allowed, applies from -> target on s,
// returning the new status. Any transition to Error is always permitted,
// matching spec §4.4's "any transition to error is always permitted"
// clause; anything else not present in the table above fails with
// *InvalidTransition and leaves s unchanged.
func TransitionTo(s *State, target Status, ctx TransitionContext) (Status, error) {
	from := s.Status()

	if target == Error {
		if ctx.Reason != nil {
			s.RecordError(ctx.Reason)
		}
		s.UpdateStatus(Error)
		return Error, nil
	}

	if row, ok := allowed[from]; !ok || !row[target] {
		return from, &InvalidTransition{From: from, To: target}
	}

	s.UpdateStatus(target)
	return target, nil
}
