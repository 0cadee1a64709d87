package guard

import "fmt"

// State is a write's position in the guard lifecycle.
//
//	PENDING_AUTH -> AUTHORIZED -> BACKED_UP -> WRITTEN -> TRACED
//	PENDING_AUTH -> REJECTED
//	AUTHORIZED   -> WRITE_FAILED
//	BACKED_UP    -> WRITE_FAILED
//
// A write whose trace append failed stays WRITTEN.
type State string

// Lifecycle states.
const (
	StatePendingAuth State = "PENDING_AUTH"
	StateAuthorized  State = "AUTHORIZED"
	StateBackedUp    State = "BACKED_UP"
	StateWritten     State = "WRITTEN"
	StateTraced      State = "TRACED"
	StateRejected    State = "REJECTED"
	StateWriteFailed State = "WRITE_FAILED"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StateTraced, StateRejected, StateWriteFailed:
		return true
	default:
		return false
	}
}

// transitions lists the legal successor states.
var transitions = map[State][]State{ //nolint:gochecknoglobals // static table
	StatePendingAuth: {StateAuthorized, StateRejected},
	StateAuthorized:  {StateBackedUp, StateWriteFailed},
	StateBackedUp:    {StateWritten, StateWriteFailed},
	StateWritten:     {StateTraced},
}

// advance moves res to state to. Write only takes legal steps, so an illegal
// one is a bug in this package.
func (r *Result) advance(to State) {
	if !CanTransition(r.State, to) {
		panic(fmt.Sprintf("guard: illegal transition %s -> %s", r.State, to))
	}
	r.State = to
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
