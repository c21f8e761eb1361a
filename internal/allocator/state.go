package allocator

import "fmt"

// State is a step of a single allocation.
type State int

const (
	StateIdle State = iota
	StateReserving
	StateEncoding
	StateInsertingEntity
	StateRetrying
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReserving:
		return "reserving"
	case StateEncoding:
		return "encoding"
	case StateInsertingEntity:
		return "inserting_entity"
	case StateRetrying:
		return "retrying"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

var transitions = map[State][]State{
	StateIdle:            {StateReserving},
	StateReserving:       {StateEncoding, StateRetrying, StateFailed},
	StateEncoding:        {StateInsertingEntity, StateDone, StateRetrying, StateFailed},
	StateInsertingEntity: {StateDone, StateRetrying, StateFailed},
	StateRetrying:        {StateReserving, StateFailed},
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition is handed to an Observer on every state change.
type Transition struct {
	From    State
	To      State
	Attempt int
	// Label is set once the reserved value has been encoded.
	Label string
}

// Observer receives transitions synchronously on the allocating goroutine.
type Observer func(Transition)

// run tracks the state of one allocation call.
type run struct {
	state    State
	attempt  int
	label    string
	observer Observer
}

func (r *run) to(next State) {
	if !CanTransition(r.state, next) {
		panic(fmt.Sprintf("allocator: illegal transition %s -> %s", r.state, next))
	}
	t := Transition{From: r.state, To: next, Attempt: r.attempt, Label: r.label}
	r.state = next
	if r.observer != nil {
		r.observer(t)
	}
}
