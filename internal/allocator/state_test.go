package allocator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	legal := [][2]State{
		{StateIdle, StateReserving},
		{StateReserving, StateEncoding},
		{StateEncoding, StateInsertingEntity},
		{StateEncoding, StateDone},
		{StateInsertingEntity, StateDone},
		{StateInsertingEntity, StateRetrying},
		{StateRetrying, StateReserving},
		{StateRetrying, StateFailed},
	}
	for _, tr := range legal {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	illegal := [][2]State{
		{StateIdle, StateDone},
		{StateIdle, StateEncoding},
		{StateReserving, StateInsertingEntity},
		{StateDone, StateReserving},
		{StateFailed, StateRetrying},
		{StateRetrying, StateDone},
	}
	for _, tr := range illegal {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []State{StateDone, StateFailed} {
		assert.True(t, s.Terminal())
		for _, next := range []State{StateIdle, StateReserving, StateEncoding, StateInsertingEntity, StateRetrying, StateDone, StateFailed} {
			assert.False(t, CanTransition(s, next))
		}
	}
	assert.False(t, StateRetrying.Terminal())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "inserting_entity", StateInsertingEntity.String())
	assert.Equal(t, "state(42)", State(42).String())
}

func TestRunPanicsOnIllegalTransition(t *testing.T) {
	r := &run{state: StateIdle}
	assert.Panics(t, func() { r.to(StateDone) })

	var seen []Transition
	r = &run{state: StateIdle, attempt: 1, observer: func(tr Transition) { seen = append(seen, tr) }}
	r.to(StateReserving)
	assert.Equal(t, []Transition{{From: StateIdle, To: StateReserving, Attempt: 1}}, seen)
}
