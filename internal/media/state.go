package media

import (
	"fmt"
	"slices"
)

// State is the lifecycle state of one captured or attached item.
type State string

const (
	Capturing State = "CAPTURING"
	Captured  State = "CAPTURED"
	Uploading State = "UPLOADING"
	Confirmed State = "CONFIRMED"
	Failed    State = "FAILED"
	Dismissed State = "DISMISSED"
)

var validTransitions = map[State][]State{
	Capturing: {Captured, Dismissed},
	Captured:  {Uploading},
	Uploading: {Confirmed, Failed},
	Failed:    {Uploading, Confirmed, Dismissed},
}

// CanTransition reports whether moving from s to to is allowed.
func (s State) CanTransition(to State) bool {
	return slices.Contains(validTransitions[s], to)
}

// Terminal reports whether no further transition exists.
func (s State) Terminal() bool {
	return len(validTransitions[s]) == 0
}

func (it *item) transition(to State) error {
	if !it.State.CanTransition(to) {
		return fmt.Errorf("invalid media transition from %s to %s", it.State, to)
	}
	it.State = to
	return nil
}
