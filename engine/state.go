package engine

import "fmt"

// State of one popup within a page.
type State int

const (
	Pending State = iota
	Triggered
	Shown
	Closed
	Converted
)

var stateNames = [...]string{"pending", "triggered", "shown", "closed", "converted"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal states never return to Pending within a session.
func (s State) Terminal() bool {
	return s == Closed || s == Converted
}

type IllegalTransitionError struct {
	From, To State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal popup transition %s -> %s", e.From, e.To)
}

var transitions = map[State][]State{
	Pending:   {Triggered},
	Triggered: {Shown},
	Shown:     {Closed, Converted},
}

func transition(from, to State) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return &IllegalTransitionError{From: from, To: to}
}
