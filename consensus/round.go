package consensus

import "fmt"

// RoundState tracks a single block round. Only one block may be in flight
// per chain tip; Committed is terminal for the round, Rejected returns to
// Idle for a retry.
type RoundState int

const (
	Idle RoundState = iota
	ProposerSelected
	BlockProposed
	Validating
	Committed
	Rejected
)

func (s RoundState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case ProposerSelected:
		return "ProposerSelected"
	case BlockProposed:
		return "BlockProposed"
	case Validating:
		return "Validating"
	case Committed:
		return "Committed"
	case Rejected:
		return "Rejected"
	default:
		return fmt.Sprintf("RoundState(%d)", int(s))
	}
}

// validTransitions encodes the round state machine.
var validTransitions = map[RoundState][]RoundState{
	Idle:             {ProposerSelected},
	ProposerSelected: {BlockProposed, Idle},
	BlockProposed:    {Validating},
	Validating:       {Committed, Rejected},
	Committed:        {Idle},
	Rejected:         {Idle},
}

func (s RoundState) canTransition(to RoundState) bool {
	for _, next := range validTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
