package world

import (
	"fmt"

	"gridswarm/internal/sim/grid"
)

type ActionKind uint8

const (
	ActionNone ActionKind = iota // empty scratch cell
	ActionWait
	ActionMove
	ActionTurn
)

// Action is an entity's intent for the current tick. Dir is the move
// direction for ActionMove and the new facing for ActionTurn.
type Action struct {
	Kind ActionKind
	Dir  grid.Direction
}

func Wait() Action                 { return Action{Kind: ActionWait} }
func Move(d grid.Direction) Action { return Action{Kind: ActionMove, Dir: d} }
func Turn(d grid.Direction) Action { return Action{Kind: ActionTurn, Dir: d} }

func (a Action) IsNone() bool { return a.Kind == ActionNone }

// ClaimDirection reports the direction of the cell this action competes for.
// Only moves claim a cell; waits and turns never conflict.
func (a Action) ClaimDirection() (grid.Direction, bool) {
	if a.Kind == ActionMove {
		return a.Dir, true
	}
	return 0, false
}

func (a Action) String() string {
	switch a.Kind {
	case ActionNone:
		return "None"
	case ActionWait:
		return "Wait"
	case ActionMove:
		return fmt.Sprintf("Move(%s)", a.Dir)
	case ActionTurn:
		return fmt.Sprintf("Turn(%s)", a.Dir)
	default:
		return "Invalid action"
	}
}

type OutcomeKind uint8

const (
	OutcomeNone OutcomeKind = iota // empty scratch cell
	OutcomeBlocked
	OutcomeWait
	OutcomeMove
	OutcomeTurn
)

// Outcome is the resolved effect applied to an entity at the end of a tick.
type Outcome struct {
	Kind OutcomeKind
	Dir  grid.Direction
}

func Blocked() Outcome                    { return Outcome{Kind: OutcomeBlocked} }
func WaitOutcome() Outcome                { return Outcome{Kind: OutcomeWait} }
func MoveOutcome(d grid.Direction) Outcome { return Outcome{Kind: OutcomeMove, Dir: d} }
func TurnOutcome(d grid.Direction) Outcome { return Outcome{Kind: OutcomeTurn, Dir: d} }

func (o Outcome) IsNone() bool { return o.Kind == OutcomeNone }

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeNone:
		return "None"
	case OutcomeBlocked:
		return "Blocked"
	case OutcomeWait:
		return "Wait"
	case OutcomeMove:
		return fmt.Sprintf("Move(%s)", o.Dir)
	case OutcomeTurn:
		return fmt.Sprintf("Turn(%s)", o.Dir)
	default:
		return "Invalid outcome"
	}
}
