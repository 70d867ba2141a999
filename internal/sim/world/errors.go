package world

import (
	"errors"
	"fmt"

	"gridswarm/internal/sim/grid"
)

// ErrNoEntity is returned when an operation expects an entity at a cell that
// is empty.
var ErrNoEntity = errors.New("no entity at location")

// OccupiedError is returned by PlaceEntity/MoveEntity when the target cell
// already holds an entity. It is a routine result; callers typically retry
// elsewhere.
type OccupiedError struct {
	At       grid.Location
	Resident EntityID
}

func (e *OccupiedError) Error() string {
	return fmt.Sprintf("location %v occupied by entity %d", e.At, e.Resident)
}

// IsOccupied reports whether err is (or wraps) an *OccupiedError.
func IsOccupied(err error) bool {
	var oe *OccupiedError
	return errors.As(err, &oe)
}

// InvariantError means the step pipeline broke the occupancy or consistency
// invariant. It is never recoverable: the run loop stops on it.
type InvariantError struct {
	Tick     uint64
	Phase    string
	Location grid.Location
	Err      error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation at tick %d (%s, %v): %v", e.Tick, e.Phase, e.Location, e.Err)
}

func (e *InvariantError) Unwrap() error { return e.Err }
