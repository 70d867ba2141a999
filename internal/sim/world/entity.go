package world

import (
	"gridswarm/internal/sim/grid"
	"gridswarm/internal/sim/rng"
)

// EntityID is an entity's stable slot in the World arena.
type EntityID int32

// NoEntity marks an empty cell in the index layer.
const NoEntity EntityID = -1

// Policy thresholds: 5% turn, 90% continue straight ahead, 5% wait.
const (
	turnBelow = 0.05
	moveBelow = 0.95
)

// Entity is a point agent. ID is assigned by World.PlaceEntity.
type Entity struct {
	ID       EntityID
	Location grid.Location
	Facing   grid.Direction
}

// NewEntity builds an unplaced entity at loc with a random facing.
func NewEntity(loc grid.Location, src rng.Source) Entity {
	return Entity{
		ID:       NoEntity,
		Location: loc,
		Facing:   grid.RandomDirection(src),
	}
}

// DetermineAction draws one sample and maps it to an intent. A Turn draws a
// second, independent sample for the new facing. Neighbors are not consulted.
func (e Entity) DetermineAction(src rng.Source) Action {
	switch r := src.Next(); {
	case r < turnBelow:
		return Turn(grid.RandomDirection(src))
	case r < moveBelow:
		return Move(e.Facing)
	default:
		return Wait()
	}
}
