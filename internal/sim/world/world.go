package world

import (
	"fmt"
	"iter"

	"gridswarm/internal/sim/grid"
)

// World owns the entity arena and the index layer mapping each cell to at
// most one entity id.
//
// Invariants:
//   - occupancy: a cell holds at most one id.
//   - consistency: for every live entity e, cells[e.Location] == e.ID and no
//     other cell holds e.ID.
//
// World does no locking. The Processor serializes every mutation.
type World struct {
	dims grid.Dims

	entities []Entity
	live     []bool
	free     []EntityID
	count    int

	cells *grid.Grid[EntityID]
}

func New(width, height int) *World {
	cells := grid.New(width, height, func() EntityID { return NoEntity })
	return &World{
		dims:     cells.Dims(),
		entities: make([]Entity, 0, 128),
		cells:    cells,
	}
}

func (w *World) Dims() grid.Dims { return w.dims }
func (w *World) Width() int      { return w.dims.Width }
func (w *World) Height() int     { return w.dims.Height }

// Len returns the number of live entities.
func (w *World) Len() int { return w.count }

// LocationAt wraps (x, y) onto this world's torus.
func (w *World) LocationAt(x, y int) grid.Location { return w.dims.At(x, y) }

// Add steps one cell from l in direction d on this world's torus.
func (w *World) Add(l grid.Location, d grid.Direction) grid.Location { return w.dims.Add(l, d) }

// Resident returns the id stored at l, or NoEntity.
func (w *World) Resident(l grid.Location) EntityID { return w.cells.Get(l) }

func (w *World) IsOccupied(l grid.Location) bool { return w.cells.Get(l) != NoEntity }

// PlaceEntity inserts e at e.Location and assigns it a new id. The location
// is re-derived under this world's dims. On OccupiedError nothing changes.
func (w *World) PlaceEntity(e Entity) (EntityID, error) {
	loc := w.dims.At(int(e.Location.X()), int(e.Location.Y()))
	if r := w.cells.Get(loc); r != NoEntity {
		return NoEntity, &OccupiedError{At: loc, Resident: r}
	}

	var id EntityID
	if n := len(w.free); n > 0 {
		id = w.free[n-1]
		w.free = w.free[:n-1]
	} else {
		id = EntityID(len(w.entities))
		w.entities = append(w.entities, Entity{})
		w.live = append(w.live, false)
	}

	e.ID = id
	e.Location = loc
	w.entities[id] = e
	w.live[id] = true
	w.cells.Set(loc, id)
	w.count++
	return id, nil
}

// EntityAt returns a copy of the entity at l.
func (w *World) EntityAt(l grid.Location) (Entity, bool) {
	id := w.cells.Get(l)
	if id == NoEntity {
		return Entity{}, false
	}
	return w.entities[id], true
}

// EntityByID returns a copy of a live entity.
func (w *World) EntityByID(id EntityID) (Entity, bool) {
	if id < 0 || int(id) >= len(w.entities) || !w.live[id] {
		return Entity{}, false
	}
	return w.entities[id], true
}

// SetFacing turns the entity at l in place. The index layer is untouched.
func (w *World) SetFacing(l grid.Location, d grid.Direction) error {
	id := w.cells.Get(l)
	if id == NoEntity {
		return fmt.Errorf("set facing at %v: %w", l, ErrNoEntity)
	}
	w.entities[id].Facing = d
	return nil
}

// MoveEntity relocates the entity at l one step in direction d and returns its
// new location. The destination must be empty, or be l itself on a grid that
// is a single cell wide/tall in the direction of travel.
func (w *World) MoveEntity(l grid.Location, d grid.Direction) (grid.Location, error) {
	id := w.cells.Get(l)
	if id == NoEntity {
		return l, fmt.Errorf("move from %v: %w", l, ErrNoEntity)
	}
	to := w.dims.Add(l, d)
	if r := w.cells.Get(to); r != NoEntity && r != id {
		return l, &OccupiedError{At: to, Resident: r}
	}

	w.cells.Set(l, NoEntity)
	w.entities[id].Location = to
	w.cells.Set(to, id)
	return to, nil
}

// RemoveEntity deletes the entity at l and frees its id for reuse.
func (w *World) RemoveEntity(l grid.Location) (Entity, error) {
	id := w.cells.Get(l)
	if id == NoEntity {
		return Entity{}, fmt.Errorf("remove at %v: %w", l, ErrNoEntity)
	}
	e := w.entities[id]
	w.cells.Set(l, NoEntity)
	w.entities[id] = Entity{ID: NoEntity}
	w.live[id] = false
	w.free = append(w.free, id)
	w.count--
	return e, nil
}

// Entities iterates live entities in id order. Each call starts a new pass.
func (w *World) Entities() iter.Seq2[EntityID, Entity] {
	return func(yield func(EntityID, Entity) bool) {
		for i, e := range w.entities {
			if !w.live[i] {
				continue
			}
			if !yield(EntityID(i), e) {
				return
			}
		}
	}
}

// CheckInvariants verifies occupancy and consistency across the whole grid.
// It is O(cells) and meant for tests and debug runs.
func (w *World) CheckInvariants() error {
	seen := 0
	for i, e := range w.entities {
		if !w.live[i] {
			continue
		}
		seen++
		id := EntityID(i)
		if e.ID != id {
			return fmt.Errorf("entity slot %d carries id %d", i, e.ID)
		}
		if got := w.cells.Get(e.Location); got != id {
			return fmt.Errorf("entity %d at %v but cell holds %d", id, e.Location, got)
		}
	}
	if seen != w.count {
		return fmt.Errorf("live count %d != tracked count %d", seen, w.count)
	}

	refs := 0
	for y := 0; y < w.dims.Height; y++ {
		for x := 0; x < w.dims.Width; x++ {
			l := w.dims.At(x, y)
			id := w.cells.Get(l)
			if id == NoEntity {
				continue
			}
			refs++
			if id < 0 || int(id) >= len(w.entities) || !w.live[id] {
				return fmt.Errorf("cell %v references dead entity %d", l, id)
			}
			if w.entities[id].Location != l {
				return fmt.Errorf("cell %v references entity %d located at %v", l, id, w.entities[id].Location)
			}
		}
	}
	if refs != w.count {
		return fmt.Errorf("%d cells reference entities, want %d", refs, w.count)
	}
	return nil
}
