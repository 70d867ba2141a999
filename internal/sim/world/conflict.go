package world

import (
	"math/bits"
	"sync/atomic"

	"gridswarm/internal/sim/grid"
)

// Conflict records, for one target cell, which sides move claims arrived from
// this tick. One bit per direction; concurrent AddFrom calls are safe.
type Conflict struct {
	flags atomic.Uint32
}

// AddFrom records a claim made by an entity moving in direction d. The claim
// arrives from the opposite side, e.g. a move East enters from the West.
func (c *Conflict) AddFrom(d grid.Direction) {
	c.flags.Or(1 << d.Opposite())
}

func (c *Conflict) Count() int {
	return bits.OnesCount32(c.flags.Load())
}

// IsContested reports whether claims arrived from two or more sides.
func (c *Conflict) IsContested() bool {
	return c.Count() > 1
}

func (c *Conflict) IsEmpty() bool { return c.flags.Load() == 0 }

func (c *Conflict) Reset() { c.flags.Store(0) }

// Flags lists the arrival sides in Directions order.
func (c *Conflict) Flags() []grid.Direction {
	v := c.flags.Load()
	var out []grid.Direction
	for _, d := range grid.Directions {
		if v&(1<<d) != 0 {
			out = append(out, d)
		}
	}
	return out
}
