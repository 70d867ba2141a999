package grid

import "fmt"

// Dims are the fixed dimensions of a toroidal grid.
type Dims struct {
	Width  int
	Height int
}

// Location identifies a single cell. It is only produced by Dims.At/Dims.Add,
// so x < Width, y < Height and index == x + Width*y always hold.
type Location struct {
	x, y  uint
	index uint
}

func (l Location) X() uint     { return l.x }
func (l Location) Y() uint     { return l.y }
func (l Location) Index() uint { return l.index }

func (l Location) String() string {
	return fmt.Sprintf("(%d,%d)", l.x, l.y)
}

// Cells returns Width*Height.
func (d Dims) Cells() int { return d.Width * d.Height }

// At wraps (x, y) onto the torus. Any input is valid, including negatives.
func (d Dims) At(x, y int) Location {
	wx := wrap(x, d.Width)
	wy := wrap(y, d.Height)
	return Location{
		x:     uint(wx),
		y:     uint(wy),
		index: uint(wx + d.Width*wy),
	}
}

// Add steps one cell from l in direction dir, wrapping at the edges.
func (d Dims) Add(l Location, dir Direction) Location {
	dx, dy := dir.Delta()
	// Both coordinates are already < Width/Height, so adding the dimension
	// first keeps the intermediate value non-negative.
	return d.At(int(l.x)+d.Width+dx, int(l.y)+d.Height+dy)
}

func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}
