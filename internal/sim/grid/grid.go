package grid

// Grid is a dense row-major store with one value per cell.
// It does no locking; callers decide which cells each goroutine may touch.
type Grid[T any] struct {
	dims  Dims
	cells []T
}

// New allocates a grid and initializes every cell with fill (zero values if nil).
func New[T any](width, height int, fill func() T) *Grid[T] {
	if width <= 0 {
		width = 1
	}
	if height <= 0 {
		height = 1
	}
	g := &Grid[T]{
		dims:  Dims{Width: width, Height: height},
		cells: make([]T, width*height),
	}
	if fill != nil {
		g.Fill(fill)
	}
	return g
}

func (g *Grid[T]) Dims() Dims { return g.dims }
func (g *Grid[T]) Len() int   { return len(g.cells) }

func (g *Grid[T]) Get(l Location) T { return g.cells[l.index] }

// Ptr exposes the cell in place. Used for values that must not be copied
// (e.g. atomics).
func (g *Grid[T]) Ptr(l Location) *T { return &g.cells[l.index] }

func (g *Grid[T]) Set(l Location, v T) { g.cells[l.index] = v }

// Replace stores v and returns the previous value.
func (g *Grid[T]) Replace(l Location, v T) T {
	old := g.cells[l.index]
	g.cells[l.index] = v
	return old
}

func (g *Grid[T]) Fill(fn func() T) {
	for i := range g.cells {
		g.cells[i] = fn()
	}
}

func (g *Grid[T]) At(x, y int) Location { return g.dims.At(x, y) }

func (g *Grid[T]) Add(l Location, d Direction) Location { return g.dims.Add(l, d) }
