package world

import (
	"errors"
	"testing"

	"gridswarm/internal/render"
	"gridswarm/internal/sim/grid"
	"gridswarm/internal/sim/rng"
)

func place(t *testing.T, w *World, x, y int, facing grid.Direction) EntityID {
	t.Helper()
	id, err := w.PlaceEntity(Entity{Location: w.LocationAt(x, y), Facing: facing})
	if err != nil {
		t.Fatalf("place (%d,%d): %v", x, y, err)
	}
	return id
}

func TestPlaceEntity_RejectsOccupiedWithoutSideEffects(t *testing.T) {
	w := New(8, 8)
	first := place(t, w, 3, 4, grid.North)

	_, err := w.PlaceEntity(Entity{Location: w.LocationAt(3, 4), Facing: grid.South})
	if !IsOccupied(err) {
		t.Fatalf("expected OccupiedError, got %v", err)
	}
	var oe *OccupiedError
	if !errors.As(err, &oe) || oe.Resident != first {
		t.Fatalf("resident: got %+v want %d", oe, first)
	}
	if w.Len() != 1 {
		t.Fatalf("len: got %d want 1", w.Len())
	}
	e, ok := w.EntityAt(w.LocationAt(3, 4))
	if !ok || e.ID != first || e.Facing != grid.North {
		t.Fatalf("resident changed: %+v", e)
	}
	if err := w.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestPlaceEntity_WrapsLocationIntoWorld(t *testing.T) {
	w := New(4, 4)
	other := grid.Dims{Width: 100, Height: 100}
	id, err := w.PlaceEntity(Entity{Location: other.At(6, 9)})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	e, _ := w.EntityByID(id)
	if e.Location != w.LocationAt(2, 1) {
		t.Fatalf("location: got %v want (2,1)", e.Location)
	}
}

func TestMoveEntity_UpdatesIndexLayer(t *testing.T) {
	w := New(10, 10)
	id := place(t, w, 9, 3, grid.East)

	to, err := w.MoveEntity(w.LocationAt(9, 3), grid.East)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if to != w.LocationAt(0, 3) {
		t.Fatalf("destination: got %v want (0,3)", to)
	}
	if w.IsOccupied(w.LocationAt(9, 3)) {
		t.Fatalf("source still occupied")
	}
	if r := w.Resident(to); r != id {
		t.Fatalf("resident at %v: got %d want %d", to, r, id)
	}
	e, _ := w.EntityByID(id)
	if e.Location != to {
		t.Fatalf("entity location: got %v want %v", e.Location, to)
	}
}

func TestMoveEntity_OccupiedDestination(t *testing.T) {
	w := New(5, 5)
	place(t, w, 1, 1, grid.East)
	place(t, w, 2, 1, grid.East)

	if _, err := w.MoveEntity(w.LocationAt(1, 1), grid.East); !IsOccupied(err) {
		t.Fatalf("expected OccupiedError, got %v", err)
	}
	if _, err := w.MoveEntity(w.LocationAt(4, 4), grid.East); !errors.Is(err, ErrNoEntity) {
		t.Fatalf("expected ErrNoEntity, got %v", err)
	}
	if err := w.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestRemoveEntity_ReusesID(t *testing.T) {
	w := New(6, 6)
	a := place(t, w, 0, 0, grid.North)
	b := place(t, w, 1, 0, grid.North)

	got, err := w.RemoveEntity(w.LocationAt(0, 0))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got.ID != a {
		t.Fatalf("removed id: got %d want %d", got.ID, a)
	}
	if _, ok := w.EntityByID(a); ok {
		t.Fatalf("removed entity still live")
	}

	c := place(t, w, 5, 5, grid.South)
	if c != a {
		t.Fatalf("expected freed id %d to be reused, got %d", a, c)
	}

	var ids []EntityID
	for id := range w.Entities() {
		ids = append(ids, id)
	}
	if len(ids) != 2 || ids[0] != a || ids[1] != b {
		t.Fatalf("iteration order: got %v", ids)
	}
	if err := w.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestCheckInvariants_DetectsCorruptIndex(t *testing.T) {
	w := New(4, 4)
	place(t, w, 1, 1, grid.North)
	w.cells.Set(w.LocationAt(2, 2), 0)

	if err := w.CheckInvariants(); err == nil {
		t.Fatalf("expected duplicate reference to be reported")
	}
}

func TestDetermineAction_Thresholds(t *testing.T) {
	e := Entity{Facing: grid.South}
	cases := []struct {
		samples []float64
		want    Action
	}{
		{[]float64{0.0, 0.3}, Turn(grid.East)},
		{[]float64{0.049, 0.99}, Turn(grid.Northwest)},
		{[]float64{0.05}, Move(grid.South)},
		{[]float64{0.949}, Move(grid.South)},
		{[]float64{0.95}, Wait()},
		{[]float64{0.999}, Wait()},
	}
	for _, tc := range cases {
		got := e.DetermineAction(&rng.Sequence{Values: tc.samples})
		if got != tc.want {
			t.Fatalf("samples %v: got %v want %v", tc.samples, got, tc.want)
		}
	}
}

func TestConflict_ArrivalSides(t *testing.T) {
	var c Conflict
	if !c.IsEmpty() || c.IsContested() {
		t.Fatalf("zero conflict should be empty")
	}

	c.AddFrom(grid.East)
	if got := c.Flags(); len(got) != 1 || got[0] != grid.West {
		t.Fatalf("flags after move east: got %v want [W]", got)
	}
	c.AddFrom(grid.East)
	if c.IsContested() {
		t.Fatalf("one side is not a contest")
	}

	c.AddFrom(grid.West)
	if !c.IsContested() || c.Count() != 2 {
		t.Fatalf("two sides should contest, count=%d", c.Count())
	}

	c.Reset()
	if !c.IsEmpty() {
		t.Fatalf("reset should clear flags")
	}
}

func TestPartition(t *testing.T) {
	cases := []struct {
		n, parts int
		want     []span
	}{
		{0, 4, []span{}},
		{3, 8, []span{{0, 1}, {1, 2}, {2, 3}}},
		{10, 3, []span{{0, 3}, {3, 6}, {6, 10}}},
		{5, 0, []span{{0, 5}}},
	}
	for _, tc := range cases {
		got := partition(tc.n, tc.parts)
		if len(got) != len(tc.want) {
			t.Fatalf("partition(%d,%d): got %v want %v", tc.n, tc.parts, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("partition(%d,%d): got %v want %v", tc.n, tc.parts, got, tc.want)
			}
		}
	}
}

type recordingCanvas struct {
	clears int
	pixels map[[2]uint]int
}

func (c *recordingCanvas) Clear(render.Color) { c.clears++ }

func (c *recordingCanvas) SetPixel(x, y uint, col render.Color) {
	if col != render.White {
		return
	}
	c.pixels[[2]uint{x, y}]++
}

func TestDraw_OnePixelPerEntity(t *testing.T) {
	w := New(16, 9)
	if _, err := Populate(w, 40, rng.NewBuffer(256, 7), 0); err != nil {
		t.Fatalf("populate: %v", err)
	}

	c := &recordingCanvas{pixels: map[[2]uint]int{}}
	w.Draw(c)
	if c.clears != 1 {
		t.Fatalf("clears: got %d want 1", c.clears)
	}
	if len(c.pixels) != w.Len() {
		t.Fatalf("pixels: got %d want %d", len(c.pixels), w.Len())
	}
	for _, e := range w.Entities() {
		if n := c.pixels[[2]uint{e.Location.X(), e.Location.Y()}]; n != 1 {
			t.Fatalf("entity %d at %v drawn %d times", e.ID, e.Location, n)
		}
	}
}

func TestPopulate(t *testing.T) {
	w := New(2, 2)
	n, err := Populate(w, 4, rng.NewBuffer(64, 1), 1000)
	if err != nil {
		t.Fatalf("populate: %v", err)
	}
	if n != 4 || w.Len() != 4 {
		t.Fatalf("placed %d, len %d, want 4", n, w.Len())
	}
	if err := w.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}

	if _, err := Populate(w, 1, rng.NewBuffer(64, 1), 10); err == nil {
		t.Fatalf("expected error when the grid is full")
	}
}

func TestPopulate_ExhaustsAttempts(t *testing.T) {
	w := New(2, 1)
	place(t, w, 0, 0, grid.North)

	// Every draw lands on (0,0).
	n, err := Populate(w, 1, &rng.Sequence{Values: []float64{0}}, 5)
	if !errors.Is(err, ErrPopulateExhausted) {
		t.Fatalf("expected ErrPopulateExhausted, got %v", err)
	}
	if n != 0 || w.Len() != 1 {
		t.Fatalf("placed %d, len %d", n, w.Len())
	}
}
