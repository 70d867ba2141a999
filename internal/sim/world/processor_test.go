package world

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gridswarm/internal/observerproto"
	"gridswarm/internal/sim/grid"
	"gridswarm/internal/sim/rng"
)

// alwaysMove scripts every entity to continue in its facing direction.
func alwaysMove() []rng.Source {
	return []rng.Source{&rng.Sequence{Values: []float64{0.5}}}
}

func newScripted(w *World, samples ...float64) *Processor {
	return NewProcessor(w, ProcessorConfig{
		ID:               "test",
		Sources:          []rng.Source{&rng.Sequence{Values: samples}},
		VerifyInvariants: true,
	})
}

func step(t *testing.T, p *Processor) StepStats {
	t.Helper()
	s, err := p.Step()
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	return s
}

func at(t *testing.T, w *World, id EntityID) (uint, uint) {
	t.Helper()
	e, ok := w.EntityByID(id)
	if !ok {
		t.Fatalf("entity %d missing", id)
	}
	return e.Location.X(), e.Location.Y()
}

func assertScratchClear(t *testing.T, p *Processor) {
	t.Helper()
	d := p.world.Dims()
	for y := 0; y < d.Height; y++ {
		for x := 0; x < d.Width; x++ {
			l := d.At(x, y)
			if a := p.actions.Get(l); !a.IsNone() {
				t.Fatalf("action at %v not cleared: %v", l, a)
			}
			if o := p.outcomes.Get(l); !o.IsNone() {
				t.Fatalf("outcome at %v not cleared: %v", l, o)
			}
			if c := p.conflicts.Ptr(l); !c.IsEmpty() {
				t.Fatalf("conflict at %v not cleared: %v", l, c.Flags())
			}
		}
	}
}

func TestStep_SymmetricContestBlocksBoth(t *testing.T) {
	w := New(10, 10)
	a := place(t, w, 5, 5, grid.East)
	b := place(t, w, 7, 5, grid.West)
	p := NewProcessor(w, ProcessorConfig{Sources: alwaysMove(), VerifyInvariants: true})

	s := step(t, p)
	if s.Blocked != 2 || s.Moved != 0 {
		t.Fatalf("stats: %+v", s)
	}
	if x, y := at(t, w, a); x != 5 || y != 5 {
		t.Fatalf("a moved to (%d,%d)", x, y)
	}
	if x, y := at(t, w, b); x != 7 || y != 5 {
		t.Fatalf("b moved to (%d,%d)", x, y)
	}
	if w.IsOccupied(w.LocationAt(6, 5)) {
		t.Fatalf("contested cell was taken")
	}
	assertScratchClear(t, p)
}

func TestStep_DiagonalContestBlocksAll(t *testing.T) {
	w := New(9, 9)
	ids := []EntityID{
		place(t, w, 3, 3, grid.Southeast),
		place(t, w, 5, 3, grid.Southwest),
		place(t, w, 4, 5, grid.North),
	}
	p := NewProcessor(w, ProcessorConfig{Sources: alwaysMove()})

	s := step(t, p)
	if s.Blocked != 3 {
		t.Fatalf("stats: %+v", s)
	}
	for _, id := range ids {
		e, _ := w.EntityByID(id)
		if e.Location == w.LocationAt(4, 4) {
			t.Fatalf("entity %d entered the contested cell", id)
		}
	}
}

func TestStep_MoveWrapsAroundEdge(t *testing.T) {
	w := New(10, 10)
	id := place(t, w, 9, 3, grid.East)
	p := NewProcessor(w, ProcessorConfig{Sources: alwaysMove()})

	if s := step(t, p); s.Moved != 1 {
		t.Fatalf("stats: %+v", s)
	}
	if x, y := at(t, w, id); x != 0 || y != 3 {
		t.Fatalf("got (%d,%d) want (0,3)", x, y)
	}

	corner := place(t, w, 0, 0, grid.Northwest)
	step(t, p)
	if x, y := at(t, w, corner); x != 9 || y != 9 {
		t.Fatalf("corner got (%d,%d) want (9,9)", x, y)
	}
}

func TestStep_OccupiedTargetBlocksEvenIfResidentLeaves(t *testing.T) {
	w := New(6, 6)
	a := place(t, w, 1, 1, grid.East)
	b := place(t, w, 2, 1, grid.North)
	p := NewProcessor(w, ProcessorConfig{Sources: alwaysMove(), VerifyInvariants: true})

	s := step(t, p)
	if s.Moved != 1 || s.Blocked != 1 {
		t.Fatalf("stats: %+v", s)
	}
	if x, y := at(t, w, a); x != 1 || y != 1 {
		t.Fatalf("a got (%d,%d) want (1,1)", x, y)
	}
	if x, y := at(t, w, b); x != 2 || y != 0 {
		t.Fatalf("b got (%d,%d) want (2,0)", x, y)
	}
}

func TestStep_SingleColumnSelfTargetMoves(t *testing.T) {
	w := New(1, 3)
	id := place(t, w, 0, 1, grid.East)
	p := NewProcessor(w, ProcessorConfig{Sources: alwaysMove(), VerifyInvariants: true})

	if s := step(t, p); s.Moved != 1 {
		t.Fatalf("stats: %+v", s)
	}
	if x, y := at(t, w, id); x != 0 || y != 1 {
		t.Fatalf("got (%d,%d) want (0,1)", x, y)
	}
}

func TestStep_TurnNeverBlocks(t *testing.T) {
	w := New(3, 3)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			place(t, w, x, y, grid.North)
		}
	}
	// 0.01 -> turn, 0.3 -> East.
	p := newScripted(w, 0.01, 0.3)

	s := step(t, p)
	if s.Turned != 9 || s.Blocked != 0 {
		t.Fatalf("stats: %+v", s)
	}
	for _, e := range w.Entities() {
		if e.Facing != grid.East {
			t.Fatalf("entity %d facing %v want E", e.ID, e.Facing)
		}
	}
}

func TestStep_WaitKeepsState(t *testing.T) {
	w := New(4, 4)
	id := place(t, w, 2, 2, grid.South)
	p := newScripted(w, 0.97)

	if s := step(t, p); s.Waited != 1 {
		t.Fatalf("stats: %+v", s)
	}
	e, _ := w.EntityByID(id)
	if e.Location != w.LocationAt(2, 2) || e.Facing != grid.South {
		t.Fatalf("entity changed: %+v", e)
	}
}

func TestStep_ConservesEntitiesAcrossWorkers(t *testing.T) {
	for _, workers := range []int{1, 3, 8} {
		w := New(64, 48)
		if _, err := Populate(w, 1200, rng.NewBuffer(4096, 11), 0); err != nil {
			t.Fatalf("populate: %v", err)
		}
		p := NewProcessor(w, ProcessorConfig{Workers: workers, Seed: 99, RNGBufferSize: 4096, VerifyInvariants: true})

		for i := 0; i < 60; i++ {
			s := step(t, p)
			if got := s.Moved + s.Blocked + s.Waited + s.Turned; got != 1200 {
				t.Fatalf("workers=%d tick %d: outcomes %d want 1200", workers, i, got)
			}
			if w.Len() != 1200 {
				t.Fatalf("workers=%d tick %d: len %d", workers, i, w.Len())
			}
		}
		if err := w.CheckInvariants(); err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		assertScratchClear(t, p)
		if p.CurrentTick() != 60 {
			t.Fatalf("tick: got %d want 60", p.CurrentTick())
		}
	}
}

func TestStep_DeterministicForSeedAndWorkers(t *testing.T) {
	build := func() *Processor {
		w := New(40, 30)
		if _, err := Populate(w, 500, rng.NewBuffer(2048, 5), 0); err != nil {
			t.Fatalf("populate: %v", err)
		}
		return NewProcessor(w, ProcessorConfig{Workers: 4, Seed: 42, RNGBufferSize: 2048})
	}
	p1, p2 := build(), build()

	for i := 0; i < 40; i++ {
		t1, d1, err := p1.StepOnce()
		if err != nil {
			t.Fatalf("p1: %v", err)
		}
		t2, d2, err := p2.StepOnce()
		if err != nil {
			t.Fatalf("p2: %v", err)
		}
		if t1 != t2 || d1 != d2 {
			t.Fatalf("digest mismatch at tick %d: %s vs %s", t1, d1, d2)
		}
	}
}

func TestStep_CorruptIndexIsInvariantError(t *testing.T) {
	w := New(5, 5)
	place(t, w, 1, 1, grid.North)
	p := NewProcessor(w, ProcessorConfig{Sources: alwaysMove()})

	w.cells.Set(w.LocationAt(1, 1), NoEntity)

	_, err := p.Step()
	var ie *InvariantError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InvariantError, got %v", err)
	}
	if ie.Phase != "determine" || ie.Location != w.LocationAt(1, 1) {
		t.Fatalf("unexpected error detail: %+v", ie)
	}
	if p.CurrentTick() != 0 {
		t.Fatalf("tick advanced past a failed step")
	}
}

type memTickLog struct{ entries []TickLogEntry }

func (m *memTickLog) WriteTick(e TickLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func TestStep_WritesTickLogAndMetrics(t *testing.T) {
	w := New(10, 10)
	place(t, w, 0, 0, grid.East)
	place(t, w, 5, 5, grid.South)
	p := NewProcessor(w, ProcessorConfig{Sources: alwaysMove()})
	tl := &memTickLog{}
	p.SetTickLogger(tl)

	for i := 0; i < 3; i++ {
		step(t, p)
	}
	if len(tl.entries) != 3 {
		t.Fatalf("entries: got %d want 3", len(tl.entries))
	}
	last := tl.entries[2]
	if last.Tick != 2 || last.Moved != 2 || last.Digest != p.stateDigest(2) {
		t.Fatalf("last entry: %+v", last)
	}

	m := p.Metrics()
	if m.Tick != 3 || m.Entities != 2 || m.MovedTotal != 6 {
		t.Fatalf("metrics: %+v", m)
	}
}

func TestObserver_ReceivesFrames(t *testing.T) {
	w := New(8, 8)
	place(t, w, 1, 2, grid.East)
	place(t, w, 6, 6, grid.South)
	p := NewProcessor(w, ProcessorConfig{ID: "obs", Sources: []rng.Source{&rng.Sequence{Values: []float64{0.99}}}})

	out := make(chan []byte, 1)
	p.handleObserverJoin(ObserverJoinRequest{SessionID: "s1", Out: out})
	step(t, p)

	var f observerproto.FrameMsg
	if err := json.Unmarshal(<-out, &f); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if f.Type != observerproto.TypeFrame || f.WorldID != "obs" || f.Tick != 0 {
		t.Fatalf("frame header: %+v", f)
	}
	if f.Width != 8 || f.Height != 8 || len(f.Points) != 2 {
		t.Fatalf("frame body: %+v", f)
	}
	if p.LatestFrame() == nil || p.LatestFrame().Tick != 0 {
		t.Fatalf("latest frame not stored")
	}

	// A full channel keeps only the newest frame.
	step(t, p)
	step(t, p)
	if err := json.Unmarshal(<-out, &f); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if f.Tick != 2 {
		t.Fatalf("expected newest frame, got tick %d", f.Tick)
	}

	p.handleObserverLeave("s1")
	if _, ok := <-out; ok {
		t.Fatalf("channel should be closed after leave")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	w := New(20, 20)
	if _, err := Populate(w, 50, rng.NewBuffer(512, 3), 0); err != nil {
		t.Fatalf("populate: %v", err)
	}
	p := NewProcessor(w, ProcessorConfig{Workers: 2, Seed: 1, RNGBufferSize: 512})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run: %v", err)
	}
	if p.CurrentTick() == 0 {
		t.Fatalf("no ticks ran")
	}
	if err := w.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestRun_Stop(t *testing.T) {
	p := NewProcessor(New(4, 4), ProcessorConfig{TickRateHz: 100})
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	p.Stop()
	p.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func TestRun_ExtremeTickRateDoesNotPanic(t *testing.T) {
	for hz, want := range map[int]time.Duration{0: 0, -5: 0, 60: time.Second / 60, 2_000_000_000: time.Nanosecond} {
		if got := tickInterval(hz); got != want {
			t.Fatalf("tickInterval(%d)=%v want %v", hz, got, want)
		}
	}

	p := NewProcessor(New(4, 4), ProcessorConfig{TickRateHz: 2_000_000_000})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run: %v", err)
	}
}
