package world

import (
	"errors"
	"fmt"

	"gridswarm/internal/sim/grid"
)

var (
	errEntityMoved    = errors.New("entity is not at its snapshotted location")
	errMissingAction  = errors.New("no action recorded for active location")
	errMissingOutcome = errors.New("no outcome recorded for active location")
)

// Phase 1. Each worker writes only the action cells of its own span and
// draws from its own RNG stream.
func (p *Processor) determineActions(worker int, s span) error {
	src := p.sources[worker]
	for i := s.lo; i < s.hi; i++ {
		loc := p.active[i]
		e, ok := p.world.EntityAt(loc)
		if !ok || e.ID != p.activeIDs[i] {
			return p.invariant("determine", loc, errEntityMoved)
		}
		p.actions.Set(loc, e.DetermineAction(src))
	}
	return nil
}

// Phase 2. Target cells are shared between workers; Conflict.AddFrom is an
// atomic OR so concurrent claims on the same cell are safe.
func (p *Processor) flagConflicts(_ int, s span) error {
	for i := s.lo; i < s.hi; i++ {
		loc := p.active[i]
		a := p.actions.Get(loc)
		if a.IsNone() {
			return p.invariant("flag", loc, errMissingAction)
		}
		if d, ok := a.ClaimDirection(); ok {
			p.conflicts.Ptr(p.world.Add(loc, d)).AddFrom(d)
		}
	}
	return nil
}

// Phase 3. Read-only against actions, conflicts and the World; writes only
// the outcome cells of its own span.
func (p *Processor) resolveOutcomes(_ int, s span) error {
	for i := s.lo; i < s.hi; i++ {
		loc := p.active[i]
		o, err := p.resolve(loc, p.activeIDs[i], p.actions.Get(loc))
		if err != nil {
			return p.invariant("resolve", loc, err)
		}
		p.outcomes.Set(loc, o)
	}
	return nil
}

func (p *Processor) resolve(loc grid.Location, id EntityID, a Action) (Outcome, error) {
	switch a.Kind {
	case ActionWait:
		return WaitOutcome(), nil
	case ActionTurn:
		return TurnOutcome(a.Dir), nil
	case ActionMove:
		target := p.world.Add(loc, a.Dir)
		if p.conflicts.Ptr(target).IsContested() {
			// No winner: every contender is blocked.
			return Blocked(), nil
		}
		// The only resident allowed at the target is the mover itself, which
		// happens when the grid is one cell across in the direction of travel.
		if r := p.world.Resident(target); r != NoEntity && r != id {
			return Blocked(), nil
		}
		return MoveOutcome(a.Dir), nil
	default:
		return Outcome{}, errMissingAction
	}
}

// Phase 4. Mutates the shared World, so it runs on a single goroutine in
// snapshot order. Every move target was empty and uncontested before the
// tick, so no two movers can meet here; any failure is an invariant breach.
func (p *Processor) applyOutcomes(stats *StepStats) error {
	for i, loc := range p.active {
		if r := p.world.Resident(loc); r != p.activeIDs[i] {
			return p.invariant("apply", loc, fmt.Errorf("%w: want %d, cell holds %d", errEntityMoved, p.activeIDs[i], r))
		}
		o := p.outcomes.Get(loc)
		switch o.Kind {
		case OutcomeBlocked:
			stats.Blocked++
		case OutcomeWait:
			stats.Waited++
		case OutcomeMove:
			if _, err := p.world.MoveEntity(loc, o.Dir); err != nil {
				return p.invariant("apply", loc, err)
			}
			stats.Moved++
		case OutcomeTurn:
			if err := p.world.SetFacing(loc, o.Dir); err != nil {
				return p.invariant("apply", loc, err)
			}
			stats.Turned++
		default:
			return p.invariant("apply", loc, errMissingOutcome)
		}
	}
	return nil
}

// Phase 5. Clears exactly the cells written this tick: the action and outcome
// at each source and the conflict at each move target. Sources are disjoint
// per worker; targets may be shared but Reset is an atomic store.
func (p *Processor) cleanup(_ int, s span) error {
	for i := s.lo; i < s.hi; i++ {
		loc := p.active[i]
		if d, ok := p.actions.Get(loc).ClaimDirection(); ok {
			p.conflicts.Ptr(p.world.Add(loc, d)).Reset()
		}
		p.actions.Set(loc, Action{})
		p.outcomes.Set(loc, Outcome{})
	}
	return nil
}
