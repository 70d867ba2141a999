package world

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"gridswarm/internal/observerproto"
	"gridswarm/internal/render"
	"gridswarm/internal/sim/grid"
	"gridswarm/internal/sim/rng"
)

// Processor advances a World one tick at a time.
//
// A tick runs five phases separated by full barriers:
//
//	determine actions -> flag conflicts -> resolve outcomes -> apply outcomes -> cleanup
//
// Phases 1-3 and 5 fan out over contiguous slices of the occupied locations
// snapshotted at the start of the tick. Apply runs on the calling goroutine.
// The World and scratch grids must only be touched from the goroutine that
// calls Step (Run's loop goroutine when running).
type Processor struct {
	cfg   ProcessorConfig
	world *World

	actions   *grid.Grid[Action]
	conflicts *grid.Grid[Conflict]
	outcomes  *grid.Grid[Outcome]
	sources   []rng.Source

	// Per-tick snapshot, reused across ticks.
	active    []grid.Location
	activeIDs []EntityID
	nowTick   uint64

	tick atomic.Uint64

	logger     *log.Logger
	tickLogger TickLogger

	observers     map[string]chan []byte
	observerJoin  chan ObserverJoinRequest
	observerLeave chan string
	canvas        *render.PointCanvas
	lastFrame     atomic.Pointer[observerproto.FrameMsg]

	stop     chan struct{}
	stopOnce sync.Once

	rate    tickRate
	metrics atomic.Value
}

// StepStats summarizes one tick.
type StepStats struct {
	Tick     uint64        `json:"tick"`
	Entities int           `json:"entities"`
	Moved    int           `json:"moved"`
	Blocked  int           `json:"blocked"`
	Waited   int           `json:"waited"`
	Turned   int           `json:"turned"`
	Duration time.Duration `json:"duration"`
}

func NewProcessor(w *World, cfg ProcessorConfig) *Processor {
	cfg.applyDefaults()
	d := w.Dims()

	sources := cfg.Sources
	if len(sources) == 0 {
		bufs := rng.NewBuffers(cfg.Workers, cfg.RNGBufferSize, cfg.Seed)
		sources = make([]rng.Source, len(bufs))
		for i, b := range bufs {
			sources[i] = b
		}
	}

	p := &Processor{
		cfg:           cfg,
		world:         w,
		actions:       grid.New[Action](d.Width, d.Height, nil),
		conflicts:     grid.New[Conflict](d.Width, d.Height, nil),
		outcomes:      grid.New[Outcome](d.Width, d.Height, nil),
		sources:       sources,
		observers:     map[string]chan []byte{},
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerLeave: make(chan string, 16),
		canvas:        render.NewPointCanvas(w.Len()),
		stop:          make(chan struct{}),
	}
	p.metrics.Store(WorldMetrics{Entities: w.Len()})
	return p
}

func (p *Processor) World() *World              { return p.world }
func (p *Processor) Config() ProcessorConfig    { return p.cfg }
func (p *Processor) CurrentTick() uint64        { return p.tick.Load() }
func (p *Processor) SetLogger(l *log.Logger)    { p.logger = l }
func (p *Processor) SetTickLogger(l TickLogger) { p.tickLogger = l }

// Step advances the world by a single tick: the phase pipeline, then tick
// logging, metrics and observer frames. It returns an *InvariantError if the
// pipeline detected a broken invariant; the world must not be stepped again
// after that.
func (p *Processor) Step() (StepStats, error) {
	start := time.Now()
	nowTick := p.tick.Load()

	stats, err := p.pipeline(nowTick)
	stats.Duration = time.Since(start)
	if err != nil {
		return stats, err
	}

	digest := ""
	if p.tickLogger != nil {
		digest = p.stateDigest(nowTick)
		if err := p.tickLogger.WriteTick(newTickLogEntry(stats, digest)); err != nil && p.logger != nil {
			p.logger.Printf("tick log: %v", err)
		}
	}

	if nowTick%uint64(p.cfg.FrameEveryTicks) == 0 {
		p.publishFrame(nowTick)
	}
	p.recordMetrics(start, stats)

	p.tick.Add(1)
	return stats, nil
}

func (p *Processor) pipeline(nowTick uint64) (StepStats, error) {
	p.nowTick = nowTick
	p.snapshotActive()
	spans := partition(len(p.active), len(p.sources))

	stats := StepStats{Tick: nowTick, Entities: len(p.active)}

	if err := p.runPhase(spans, p.determineActions); err != nil {
		return stats, err
	}
	if err := p.runPhase(spans, p.flagConflicts); err != nil {
		return stats, err
	}
	if err := p.runPhase(spans, p.resolveOutcomes); err != nil {
		return stats, err
	}
	applyErr := p.applyOutcomes(&stats)
	if err := p.runPhase(spans, p.cleanup); err != nil {
		return stats, err
	}
	if applyErr != nil {
		return stats, applyErr
	}
	if p.cfg.VerifyInvariants {
		if err := p.world.CheckInvariants(); err != nil {
			return stats, p.invariant("verify", grid.Location{}, err)
		}
	}
	return stats, nil
}

func (p *Processor) snapshotActive() {
	p.active = p.active[:0]
	p.activeIDs = p.activeIDs[:0]
	for id, e := range p.world.Entities() {
		p.active = append(p.active, e.Location)
		p.activeIDs = append(p.activeIDs, id)
	}
}

// runPhase forks one goroutine per span and waits for all of them; Wait is
// the barrier between phases.
func (p *Processor) runPhase(spans []span, fn func(worker int, s span) error) error {
	switch len(spans) {
	case 0:
		return nil
	case 1:
		return fn(0, spans[0])
	}
	var g errgroup.Group
	for i, s := range spans {
		g.Go(func() error { return fn(i, s) })
	}
	return g.Wait()
}

func (p *Processor) invariant(phase string, at grid.Location, err error) *InvariantError {
	return &InvariantError{Tick: p.nowTick, Phase: phase, Location: at, Err: err}
}
