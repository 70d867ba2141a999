package world

import (
	"runtime"

	"gridswarm/internal/sim/rng"
)

type ProcessorConfig struct {
	ID string

	// Workers is the number of slices each phase is split into.
	Workers int
	// TickRateHz paces Run. Zero or negative runs ticks back to back.
	TickRateHz int

	Seed          uint64
	RNGBufferSize int
	// Sources overrides the per-worker RNG buffers (one per worker).
	// Tests use it to script entity decisions.
	Sources []rng.Source

	// Operational parameters.
	FrameEveryTicks  int
	ReportEveryTicks int
	// VerifyInvariants runs World.CheckInvariants after every apply phase.
	VerifyInvariants bool
}

func (c *ProcessorConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if len(c.Sources) > 0 {
		c.Workers = len(c.Sources)
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.RNGBufferSize <= 0 {
		c.RNGBufferSize = rng.DefaultCapacity
	}
	if c.FrameEveryTicks <= 0 {
		c.FrameEveryTicks = 1
	}
	if c.ReportEveryTicks <= 0 {
		c.ReportEveryTicks = 32
	}
}
