package world

import (
	"time"
)

// rateWindowTicks is the number of recent ticks the rate is averaged over.
const rateWindowTicks = 32

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick     uint64 `json:"tick"`
	Entities int    `json:"entities"`

	Observers int `json:"observers"`

	StepMS      float64 `json:"step_ms"`
	TicksPerSec float64 `json:"ticks_per_sec"`

	LastTick StepStats `json:"last_tick"`

	MovedTotal   uint64 `json:"moved_total"`
	BlockedTotal uint64 `json:"blocked_total"`
	WaitedTotal  uint64 `json:"waited_total"`
	TurnedTotal  uint64 `json:"turned_total"`
}

// tickRate keeps the start times of the last rateWindowTicks ticks in a ring.
type tickRate struct {
	stamps [rateWindowTicks]time.Time
	next   int
	filled int

	moved, blocked, waited, turned uint64
}

func (r *tickRate) observe(at time.Time) float64 {
	r.stamps[r.next] = at
	r.next = (r.next + 1) % rateWindowTicks
	if r.filled < rateWindowTicks {
		r.filled++
	}
	if r.filled < 2 {
		return 0
	}
	oldest := r.stamps[(r.next-r.filled+rateWindowTicks)%rateWindowTicks]
	span := at.Sub(oldest)
	if span <= 0 {
		return 0
	}
	return float64(r.filled-1) / span.Seconds()
}

func (p *Processor) recordMetrics(start time.Time, s StepStats) {
	r := &p.rate
	rate := r.observe(start)
	r.moved += uint64(s.Moved)
	r.blocked += uint64(s.Blocked)
	r.waited += uint64(s.Waited)
	r.turned += uint64(s.Turned)

	stepMS := float64(s.Duration.Microseconds()) / 1000.0
	p.metrics.Store(WorldMetrics{
		Tick:         s.Tick + 1,
		Entities:     s.Entities,
		Observers:    len(p.observers),
		StepMS:       stepMS,
		TicksPerSec:  rate,
		LastTick:     s,
		MovedTotal:   r.moved,
		BlockedTotal: r.blocked,
		WaitedTotal:  r.waited,
		TurnedTotal:  r.turned,
	})

	if p.logger != nil && (s.Tick+1)%uint64(p.cfg.ReportEveryTicks) == 0 {
		p.logger.Printf("world %s tick=%d entities=%d rate=%.1f/s step=%.2fms moved=%d blocked=%d waited=%d turned=%d",
			p.cfg.ID, s.Tick, s.Entities, rate, stepMS, s.Moved, s.Blocked, s.Waited, s.Turned)
	}
}

func (p *Processor) Metrics() WorldMetrics {
	if p == nil {
		return WorldMetrics{}
	}
	v := p.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
