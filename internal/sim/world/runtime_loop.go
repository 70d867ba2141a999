package world

import (
	"context"
	"time"
)

// Run steps the world until ctx is cancelled, Stop is called, or a step fails.
// Ticks are paced at TickRateHz; without a rate they run back to back while
// still servicing observer joins and leaves between ticks.
func (p *Processor) Run(ctx context.Context) error {
	var tickC <-chan time.Time
	if every := tickInterval(p.cfg.TickRateHz); every > 0 {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		tickC = ticker.C
	} else {
		ready := make(chan time.Time)
		close(ready)
		tickC = ready
	}
	defer p.closeObservers()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			return nil
		case req := <-p.observerJoin:
			p.handleObserverJoin(req)
		case id := <-p.observerLeave:
			p.handleObserverLeave(id)
		case <-tickC:
			if _, err := p.Step(); err != nil {
				if p.logger != nil {
					p.logger.Printf("world %s stopped: %v", p.cfg.ID, err)
				}
				return err
			}
		}
	}
}

// tickInterval is the pacing period for hz, or 0 for unpaced. Rates above
// 1e9 Hz would truncate to a zero period, which NewTicker rejects.
func tickInterval(hz int) time.Duration {
	if hz <= 0 {
		return 0
	}
	return max(time.Second/time.Duration(hz), time.Nanosecond)
}

// Stop makes Run return nil. Safe to call more than once.
func (p *Processor) Stop() { p.stopOnce.Do(func() { close(p.stop) }) }

// StepOnce advances the world by a single tick and returns the tick number
// that was processed together with the post-tick state digest.
// It is primarily intended for deterministic replays/tests.
func (p *Processor) StepOnce() (tick uint64, digest string, err error) {
	tick = p.tick.Load()
	if _, err = p.Step(); err != nil {
		return tick, "", err
	}
	return tick, p.stateDigest(tick), nil
}
