package world

import (
	"encoding/json"

	"gridswarm/internal/observerproto"
	"gridswarm/internal/render"
)

// ObserverJoinRequest registers a read-only observer session that receives a
// FRAME message on Out every FrameEveryTicks ticks. Out is closed when the
// session leaves or the loop exits.
//
// All observer state is maintained by the loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	Out       chan []byte
}

func (p *Processor) ObserverJoin() chan<- ObserverJoinRequest { return p.observerJoin }
func (p *Processor) ObserverLeave() chan<- string              { return p.observerLeave }

func (p *Processor) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.Out == nil {
		return
	}
	if old := p.observers[req.SessionID]; old != nil {
		close(old)
	}
	p.observers[req.SessionID] = req.Out

	// New sessions get the latest frame right away instead of waiting a tick.
	if f := p.lastFrame.Load(); f != nil {
		if b, err := json.Marshal(f); err == nil {
			sendLatest(req.Out, b)
		}
	}
}

func (p *Processor) handleObserverLeave(sessionID string) {
	ch := p.observers[sessionID]
	if ch == nil {
		return
	}
	delete(p.observers, sessionID)
	close(ch)
}

func (p *Processor) closeObservers() {
	for id, ch := range p.observers {
		delete(p.observers, id)
		close(ch)
	}
}

// LatestFrame returns the most recently published frame, or nil before the
// first one. Safe to call from any goroutine.
func (p *Processor) LatestFrame() *observerproto.FrameMsg { return p.lastFrame.Load() }

func (p *Processor) publishFrame(nowTick uint64) {
	p.world.Draw(p.canvas)
	pts := p.canvas.Points()
	frame := &observerproto.FrameMsg{
		Type:            observerproto.TypeFrame,
		ProtocolVersion: observerproto.Version,
		WorldID:         p.cfg.ID,
		Tick:            nowTick,
		Width:           p.world.Width(),
		Height:          p.world.Height(),
		Points:          make([][2]uint, len(pts)),
	}
	for i, pt := range pts {
		frame.Points[i] = [2]uint{pt.X, pt.Y}
	}
	p.lastFrame.Store(frame)

	if len(p.observers) == 0 {
		return
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return
	}
	for _, ch := range p.observers {
		sendLatest(ch, b)
	}
}

// RenderFrame rasterizes f onto c: background first, then one pixel per point.
func RenderFrame(f *observerproto.FrameMsg, c render.Canvas) {
	c.Clear(render.Black)
	for _, pt := range f.Points {
		c.SetPixel(pt[0], pt[1], render.White)
	}
}

// sendLatest never blocks: if ch is full the oldest queued message is dropped.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
