package world

import "gridswarm/internal/render"

// Draw clears c to black and sets one white pixel per live entity.
func (w *World) Draw(c render.Canvas) {
	c.Clear(render.Black)
	for _, e := range w.Entities() {
		c.SetPixel(e.Location.X(), e.Location.Y(), render.White)
	}
}
