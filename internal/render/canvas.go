package render

import (
	"image"
	"image/color"
	"image/png"
	"io"
)

// Color is a straight (non-premultiplied) RGBA value.
type Color struct {
	R, G, B, A uint8
}

var (
	Black = Color{0, 0, 0, 255}
	White = Color{255, 255, 255, 255}
)

// Canvas is the only capability the simulation needs from a renderer.
type Canvas interface {
	Clear(c Color)
	SetPixel(x, y uint, c Color)
}

// Point is a single drawn pixel.
type Point struct {
	X, Y  uint
	Color Color
}

// PointCanvas records drawn pixels instead of rasterizing them.
// Frames sent to observers are built from it.
type PointCanvas struct {
	Background Color
	points     []Point
}

func NewPointCanvas(capacity int) *PointCanvas {
	return &PointCanvas{points: make([]Point, 0, capacity)}
}

func (p *PointCanvas) Clear(c Color) {
	p.Background = c
	p.points = p.points[:0]
}

func (p *PointCanvas) SetPixel(x, y uint, c Color) {
	p.points = append(p.points, Point{X: x, Y: y, Color: c})
}

func (p *PointCanvas) Points() []Point { return p.points }

// ImageCanvas rasterizes into an in-memory RGBA image.
type ImageCanvas struct {
	img *image.RGBA
}

func NewImageCanvas(width, height int) *ImageCanvas {
	return &ImageCanvas{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

func (c *ImageCanvas) Clear(col Color) {
	rgba := toRGBA(col)
	b := c.img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c.img.SetRGBA(x, y, rgba)
		}
	}
}

func (c *ImageCanvas) SetPixel(x, y uint, col Color) {
	c.img.SetRGBA(int(x), int(y), toRGBA(col))
}

func (c *ImageCanvas) EncodePNG(w io.Writer) error {
	return png.Encode(w, c.img)
}

func toRGBA(c Color) color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: c.A}
}
