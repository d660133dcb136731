// Package compositor paints the layer stack onto the destination surface.
package compositor

import (
	"image"
	"image/draw"
	"time"

	"github.com/ZacxDev/clipnship/internal/geometry"
	"github.com/ZacxDev/clipnship/internal/layer"
	"github.com/ZacxDev/clipnship/internal/surface"
	"golang.org/x/image/math/f64"

	xdraw "golang.org/x/image/draw"
)

// Observer is told about every drawn frame.
type Observer interface {
	FrameDrawn(took time.Duration)
}

// Compositor draws each layer's current source frame, scaled and filtered,
// onto the surface in paint order. Later layers cover earlier ones. The
// surface is not cleared between frames.
type Compositor struct {
	store    *layer.Store
	surface  *surface.Surface
	scaler   xdraw.Transformer
	observer Observer

	// scratch[i] is the filter raster for the i-th layer.
	scratch []image.RGBA
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithObserver reports frame timings to o.
func WithObserver(o Observer) Option {
	return func(c *Compositor) { c.observer = o }
}

// WithScaler overrides the resampling kernel.
func WithScaler(t xdraw.Transformer) Option {
	return func(c *Compositor) { c.scaler = t }
}

// New builds a compositor for store onto s.
func New(store *layer.Store, s *surface.Surface, opts ...Option) *Compositor {
	c := &Compositor{
		store:   store,
		surface: s,
		scaler:  xdraw.ApproxBiLinear,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DrawFrame paints one frame. It must run on the event loop.
func (c *Compositor) DrawFrame() {
	start := time.Now()
	n := c.store.Len()
	if len(c.scratch) < n {
		c.scratch = append(c.scratch, make([]image.RGBA, n-len(c.scratch))...)
	}
	for i := 0; i < n; i++ {
		c.drawLayer(i, c.store.At(i))
	}
	if c.observer != nil {
		c.observer.FrameDrawn(time.Since(start))
	}
}

func (c *Compositor) drawLayer(i int, l *layer.Layer) {
	if l.Source == nil {
		return
	}
	frame := l.Source.Frame()
	if frame == nil {
		return
	}
	sb := frame.Bounds()
	if sb.Empty() {
		return
	}

	dst := c.surface.Image()
	size := c.surface.Size()
	rect := geometry.Fit(sb.Dx(), sb.Dy(), l.Scale, size)
	if rect.Empty() {
		return
	}

	sx := rect.Width / float64(sb.Dx())
	sy := rect.Height / float64(sb.Dy())
	s2d := f64.Aff3{
		sx, 0, rect.OffsetX - float64(sb.Min.X)*sx,
		0, sy, rect.OffsetY - float64(sb.Min.Y)*sy,
	}

	chain := l.Chain()
	if chain.Empty() {
		c.scaler.Transform(dst, s2d, frame, sb, xdraw.Over, nil)
		return
	}

	// Render into a scratch raster covering the layer's visible area plus
	// the chain's bleed, filter it there, then blend it on. The bleed past
	// the canvas is capped at the canvas extent.
	margin := min(chain.Margin(), max(dst.Rect.Dx(), dst.Rect.Dy()))
	region := rect.Bounds().Inset(-margin).Intersect(dst.Rect.Inset(-margin))
	if region.Empty() {
		return
	}
	scratch := c.prepare(i, region)
	c.scaler.Transform(scratch, s2d, frame, sb, xdraw.Src, nil)
	chain.Apply(scratch)

	visible := region.Intersect(dst.Rect)
	draw.Draw(dst, visible, scratch, visible.Min, draw.Over)
}

// prepare resizes the i-th scratch raster to r, reusing its pixels when they
// fit, and clears it.
func (c *Compositor) prepare(i int, r image.Rectangle) *image.RGBA {
	s := &c.scratch[i]
	n := r.Dx() * r.Dy() * 4
	if cap(s.Pix) < n {
		s.Pix = make([]uint8, n)
	}
	s.Pix = s.Pix[:n]
	clear(s.Pix)
	s.Stride = r.Dx() * 4
	s.Rect = r
	return s
}
