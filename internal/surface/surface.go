// Package surface holds the destination raster the compositor paints into
// and the scaled previews read from it.
package surface

import (
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/ZacxDev/clipnship/internal/geometry"
	"github.com/ZacxDev/clipnship/internal/units"
	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"
)

// Default canvas dimensions, a 9:16 portrait frame.
const (
	DefaultWidth  = 1080
	DefaultHeight = 1920
)

// DefaultPreviewWidth is used when a preview is requested without a width.
const DefaultPreviewWidth = "500px"

// Surface is the fixed-size destination raster.
type Surface struct {
	img   *image.RGBA
	guard func(func()) error
}

// Option configures a Surface.
type Option func(*Surface)

// WithGuard routes preview reads through run, typically an event loop's Do,
// so they never observe a half-drawn frame.
func WithGuard(run func(func()) error) Option {
	return func(s *Surface) { s.guard = run }
}

// New allocates a transparent surface of the given size.
func New(size geometry.Size, opts ...Option) (*Surface, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, errors.Errorf("invalid surface size %dx%d", size.Width, size.Height)
	}
	s := &Surface{img: image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Size of the surface in pixels.
func (s *Surface) Size() geometry.Size {
	b := s.img.Bounds()
	return geometry.Size{Width: b.Dx(), Height: b.Dy()}
}

// Image is the live raster. It changes on every drawn frame.
func (s *Surface) Image() *image.RGBA {
	return s.img
}

// Snapshot copies the current contents into dst, reallocating dst if its
// size does not match, and returns it.
func (s *Surface) Snapshot(dst *image.RGBA) *image.RGBA {
	if dst == nil || dst.Rect != s.img.Rect {
		dst = image.NewRGBA(s.img.Rect)
	}
	copy(dst.Pix, s.img.Pix)
	return dst
}

// Clear resets every pixel to transparent.
func (s *Surface) Clear() {
	clear(s.img.Pix)
}

// Preview is a display-sized view of the surface. Its width is derived from
// a CSS-style spec and its height keeps the surface's aspect ratio.
type Preview struct {
	surface *Surface
	width   int
	height  int
}

// Preview sizes a view of s. widthSpec accepts an absolute length
// ("320px", "3in"), a percentage of the canvas width ("50%"), or "" for
// DefaultPreviewWidth.
func (s *Surface) Preview(widthSpec string) (*Preview, error) {
	w, err := PreviewWidth(widthSpec, s.Size().Width)
	if err != nil {
		return nil, err
	}
	size := s.Size()
	h := int(float64(w)*float64(size.Height)/float64(size.Width) + 0.5)
	if h < 1 {
		h = 1
	}
	return &Preview{surface: s, width: w, height: h}, nil
}

// PreviewWidth resolves a preview width spec against the canvas width.
func PreviewWidth(spec string, canvasWidth int) (int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultPreviewWidth
	}

	var px float64
	if pct, ok := units.ParsePercentage(spec); ok {
		px = pct * float64(canvasWidth)
	} else {
		v, err := units.ParseLength(spec)
		if err != nil {
			return 0, errors.Wrap(err, "invalid preview width")
		}
		px = v
	}
	w := int(px + 0.5)
	if w <= 0 {
		return 0, errors.Errorf("preview width %q resolves to %d pixels", spec, w)
	}
	return w, nil
}

// Width in pixels.
func (p *Preview) Width() int { return p.width }

// Height in pixels.
func (p *Preview) Height() int { return p.height }

// Image renders the current surface contents at preview size.
func (p *Preview) Image() *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	src := p.surface.Image()
	scale := func() {
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	}
	if p.surface.guard == nil || p.surface.guard(scale) != nil {
		scale()
	}
	return dst
}

// EncodePNG writes the current preview frame as PNG.
func (p *Preview) EncodePNG(w io.Writer) error {
	return errors.Wrap(png.Encode(w, p.Image()), "encode preview")
}
