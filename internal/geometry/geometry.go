// Package geometry computes where a scaled source frame lands on the
// destination canvas.
package geometry

import (
	"image"
	"math"
)

// Size is a width/height pair in pixels.
type Size struct {
	Width  int
	Height int
}

// Rect is the placement of a scaled frame on the destination. Offsets are
// negative when the scaled frame is larger than the destination along that
// axis; the overflow is cropped evenly on both sides.
type Rect struct {
	OffsetX float64
	OffsetY float64
	Width   float64
	Height  float64
}

// Fit centers a srcWidth x srcHeight frame, scaled by scale, on dst.
// Offsets are never clamped.
func Fit(srcWidth, srcHeight int, scale float64, dst Size) Rect {
	w := float64(srcWidth) * scale
	h := float64(srcHeight) * scale
	return Rect{
		OffsetX: (float64(dst.Width) - w) / 2,
		OffsetY: (float64(dst.Height) - h) / 2,
		Width:   w,
		Height:  h,
	}
}

// Bounds rounds r to the pixel grid.
func (r Rect) Bounds() image.Rectangle {
	x0 := int(math.Round(r.OffsetX))
	y0 := int(math.Round(r.OffsetY))
	x1 := int(math.Round(r.OffsetX + r.Width))
	y1 := int(math.Round(r.OffsetY + r.Height))
	return image.Rect(x0, y0, x1, y1)
}

// Empty reports whether r covers no pixels.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}
