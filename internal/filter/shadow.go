package filter

import (
	"image"
	"image/color"
	"math"
)

var defaultShadowColor = color.NRGBA{A: 0xff}

// DropShadow draws a blurred, offset, single-color copy of the image's alpha
// underneath the image.
type DropShadow struct {
	DX, DY float64
	Sigma  float64
	Color  color.NRGBA

	blur   *Blur
	shadow *image.RGBA
}

// NewDropShadow builds a drop-shadow op. dx and dy are the offset in pixels
// and sigma the blur standard deviation.
func NewDropShadow(dx, dy, sigma float64, c color.NRGBA) *DropShadow {
	return &DropShadow{DX: dx, DY: dy, Sigma: sigma, Color: c, blur: NewBlur(sigma)}
}

func (d *DropShadow) Margin() int {
	off := math.Max(math.Abs(d.DX), math.Abs(d.DY))
	return addMargin(ceilMargin(off), d.blur.Margin())
}

func (d *DropShadow) Apply(img *image.RGBA) {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	if d.Color.A == 0 {
		return
	}
	if d.shadow == nil || d.shadow.Rect.Dx() != w || d.shadow.Rect.Dy() != h {
		d.shadow = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		clear(d.shadow.Pix)
	}

	dx := int(math.Round(clampOffset(d.DX)))
	dy := int(math.Round(clampOffset(d.DY)))
	cr, cg, cb, ca := uint32(d.Color.R), uint32(d.Color.G), uint32(d.Color.B), uint32(d.Color.A)
	for y := 0; y < h; y++ {
		sy := y - dy
		if sy < 0 || sy >= h {
			continue
		}
		for x := 0; x < w; x++ {
			sx := x - dx
			if sx < 0 || sx >= w {
				continue
			}
			a := uint32(img.Pix[sy*img.Stride+sx*4+3]) * ca / 255
			if a == 0 {
				continue
			}
			i := y*d.shadow.Stride + x*4
			d.shadow.Pix[i+0] = uint8(cr * a / 255)
			d.shadow.Pix[i+1] = uint8(cg * a / 255)
			d.shadow.Pix[i+2] = uint8(cb * a / 255)
			d.shadow.Pix[i+3] = uint8(a)
		}
	}
	d.blur.Apply(d.shadow)

	// source over shadow, premultiplied
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		sh := d.shadow.Pix[y*d.shadow.Stride : y*d.shadow.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			inv := 255 - uint32(row[i+3])
			row[i+0] = uint8(uint32(row[i+0]) + (uint32(sh[i+0])*inv+127)/255)
			row[i+1] = uint8(uint32(row[i+1]) + (uint32(sh[i+1])*inv+127)/255)
			row[i+2] = uint8(uint32(row[i+2]) + (uint32(sh[i+2])*inv+127)/255)
			row[i+3] = uint8(uint32(row[i+3]) + (uint32(sh[i+3])*inv+127)/255)
		}
	}
}

// clampOffset keeps an offset convertible to int. Anything past MaxMargin
// already moves the shadow off the image.
func clampOffset(v float64) float64 {
	return math.Max(-MaxMargin, math.Min(v, MaxMargin))
}
