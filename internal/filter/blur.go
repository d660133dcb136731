package filter

import (
	"image"
	"math"
)

// Blur is a Gaussian blur approximated by three successive box passes in
// each direction. Pixels outside the image are treated as transparent.
type Blur struct {
	Sigma float64

	boxes [3]int
	tmp   []uint8
	col   []uint8
}

// NewBlur returns a blur with standard deviation sigma in pixels.
func NewBlur(sigma float64) *Blur {
	b := &Blur{Sigma: sigma}
	b.boxes = boxRadii(math.Min(sigma, MaxMargin/3))
	return b
}

// Margin is the distance one opaque pixel spreads, at most MaxMargin.
func (b *Blur) Margin() int {
	if b.Sigma <= 0 {
		return 0
	}
	return ceilMargin(3 * b.Sigma)
}

func (b *Blur) Apply(img *image.RGBA) {
	if b.Sigma <= 0 {
		return
	}
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	if w == 0 || h == 0 {
		return
	}
	n := w * h * 4
	if cap(b.tmp) < n {
		b.tmp = make([]uint8, n)
	}
	b.tmp = b.tmp[:n]

	for _, r := range b.boxes {
		if r == 0 {
			continue
		}
		b.horizontal(img, r)
		b.vertical(img, r)
	}
}

// horizontal blurs img rows into tmp, then copies back.
func (b *Blur) horizontal(img *image.RGBA, r int) {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	div := uint32(2*r + 1)
	for y := 0; y < h; y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+w*4]
		dst := b.tmp[y*w*4 : (y+1)*w*4]
		boxLine(src, dst, w, 4, r, div)
	}
	for y := 0; y < h; y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+w*4], b.tmp[y*w*4:(y+1)*w*4])
	}
}

// vertical blurs columns one at a time through a scratch column.
func (b *Blur) vertical(img *image.RGBA, r int) {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	div := uint32(2*r + 1)
	col := b.tmp[:h*4]
	if cap(b.col) < h*4 {
		b.col = make([]uint8, h*4)
	}
	out := b.col[:h*4]
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			copy(col[y*4:y*4+4], img.Pix[y*img.Stride+x*4:y*img.Stride+x*4+4])
		}
		boxLine(col, out, h, 4, r, div)
		for y := 0; y < h; y++ {
			copy(img.Pix[y*img.Stride+x*4:y*img.Stride+x*4+4], out[y*4:y*4+4])
		}
	}
}

// boxLine writes the running mean of a window of 2r+1 samples. Samples past
// either end count as zero.
func boxLine(src, dst []uint8, n, step, r int, div uint32) {
	for c := 0; c < 4; c++ {
		var sum uint32
		for i := 0; i <= r && i < n; i++ {
			sum += uint32(src[i*step+c])
		}
		for i := 0; i < n; i++ {
			dst[i*step+c] = uint8((sum + div/2) / div)
			if add := i + r + 1; add < n {
				sum += uint32(src[add*step+c])
			}
			if sub := i - r; sub >= 0 {
				sum -= uint32(src[sub*step+c])
			}
		}
	}
}

// boxRadii picks three box half-widths whose combined variance matches
// sigma.
func boxRadii(sigma float64) [3]int {
	var out [3]int
	if sigma <= 0 {
		return out
	}
	const n = 3
	ideal := math.Sqrt(12*sigma*sigma/n + 1)
	wl := int(math.Floor(ideal))
	if wl%2 == 0 {
		wl--
	}
	wu := wl + 2
	m := int(math.Round((12*sigma*sigma - n*float64(wl*wl) - 4*n*float64(wl) - 3*n) / (-4*float64(wl) - 4)))
	for i := 0; i < n; i++ {
		size := wu
		if i < m {
			size = wl
		}
		if size < 1 {
			size = 1
		}
		out[i] = (size - 1) / 2
	}
	return out
}
