package filter

import (
	"image"
	"math"
)

// ColorMatrix applies a 4x5 matrix to straight-alpha RGBA in the 0..255
// range. Rows are R, G, B, A; the fifth column is a constant offset.
type ColorMatrix struct {
	M [20]float32
}

func (f *ColorMatrix) Margin() int { return 0 }

func (f *ColorMatrix) Apply(img *image.RGBA) {
	m := &f.M
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			a := float32(row[i+3])
			if a == 0 && m[19] <= 0 {
				continue
			}
			var r, g, b float32
			if a > 0 {
				r = float32(row[i+0]) * 255 / a
				g = float32(row[i+1]) * 255 / a
				b = float32(row[i+2]) * 255 / a
			}

			nr := m[0]*r + m[1]*g + m[2]*b + m[3]*a + m[4]
			ng := m[5]*r + m[6]*g + m[7]*b + m[8]*a + m[9]
			nb := m[10]*r + m[11]*g + m[12]*b + m[13]*a + m[14]
			na := clampf(m[15]*r+m[16]*g+m[17]*b+m[18]*a+m[19], 0, 255)

			k := na / 255
			row[i+0] = clampUint8(clampf(nr, 0, 255) * k)
			row[i+1] = clampUint8(clampf(ng, 0, 255) * k)
			row[i+2] = clampUint8(clampf(nb, 0, 255) * k)
			row[i+3] = clampUint8(na)
		}
	}
}

// Then returns a matrix equivalent to applying f and then next.
func (f *ColorMatrix) Then(next *ColorMatrix) *ColorMatrix {
	a := &next.M
	b := &f.M
	out := &ColorMatrix{}
	r := &out.M
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += a[row*5+k] * b[k*5+col]
			}
			r[row*5+col] = sum
		}
		r[row*5+4] = a[row*5+0]*b[4] + a[row*5+1]*b[9] + a[row*5+2]*b[14] + a[row*5+3]*b[19] + a[row*5+4]
	}
	return out
}

func rgbMatrix(rr, rg, rb, gr, gg, gb, br, bg, bb float64) *ColorMatrix {
	return &ColorMatrix{M: [20]float32{
		float32(rr), float32(rg), float32(rb), 0, 0,
		float32(gr), float32(gg), float32(gb), 0, 0,
		float32(br), float32(bg), float32(bb), 0, 0,
		0, 0, 0, 1, 0,
	}}
}

// Identity passes pixels through unchanged.
func Identity() *ColorMatrix {
	return rgbMatrix(1, 0, 0, 0, 1, 0, 0, 0, 1)
}

// Brightness multiplies color channels by v.
func Brightness(v float64) *ColorMatrix {
	return rgbMatrix(v, 0, 0, 0, v, 0, 0, 0, v)
}

// Contrast scales channels around mid gray.
func Contrast(v float64) *ColorMatrix {
	m := rgbMatrix(v, 0, 0, 0, v, 0, 0, 0, v)
	offset := float32(255 * (1 - v) / 2)
	m.M[4], m.M[9], m.M[14] = offset, offset, offset
	return m
}

// Grayscale desaturates by amount (0 unchanged, 1 fully gray).
func Grayscale(amount float64) *ColorMatrix {
	a := 1 - amount
	return rgbMatrix(
		0.2126+0.7874*a, 0.7152-0.7152*a, 0.0722-0.0722*a,
		0.2126-0.2126*a, 0.7152+0.2848*a, 0.0722-0.0722*a,
		0.2126-0.2126*a, 0.7152-0.7152*a, 0.0722+0.9278*a,
	)
}

// Sepia tones by amount (0 unchanged, 1 full sepia).
func Sepia(amount float64) *ColorMatrix {
	a := 1 - amount
	return rgbMatrix(
		0.393+0.607*a, 0.769-0.769*a, 0.189-0.189*a,
		0.349-0.349*a, 0.686+0.314*a, 0.168-0.168*a,
		0.272-0.272*a, 0.534-0.534*a, 0.131+0.869*a,
	)
}

// Saturate scales saturation (0 gray, 1 unchanged, >1 oversaturated).
func Saturate(s float64) *ColorMatrix {
	return rgbMatrix(
		0.213+0.787*s, 0.715-0.715*s, 0.072-0.072*s,
		0.213-0.213*s, 0.715+0.285*s, 0.072-0.072*s,
		0.213-0.213*s, 0.715-0.715*s, 0.072+0.928*s,
	)
}

// HueRotate rotates hue by deg degrees.
func HueRotate(deg float64) *ColorMatrix {
	rad := deg * math.Pi / 180
	c, s := math.Cos(rad), math.Sin(rad)
	return rgbMatrix(
		0.213+c*0.787-s*0.213, 0.715-c*0.715-s*0.715, 0.072-c*0.072+s*0.928,
		0.213-c*0.213+s*0.143, 0.715+c*0.285+s*0.140, 0.072-c*0.072-s*0.283,
		0.213-c*0.213-s*0.787, 0.715-c*0.715+s*0.715, 0.072+c*0.928+s*0.072,
	)
}

// Invert inverts color channels by amount.
func Invert(amount float64) *ColorMatrix {
	k := 1 - 2*amount
	m := rgbMatrix(k, 0, 0, 0, k, 0, 0, 0, k)
	offset := float32(255 * amount)
	m.M[4], m.M[9], m.M[14] = offset, offset, offset
	return m
}

// Opacity multiplies alpha by amount.
func Opacity(amount float64) *ColorMatrix {
	m := Identity()
	m.M[18] = float32(amount)
	return m
}

// Tint scales the red, green and blue channels independently.
func Tint(r, g, b float64) *ColorMatrix {
	return rgbMatrix(r, 0, 0, 0, g, 0, 0, 0, b)
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampUint8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
