package filter

import (
	"image"
	"math"
	"strings"
	"sync"
)

// Factory builds a fresh op for each compiled chain so ops with scratch
// buffers are never shared between layers.
type Factory func() Op

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a named filter reachable through url(#name).
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = f
}

// Lookup resolves a url() reference. Anything before the last '#' is
// ignored, so "#warm" and "filters.svg#warm" name the same filter.
func Lookup(ref string) (Op, bool) {
	if i := strings.LastIndexByte(ref, '#'); i >= 0 {
		ref = ref[i+1:]
	}
	registryMu.RLock()
	f, ok := registry[strings.ToLower(ref)]
	registryMu.RUnlock()
	if !ok {
		return nil, false
	}
	return f(), true
}

// Registered lists the registered names.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}

func init() {
	Register("warm", func() Op {
		return sequence{Tint(1.08, 1.0, 0.88).Then(Saturate(1.2))}
	})
	Register("cool", func() Op {
		return sequence{Tint(0.9, 1.0, 1.1).Then(Saturate(0.8))}
	})
	Register("vintage", func() Op {
		return sequence{Sepia(0.35).Then(Contrast(0.9)), NewVignette(math.Pi / 4)}
	})
	Register("cinematic", func() Op {
		return sequence{Contrast(1.1).Then(Brightness(0.95)).Then(Saturate(1.1))}
	})
}

// Vignette darkens toward the corners by cos^4 of the angle scaled with the
// distance from the center.
type Vignette struct {
	Angle float64

	w, h  int
	gains []uint16
}

func NewVignette(angle float64) *Vignette {
	return &Vignette{Angle: angle}
}

func (v *Vignette) Margin() int { return 0 }

func (v *Vignette) Apply(img *image.RGBA) {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	if w != v.w || h != v.h {
		v.precompute(w, h)
	}
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		g := v.gains[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			k := uint32(g[x])
			i := x * 4
			row[i+0] = uint8(uint32(row[i+0]) * k >> 16)
			row[i+1] = uint8(uint32(row[i+1]) * k >> 16)
			row[i+2] = uint8(uint32(row[i+2]) * k >> 16)
		}
	}
}

func (v *Vignette) precompute(w, h int) {
	v.w, v.h = w, h
	v.gains = make([]uint16, w*h)
	cx, cy := float64(w)/2, float64(h)/2
	maxDist := math.Hypot(cx, cy)
	if maxDist == 0 {
		maxDist = 1
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy) / maxDist
			c := math.Cos(v.Angle * d)
			gain := c * c * c * c
			v.gains[y*w+x] = uint16(math.Min(gain*65535, 65535))
		}
	}
}
