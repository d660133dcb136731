package compositor

import (
	"image/color"
	"testing"
	"time"

	"github.com/ZacxDev/clipnship/internal/geometry"
	"github.com/ZacxDev/clipnship/internal/layer"
	"github.com/ZacxDev/clipnship/internal/surface"
	"github.com/ZacxDev/clipnship/internal/testsupport"
)

var (
	srcColor = color.RGBA{R: 200, G: 100, B: 50, A: 255}
	inverted = color.RGBA{R: 55, G: 155, B: 205, A: 255}
)

type fixture struct {
	loop    *testsupport.Loop
	source  *testsupport.Source
	store   *layer.Store
	surface *surface.Surface
	comp    *Compositor
}

// newFixture uses a 108x192 canvas and a 192x108 source, a tenth of the
// real sizes, so the centering math matches production.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	loop := testsupport.NewLoop()
	src := testsupport.NewSource(loop, 192, 108, 10*time.Second)
	src.SetFrame(testsupport.SolidFrame(192, 108, srcColor))
	surf, err := surface.New(geometry.Size{Width: 108, Height: 192})
	if err != nil {
		t.Fatal(err)
	}
	store := layer.NewStore(src, loop)
	return &fixture{
		loop:    loop,
		source:  src,
		store:   store,
		surface: surf,
		comp:    New(store, surf, opts...),
	}
}

func near(a, b color.RGBA) bool {
	d := func(x, y uint8) int {
		if x > y {
			return int(x - y)
		}
		return int(y - x)
	}
	return d(a.R, b.R) <= 2 && d(a.G, b.G) <= 2 && d(a.B, b.B) <= 2 && d(a.A, b.A) <= 2
}

func (f *fixture) at(x, y int) color.RGBA {
	return f.surface.Image().RGBAAt(x, y)
}

func TestDrawsCenteredAndCropped(t *testing.T) {
	f := newFixture(t)
	if err := f.store.Add("main", 1); err != nil {
		t.Fatal(err)
	}
	f.comp.DrawFrame()

	// Fit(192, 108, 1, 108x192) = offset (-42, 42), 192x108.
	if got := f.at(54, 100); !near(got, srcColor) {
		t.Fatalf("inside = %v, want %v", got, srcColor)
	}
	if got := f.at(0, 42); !near(got, srcColor) {
		t.Fatalf("left edge cropped = %v, want %v", got, srcColor)
	}
	for _, y := range []int{10, 41, 150, 191} {
		if got := f.at(54, y); got.A != 0 {
			t.Fatalf("pixel at y=%d = %v, want untouched", y, got)
		}
	}
}

func TestPainterOrderAndFilterIsolation(t *testing.T) {
	f := newFixture(t)
	if err := f.store.Add("bg", 2, "invert(1)"); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Add("main", 0.5); err != nil {
		t.Fatal(err)
	}
	f.comp.DrawFrame()

	// bg covers everything; main is 96x54 at (6, 69).
	if got := f.at(1, 1); !near(got, inverted) {
		t.Fatalf("corner = %v, want inverted %v", got, inverted)
	}
	if got := f.at(54, 96); !near(got, srcColor) {
		t.Fatalf("center = %v, want unfiltered %v", got, srcColor)
	}
}

func TestFilterAppliesOnlyToItsLayer(t *testing.T) {
	f := newFixture(t)
	_ = f.store.Add("main", 0.5)
	_ = f.store.Add("top", 0.25, "grayscale(1)")
	f.comp.DrawFrame()

	// top is 48x27 at (30, 82.5); main shows around it.
	top := f.at(54, 96)
	if top.R != top.G || top.G != top.B {
		t.Fatalf("top layer not gray: %v", top)
	}
	if got := f.at(10, 96); !near(got, srcColor) {
		t.Fatalf("main layer picked up a filter: %v", got)
	}
}

func TestSurfaceNotCleared(t *testing.T) {
	f := newFixture(t)
	_ = f.store.Add("main", 1)
	f.comp.DrawFrame()
	if err := f.store.UpdateScale("main", 0.5); err != nil {
		t.Fatal(err)
	}
	f.comp.DrawFrame()

	// y=45 is inside the first placement but above the second (starts at 69).
	if got := f.at(54, 45); !near(got, srcColor) {
		t.Fatalf("stale pixel = %v, want previous frame kept", got)
	}
}

func TestBlurBleedsPastLayerEdge(t *testing.T) {
	f := newFixture(t)
	f.source.SetFrame(testsupport.SolidFrame(20, 10, srcColor))
	_ = f.store.Add("small", 1, "blur(2px)")
	f.comp.DrawFrame()

	// 20x10 at (44, 91).
	if got := f.at(42, 96); got.A == 0 {
		t.Fatal("blur did not spread outside the layer")
	}
	if got := f.at(30, 96); got.A != 0 {
		t.Fatalf("blur spread too far: %v", got)
	}
}

func TestHugeBlurStaysWithinCanvasExtent(t *testing.T) {
	for _, value := range []string{"blur(2000px)", "blur(1e9px)", "blur(1e300px)"} {
		t.Run(value, func(t *testing.T) {
			f := newFixture(t)
			if err := f.store.Add("bg", 1, value); err != nil {
				t.Fatal(err)
			}
			f.comp.DrawFrame()

			// 108x192 canvas: the scratch may reach at most 192px past it.
			limit := f.surface.Image().Rect.Inset(-192)
			got := f.comp.scratch[0].Rect
			if got.Empty() {
				t.Fatal("layer was skipped")
			}
			if !got.In(limit) {
				t.Fatalf("scratch %v exceeds %v", got, limit)
			}
		})
	}
}

func TestSkipsLayersWithoutFrame(t *testing.T) {
	f := newFixture(t)
	_ = f.store.Add("main", 1)
	f.source.SetFrame(nil)
	f.comp.DrawFrame()
	if got := f.at(54, 96); got.A != 0 {
		t.Fatalf("drew without a frame: %v", got)
	}
}

type countingObserver struct{ frames int }

func (o *countingObserver) FrameDrawn(time.Duration) { o.frames++ }

func TestObserverAndScratchReuse(t *testing.T) {
	obs := &countingObserver{}
	f := newFixture(t, WithObserver(obs))
	_ = f.store.Add("bg", 1, "blur(1px)")

	f.comp.DrawFrame()
	first := &f.comp.scratch[0].Pix[0]
	f.comp.DrawFrame()
	if &f.comp.scratch[0].Pix[0] != first {
		t.Fatal("scratch raster reallocated between frames")
	}
	if obs.frames != 2 {
		t.Fatalf("observer saw %d frames, want 2", obs.frames)
	}
}

func TestEmptyStore(t *testing.T) {
	f := newFixture(t)
	f.comp.DrawFrame()
	if got := f.at(0, 0); got.A != 0 {
		t.Fatalf("empty store drew %v", got)
	}
}
