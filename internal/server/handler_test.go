package server

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ZacxDev/clipnship/internal/compositor"
	"github.com/ZacxDev/clipnship/internal/eventloop"
	"github.com/ZacxDev/clipnship/internal/geometry"
	"github.com/ZacxDev/clipnship/internal/layer"
	"github.com/ZacxDev/clipnship/internal/logging"
	"github.com/ZacxDev/clipnship/internal/metrics"
	"github.com/ZacxDev/clipnship/internal/playback"
	"github.com/ZacxDev/clipnship/internal/render"
	"github.com/ZacxDev/clipnship/internal/surface"
	"github.com/ZacxDev/clipnship/internal/testsupport"
	"github.com/ZacxDev/clipnship/pkg/types"
)

// fakeConverter wires the real components over a manual loop, running each
// call to completion like a converter's event loop would.
type fakeConverter struct {
	loop      *testsupport.Loop
	source    *testsupport.Source
	surface   *surface.Surface
	store     *layer.Store
	player    *playback.Controller
	pipeline  *render.Pipeline
	recorders []*testsupport.Recorder
	closed    bool
}

func newFakeConverter(t *testing.T) *fakeConverter {
	t.Helper()
	f := &fakeConverter{loop: testsupport.NewLoop()}
	f.source = testsupport.NewSource(f.loop, 192, 108, 10*time.Second)
	var err error
	f.surface, err = surface.New(geometry.Size{Width: 108, Height: 192})
	if err != nil {
		t.Fatal(err)
	}
	f.store = layer.NewStore(f.source, f.loop)
	comp := compositor.New(f.store, f.surface)
	f.store.OnRedraw(comp.DrawFrame)
	f.player = playback.New(f.source, f.loop, comp.DrawFrame)
	f.pipeline, err = render.New(f.surface, f.source, f.player, f.loop,
		testsupport.RecorderFactory(f.loop, &f.recorders), render.WithLogger(logging.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fakeConverter) settle() { f.loop.RunPending() }

func (f *fakeConverter) list(err error) ([]layer.Layer, error) {
	f.settle()
	if err != nil {
		return nil, err
	}
	return f.store.List(), nil
}

func (f *fakeConverter) AddLayer(name string, scale float64, filters ...string) ([]layer.Layer, error) {
	return f.list(f.store.Add(name, scale, filters...))
}

func (f *fakeConverter) RemoveLayer(name string) ([]layer.Layer, error) {
	f.store.Remove(name)
	return f.list(nil)
}

func (f *fakeConverter) GetLayer(name string) (layer.Layer, bool) { return f.store.Get(name) }
func (f *fakeConverter) GetLayers() []layer.Layer                 { return f.store.List() }

func (f *fakeConverter) UpdateLayerScale(name string, scale float64) ([]layer.Layer, error) {
	return f.list(f.store.UpdateScale(name, scale))
}

func (f *fakeConverter) UpdateLayerFilter(name string, filters ...string) ([]layer.Layer, error) {
	return f.list(f.store.UpdateFilter(name, filters...))
}

func (f *fakeConverter) PreviewPlay() error {
	if f.closed {
		return eventloop.ErrClosed
	}
	defer f.settle()
	return f.player.Play()
}

func (f *fakeConverter) PreviewPause() error { f.player.Pause(); f.settle(); return nil }
func (f *fakeConverter) PreviewReset() error { f.player.Reset(); f.settle(); return nil }

func (f *fakeConverter) PreviewSeek(pos time.Duration) error {
	f.player.Seek(pos)
	f.settle()
	return nil
}

func (f *fakeConverter) State() types.PlaybackState { return f.player.State() }
func (f *fakeConverter) Position() time.Duration    { return f.source.Position() }
func (f *fakeConverter) Duration() time.Duration    { return f.source.Duration() }

func (f *fakeConverter) Preview(widthSpec string) (*surface.Preview, error) {
	if widthSpec == "" {
		widthSpec = surface.DefaultPreviewWidth
	}
	return f.surface.Preview(widthSpec)
}

func (f *fakeConverter) Render(fps int, onFinish func(*render.Output), onProgress func(float64)) (*render.Job, error) {
	if fps <= 0 {
		fps = 60
	}
	defer f.settle()
	return f.pipeline.Render(fps, onFinish, onProgress)
}

var _ Converter = (*fakeConverter)(nil)

func newTestRouter(t *testing.T) (*fakeConverter, chi.Router, *metrics.Metrics) {
	t.Helper()
	conv := newFakeConverter(t)
	m := metrics.New()
	return conv, NewHandler(conv, logging.NewNop(), m).Routes(), m
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeLayers(t *testing.T, rec *httptest.ResponseRecorder) []layerJSON {
	t.Helper()
	var out []layerJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHandler_AddLayer(t *testing.T) {
	_, r, _ := newTestRouter(t)

	rec := do(r, http.MethodPost, "/layers", `{"name":"bg","scale":1.5,"filter":"blur(20px)"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	got := decodeLayers(t, rec)
	if len(got) != 1 || got[0] != (layerJSON{Name: "bg", Scale: 1.5, Filter: "blur(20px)"}) {
		t.Fatalf("layers = %+v", got)
	}

	rec = do(r, http.MethodPost, "/layers", `{"name":"main","scale":0.8,"filter":["grayscale(1)","contrast(2)"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if got := decodeLayers(t, rec); len(got) != 2 || got[1].Filter != "grayscale(1) contrast(2)" {
		t.Fatalf("layers = %+v", got)
	}
}

func TestHandler_AddLayer_errors(t *testing.T) {
	_, r, _ := newTestRouter(t)
	do(r, http.MethodPost, "/layers", `{"name":"bg","scale":1}`)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"not json", "nope", http.StatusBadRequest},
		{"missing scale", `{"name":"x"}`, http.StatusBadRequest},
		{"duplicate", `{"name":"bg","scale":2}`, http.StatusConflict},
		{"bad scale", `{"name":"x","scale":-1}`, http.StatusBadRequest},
		{"bad filter", `{"name":"x","scale":1,"filter":"blur(wide)"}`, http.StatusBadRequest},
		{"bad filter type", `{"name":"x","scale":1,"filter":7}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(r, http.MethodPost, "/layers", tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body)
			}
		})
	}
}

func TestHandler_GetAndListLayers(t *testing.T) {
	_, r, _ := newTestRouter(t)
	do(r, http.MethodPost, "/layers", `{"name":"bg","scale":1.5}`)

	rec := do(r, http.MethodGet, "/layers/bg", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"filter":"none"`) {
		t.Fatalf("GET /layers/bg = %d %s", rec.Code, rec.Body)
	}
	if rec := do(r, http.MethodGet, "/layers/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := decodeLayers(t, do(r, http.MethodGet, "/layers", "")); len(got) != 1 {
		t.Fatalf("list = %+v", got)
	}
}

func TestHandler_UpdateLayer(t *testing.T) {
	_, r, _ := newTestRouter(t)
	do(r, http.MethodPost, "/layers", `{"name":"bg","scale":1.5}`)
	do(r, http.MethodPost, "/layers", `{"name":"main","scale":0.8}`)

	rec := do(r, http.MethodPatch, "/layers/main", `{"scale":1,"filter":"sepia(50%)"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	got := decodeLayers(t, rec)
	if got[0].Scale != 1.5 || got[1] != (layerJSON{Name: "main", Scale: 1, Filter: "sepia(50%)"}) {
		t.Fatalf("layers = %+v", got)
	}

	if rec := do(r, http.MethodPatch, "/layers/ghost", `{"scale":1}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := do(r, http.MethodPatch, "/layers/main", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_RemoveLayerIsLenient(t *testing.T) {
	_, r, _ := newTestRouter(t)
	do(r, http.MethodPost, "/layers", `{"name":"bg","scale":1.5}`)

	for i := 0; i < 2; i++ {
		rec := do(r, http.MethodDelete, "/layers/bg", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("delete %d: expected 200, got %d", i, rec.Code)
		}
		if got := decodeLayers(t, rec); len(got) != 0 {
			t.Fatalf("layers = %+v", got)
		}
	}
}

func TestHandler_Playback(t *testing.T) {
	conv, r, _ := newTestRouter(t)

	state := func(rec *httptest.ResponseRecorder) playbackJSON {
		t.Helper()
		var p playbackJSON
		if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
			t.Fatalf("body %q: %v", rec.Body, err)
		}
		return p
	}

	if p := state(do(r, http.MethodPost, "/playback/play", "")); p.State != types.PlaybackStatePlaying || p.Duration != 10 {
		t.Fatalf("after play: %+v", p)
	}
	conv.source.Advance(2 * time.Second)
	if p := state(do(r, http.MethodPost, "/playback/pause", "")); p.State != types.PlaybackStatePaused || p.Position != 2 {
		t.Fatalf("after pause: %+v", p)
	}
	if p := state(do(r, http.MethodPost, "/playback/seek?t=4.5", "")); p.Position != 4.5 {
		t.Fatalf("after seek: %+v", p)
	}
	if rec := do(r, http.MethodPost, "/playback/seek?t=soon", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if p := state(do(r, http.MethodPost, "/playback/reset", "")); p.Position != 0 || p.State != types.PlaybackStatePaused {
		t.Fatalf("after reset: %+v", p)
	}
	if p := state(do(r, http.MethodGet, "/playback", "")); p.State != types.PlaybackStatePaused {
		t.Fatalf("GET /playback: %+v", p)
	}

	conv.closed = true
	if rec := do(r, http.MethodPost, "/playback/play", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("closed converter: expected 503, got %d", rec.Code)
	}
}

func TestHandler_Preview(t *testing.T) {
	conv, r, _ := newTestRouter(t)
	do(r, http.MethodPost, "/layers", `{"name":"main","scale":1}`)
	conv.loop.RunFrame()

	rec := do(r, http.MethodGet, "/preview.png?width=50%25", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("expected png, got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 54 || b.Dy() != 96 {
		t.Fatalf("preview bounds = %v", b)
	}

	if rec := do(r, http.MethodGet, "/preview.png?width=0px", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_Render(t *testing.T) {
	conv, r, _ := newTestRouter(t)
	do(r, http.MethodPost, "/layers", `{"name":"main","scale":1}`)

	rec := do(r, http.MethodPost, "/renders?fps=30", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	var status renderJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.ID == "" || status.Done || rec.Header().Get("Location") != "/renders/"+status.ID {
		t.Fatalf("status = %+v", status)
	}

	if rec := do(r, http.MethodPost, "/renders", ""); rec.Code != http.StatusConflict {
		t.Fatalf("second render: expected 409, got %d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/renders/"+status.ID+"/output", ""); rec.Code != http.StatusConflict {
		t.Fatalf("unfinished output: expected 409, got %d", rec.Code)
	}

	conv.recorders[0].Emit([]byte("webm-bytes"))
	conv.source.Advance(time.Minute)
	conv.settle()

	rec = do(r, http.MethodGet, "/renders/"+status.ID, "")
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if !status.Done || status.Size != 10 || status.MimeType != types.MimeTypeWebMVP9 {
		t.Fatalf("status = %+v", status)
	}

	rec = do(r, http.MethodGet, "/renders/"+status.ID+"/output", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "webm-bytes" || rec.Header().Get("Content-Type") != types.MimeTypeWebMVP9 {
		t.Fatalf("output = %d %q %q", rec.Code, rec.Body, rec.Header().Get("Content-Type"))
	}

	if rec := do(r, http.MethodGet, "/renders/unknown", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/renders?fps=-2", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_RenderRejectsHugeFPS(t *testing.T) {
	_, r, _ := newTestRouter(t)
	rec := do(r, http.MethodPost, "/renders?fps=2000000000", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(r, http.MethodPost, "/renders?fps=30", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("render after rejected fps = %d, want 202", rec.Code)
	}
}

func TestHandler_Metrics(t *testing.T) {
	_, r, _ := newTestRouter(t)
	do(r, http.MethodGet, "/layers/missing", "")

	rec := do(r, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `clipnship_http_requests_total{code="4xx",route="/layers/{name}"} 1`) {
		t.Fatalf("metrics body missing request counters:\n%s", body)
	}
}
