package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.FrameDrawn(time.Millisecond)
	m.SetLayers(3)
	m.RenderStarted()
	m.RenderFinished(true)
	m.ChunkFlushed(10)
	m.ObserveRequest("/layers", http.StatusOK, time.Millisecond)
}

func TestCounters(t *testing.T) {
	m := New()
	m.FrameDrawn(2 * time.Millisecond)
	m.FrameDrawn(3 * time.Millisecond)
	m.SetLayers(2)
	m.RenderStarted()
	m.RenderFinished(false)
	m.RenderFinished(true)
	m.ChunkFlushed(100)
	m.ChunkFlushed(0)

	if got := testutil.ToFloat64(m.framesDrawn); got != 2 {
		t.Errorf("frames drawn = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.layers); got != 2 {
		t.Errorf("layers = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.rendersFinished); got != 2 {
		t.Errorf("renders finished = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.renderErrors); got != 1 {
		t.Errorf("render errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.chunksTotal); got != 2 {
		t.Errorf("chunks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.bytesEncoded); got != 100 {
		t.Errorf("bytes = %v, want 100", got)
	}
}

func TestRequestMiddlewareLabelsByRoute(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(RequestMiddleware(m))
	r.Get("/renders/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "missing" {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("{}"))
	})

	for _, path := range []string{"/renders/a", "/renders/b", "/renders/missing", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	tests := []struct {
		route, code string
		want        float64
	}{
		{"/renders/{id}", "2xx", 2},
		{"/renders/{id}", "4xx", 1},
		{"unmatched", "4xx", 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.requests.WithLabelValues(tt.route, tt.code)); got != tt.want {
			t.Errorf("requests{%s,%s} = %v, want %v", tt.route, tt.code, got, tt.want)
		}
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.RenderStarted()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "clipnship_renders_started_total 1") {
		t.Fatalf("body missing counter:\n%s", rec.Body.String())
	}
}
