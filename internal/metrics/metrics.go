// Package metrics exposes converter activity to Prometheus: compositing
// cost, layer count, render and encoder throughput, and HTTP requests by
// route.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for a converter. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	framesDrawn     prometheus.Counter
	frameSeconds    prometheus.Histogram
	layers          prometheus.Gauge
	rendersStarted  prometheus.Counter
	rendersFinished prometheus.Counter
	renderErrors    prometheus.Counter
	chunksTotal     prometheus.Counter
	bytesEncoded    prometheus.Counter
	requests        *prometheus.CounterVec
	requestSeconds  *prometheus.HistogramVec
}

// New creates and registers Prometheus metrics for the converter.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		framesDrawn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipnship_frames_drawn_total",
			Help: "Total number of composited frames",
		}),
		frameSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clipnship_frame_draw_seconds",
			Help:    "Time spent compositing one frame",
			Buckets: []float64{.001, .002, .004, .008, .016, .033, .066, .1},
		}),
		layers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clipnship_layers",
			Help: "Number of layers in the stack",
		}),
		rendersStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipnship_renders_started_total",
			Help: "Total number of renders started",
		}),
		rendersFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipnship_renders_finished_total",
			Help: "Total number of renders that delivered output",
		}),
		renderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipnship_render_errors_total",
			Help: "Total number of renders whose encoder failed",
		}),
		chunksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipnship_chunks_total",
			Help: "Total number of encoder chunks flushed",
		}),
		bytesEncoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipnship_encoded_bytes_total",
			Help: "Total number of encoded output bytes",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipnship_http_requests_total",
			Help: "HTTP requests by route pattern and status class",
		}, []string{"route", "code"}),
		requestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clipnship_http_request_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: []float64{.001, .005, .025, .1, .5, 2},
		}, []string{"route"}),
	}

	registry.MustRegister(
		m.framesDrawn,
		m.frameSeconds,
		m.layers,
		m.rendersStarted,
		m.rendersFinished,
		m.renderErrors,
		m.chunksTotal,
		m.bytesEncoded,
		m.requests,
		m.requestSeconds,
	)
	return m
}

// FrameDrawn records one composited frame.
func (m *Metrics) FrameDrawn(took time.Duration) {
	if m == nil {
		return
	}
	m.framesDrawn.Inc()
	m.frameSeconds.Observe(took.Seconds())
}

// SetLayers sets the layer gauge.
func (m *Metrics) SetLayers(n int) {
	if m == nil {
		return
	}
	m.layers.Set(float64(n))
}

// RenderStarted increments the renders started counter.
func (m *Metrics) RenderStarted() {
	if m == nil {
		return
	}
	m.rendersStarted.Inc()
}

// RenderFinished records a delivered render and whether its encoder failed.
func (m *Metrics) RenderFinished(failed bool) {
	if m == nil {
		return
	}
	m.rendersFinished.Inc()
	if failed {
		m.renderErrors.Inc()
	}
}

// ChunkFlushed records one encoder chunk of n bytes.
func (m *Metrics) ChunkFlushed(n int) {
	if m == nil {
		return
	}
	m.chunksTotal.Inc()
	m.bytesEncoded.Add(float64(n))
}

// ObserveRequest records one served request. A zero status means the
// handler never wrote a header, which net/http sends as 200.
func (m *Metrics) ObserveRequest(route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	if status == 0 {
		status = http.StatusOK
	}
	m.requests.WithLabelValues(route, fmt.Sprintf("%dxx", status/100)).Inc()
	m.requestSeconds.WithLabelValues(route).Observe(took.Seconds())
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
