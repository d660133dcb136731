// Package server exposes a converter over HTTP for remote preview and
// control.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/ZacxDev/clipnship/internal/eventloop"
	"github.com/ZacxDev/clipnship/internal/filter"
	"github.com/ZacxDev/clipnship/internal/layer"
	"github.com/ZacxDev/clipnship/internal/logging"
	"github.com/ZacxDev/clipnship/internal/metrics"
	"github.com/ZacxDev/clipnship/internal/render"
	"github.com/ZacxDev/clipnship/internal/surface"
	"github.com/ZacxDev/clipnship/pkg/types"
)

// Converter is the part of a clip converter the handler drives.
type Converter interface {
	AddLayer(name string, scale float64, filters ...string) ([]layer.Layer, error)
	RemoveLayer(name string) ([]layer.Layer, error)
	GetLayer(name string) (layer.Layer, bool)
	GetLayers() []layer.Layer
	UpdateLayerScale(name string, scale float64) ([]layer.Layer, error)
	UpdateLayerFilter(name string, filters ...string) ([]layer.Layer, error)

	PreviewPlay() error
	PreviewPause() error
	PreviewReset() error
	PreviewSeek(pos time.Duration) error
	State() types.PlaybackState
	Position() time.Duration
	Duration() time.Duration
	Preview(widthSpec string) (*surface.Preview, error)

	Render(fps int, onFinish func(*render.Output), onProgress func(float64)) (*render.Job, error)
}

// Handler serves one converter.
type Handler struct {
	conv    Converter
	log     *slog.Logger
	metrics *metrics.Metrics

	mu   sync.Mutex
	jobs map[string]*render.Job
}

// NewHandler returns a Handler for conv. Metrics may be nil.
func NewHandler(conv Converter, log *slog.Logger, m *metrics.Metrics) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{conv: conv, log: log, metrics: m, jobs: make(map[string]*render.Job)}
}

// Routes mounts every endpoint on a new chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(logging.RequestLogger(h.log))
	r.Use(metrics.RequestMiddleware(h.metrics))
	r.Get("/preview.png", h.GetPreview)
	r.Route("/layers", func(r chi.Router) {
		r.Get("/", h.ListLayers)
		r.Post("/", h.AddLayer)
		r.Get("/{name}", h.GetLayer)
		r.Patch("/{name}", h.UpdateLayer)
		r.Delete("/{name}", h.RemoveLayer)
	})
	r.Route("/playback", func(r chi.Router) {
		r.Get("/", h.GetPlayback)
		r.Post("/play", h.Play)
		r.Post("/pause", h.Pause)
		r.Post("/reset", h.Reset)
		r.Post("/seek", h.Seek)
	})
	r.Route("/renders", func(r chi.Router) {
		r.Post("/", h.StartRender)
		r.Get("/{id}", h.GetRender)
		r.Get("/{id}/output", h.GetRenderOutput)
	})
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}
	return r
}

// FilterValue accepts a single filter string or an ordered list.
type FilterValue []string

func (f *FilterValue) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*f = FilterValue{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errors.New("filter must be a string or a list of strings")
	}
	*f = many
	return nil
}

type layerJSON struct {
	Name   string  `json:"name"`
	Scale  float64 `json:"scale"`
	Filter string  `json:"filter"`
}

func toJSON(layers []layer.Layer) []layerJSON {
	out := make([]layerJSON, 0, len(layers))
	for _, l := range layers {
		out = append(out, layerJSON{Name: l.Name, Scale: l.Scale, Filter: l.Filter.String()})
	}
	return out
}

type errorJSON struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("write response failed", slog.String("error", err.Error()))
	}
}

// writeError maps domain errors onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var (
		dup    *layer.DuplicateLayerError
		nf     *layer.NotFoundError
		scale  *layer.InvalidScaleError
		syntax *filter.SyntaxError
	)
	switch {
	case errors.As(err, &dup), errors.Is(err, render.ErrRenderInProgress):
		status = http.StatusConflict
	case errors.As(err, &nf):
		status = http.StatusNotFound
	case errors.As(err, &scale), errors.As(err, &syntax), errors.Is(err, render.ErrInvalidFPS):
		status = http.StatusBadRequest
	case errors.Is(err, eventloop.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", slog.String("error", err.Error()))
	}
	h.writeJSON(w, status, errorJSON{Error: err.Error()})
}

// GetPreview handles GET /preview.png?width=50%.
func (h *Handler) GetPreview(w http.ResponseWriter, r *http.Request) {
	p, err := h.conv.Preview(r.URL.Query().Get("width"))
	if err != nil {
		if errors.Is(err, eventloop.ErrClosed) {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := p.EncodePNG(w); err != nil {
		h.log.Error("encode preview failed", slog.String("error", err.Error()))
	}
}

// ListLayers handles GET /layers.
func (h *Handler) ListLayers(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, toJSON(h.conv.GetLayers()))
}

// GetLayer handles GET /layers/{name}.
func (h *Handler) GetLayer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	l, ok := h.conv.GetLayer(name)
	if !ok {
		h.writeError(w, &layer.NotFoundError{Name: name})
		return
	}
	h.writeJSON(w, http.StatusOK, toJSON([]layer.Layer{l})[0])
}

type addLayerRequest struct {
	Name   string      `json:"name"`
	Scale  *float64    `json:"scale"`
	Filter FilterValue `json:"filter"`
}

// AddLayer handles POST /layers.
// Body: {"name": "bg", "scale": 1.5, "filter": "blur(20px)"}.
func (h *Handler) AddLayer(w http.ResponseWriter, r *http.Request) {
	var req addLayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Scale == nil {
		h.writeJSON(w, http.StatusBadRequest, errorJSON{Error: "name and scale are required"})
		return
	}
	layers, err := h.conv.AddLayer(req.Name, *req.Scale, req.Filter...)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.log.Debug("layer added", slog.String("name", req.Name), slog.Float64("scale", *req.Scale))
	h.writeJSON(w, http.StatusCreated, toJSON(layers))
}

type updateLayerRequest struct {
	Scale  *float64     `json:"scale"`
	Filter *FilterValue `json:"filter"`
}

// UpdateLayer handles PATCH /layers/{name}. Either field may be omitted.
func (h *Handler) UpdateLayer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req updateLayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || (req.Scale == nil && req.Filter == nil) {
		h.writeJSON(w, http.StatusBadRequest, errorJSON{Error: "scale or filter is required"})
		return
	}

	var layers []layer.Layer
	var err error
	if req.Scale != nil {
		if layers, err = h.conv.UpdateLayerScale(name, *req.Scale); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if req.Filter != nil {
		if layers, err = h.conv.UpdateLayerFilter(name, (*req.Filter)...); err != nil {
			h.writeError(w, err)
			return
		}
	}
	h.writeJSON(w, http.StatusOK, toJSON(layers))
}

// RemoveLayer handles DELETE /layers/{name}. Missing layers are not an error.
func (h *Handler) RemoveLayer(w http.ResponseWriter, r *http.Request) {
	layers, err := h.conv.RemoveLayer(chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toJSON(layers))
}

type playbackJSON struct {
	State    types.PlaybackState `json:"state"`
	Position float64             `json:"position"`
	Duration float64             `json:"duration"`
}

func (h *Handler) playback(w http.ResponseWriter, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, playbackJSON{
		State:    h.conv.State(),
		Position: h.conv.Position().Seconds(),
		Duration: h.conv.Duration().Seconds(),
	})
}

// GetPlayback handles GET /playback.
func (h *Handler) GetPlayback(w http.ResponseWriter, r *http.Request) {
	h.playback(w, nil)
}

// Play handles POST /playback/play.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	h.playback(w, h.conv.PreviewPlay())
}

// Pause handles POST /playback/pause.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	h.playback(w, h.conv.PreviewPause())
}

// Reset handles POST /playback/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.playback(w, h.conv.PreviewReset())
}

// Seek handles POST /playback/seek?t=12.5 (seconds).
func (h *Handler) Seek(w http.ResponseWriter, r *http.Request) {
	secs, err := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
	if err != nil || secs < 0 {
		h.writeJSON(w, http.StatusBadRequest, errorJSON{Error: "t must be a non-negative number of seconds"})
		return
	}
	h.playback(w, h.conv.PreviewSeek(time.Duration(secs*float64(time.Second))))
}

type renderJSON struct {
	ID       string  `json:"id"`
	Done     bool    `json:"done"`
	Progress float64 `json:"progress"`
	Size     int     `json:"size,omitempty"`
	MimeType string  `json:"mime_type,omitempty"`
	Error    string  `json:"error,omitempty"`
}

func renderStatus(job *render.Job) renderJSON {
	out := renderJSON{ID: job.ID(), Progress: job.Progress()}
	select {
	case <-job.Done():
		out.Done = true
	default:
		return out
	}
	if o := job.Output(); o != nil {
		out.Size = o.Size()
		out.MimeType = o.MimeType
	}
	if err := job.Err(); err != nil {
		out.Error = err.Error()
	}
	return out
}

// StartRender handles POST /renders?fps=30. The render runs in real time;
// poll GET /renders/{id} and fetch /renders/{id}/output when done.
func (h *Handler) StartRender(w http.ResponseWriter, r *http.Request) {
	fps := 0
	if v := r.URL.Query().Get("fps"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeJSON(w, http.StatusBadRequest, errorJSON{Error: "fps must be a positive integer"})
			return
		}
		fps = n
	}

	job, err := h.conv.Render(fps, func(o *render.Output) {
		h.log.Info("render delivered", slog.Int("bytes", o.Size()))
	}, nil)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.mu.Lock()
	h.jobs[job.ID()] = job
	h.mu.Unlock()

	w.Header().Set("Location", "/renders/"+job.ID())
	h.writeJSON(w, http.StatusAccepted, renderStatus(job))
}

func (h *Handler) job(r *http.Request) (*render.Job, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	job, ok := h.jobs[chi.URLParam(r, "id")]
	return job, ok
}

// GetRender handles GET /renders/{id}.
func (h *Handler) GetRender(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, renderStatus(job))
}

// GetRenderOutput handles GET /renders/{id}/output.
func (h *Handler) GetRenderOutput(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(r)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	out := job.Output()
	if out == nil {
		h.writeJSON(w, http.StatusConflict, renderStatus(job))
		return
	}
	w.Header().Set("Content-Type", out.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="clipnship.webm"`)
	w.Header().Set("Content-Length", strconv.Itoa(out.Size()))
	_, _ = w.Write(out.Data)
}
