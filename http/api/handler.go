// Package api exposes the crop service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/leeforge/mapcrop/crop"
	"github.com/leeforge/mapcrop/http/binding"
	"github.com/leeforge/mapcrop/http/middleware"
	"github.com/leeforge/mapcrop/http/responder"
	"github.com/leeforge/mapcrop/imagestore"
	"github.com/leeforge/mapcrop/logging"
	"github.com/leeforge/mapcrop/metrics"
)

// Cropper produces encoded crops. *crop.Service implements it.
type Cropper interface {
	Crop(ctx context.Context, req crop.Request) (*crop.Result, error)
}

// ImageStore reports on the base image. *imagestore.Store implements it.
type ImageStore interface {
	Info(ctx context.Context) (imagestore.Info, error)
	Loaded() bool
}

type Handler struct {
	cropper   Cropper
	store     ImageStore
	logger    logging.Logger
	collector *metrics.Collector
	cors      middleware.CORSConfig

	maxConcurrent  int
	backlogTimeout time.Duration
}

type Option func(*Handler)

func WithLogger(logger logging.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics records every request and mounts GET /api/metrics.
func WithMetrics(collector *metrics.Collector) Option {
	return func(h *Handler) {
		h.collector = collector
	}
}

func WithCORS(config middleware.CORSConfig) Option {
	return func(h *Handler) {
		h.cors = config
	}
}

// WithMaxConcurrent caps in-flight requests. Excess requests wait up to
// backlogTimeout and are then answered with 429.
func WithMaxConcurrent(limit int, backlogTimeout time.Duration) Option {
	return func(h *Handler) {
		h.maxConcurrent = limit
		h.backlogTimeout = backlogTimeout
	}
}

func NewHandler(cropper Cropper, store ImageStore, opts ...Option) *Handler {
	h := &Handler{
		cropper:        cropper,
		store:          store,
		logger:         logging.NewNop(),
		cors:           middleware.AllowAllCORS(),
		backlogTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes builds the router with the full middleware chain.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.TraceIDMiddleware())
	r.Use(middleware.TimingMiddleware())
	r.Use(logging.RecoveryMiddleware(h.logger))
	r.Use(logging.HTTPMiddleware(h.logger))
	if h.collector != nil {
		r.Use(metrics.Middleware(h.collector))
	}
	r.Use(middleware.CORS(h.cors))
	if h.maxConcurrent > 0 {
		r.Use(chimiddleware.ThrottleBacklog(h.maxConcurrent, h.maxConcurrent*8, h.backlogTimeout))
	}

	r.Get("/healthz", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/crop", h.crop)
		r.Get("/info", h.info)
		if h.collector != nil {
			r.Method(http.MethodGet, "/metrics", metrics.Handler(h.collector))
		}
	})

	return r
}

type cropQuery struct {
	X0    *int `query:"x0" validate:"required,min=0"`
	X1    *int `query:"x1" validate:"required,min=0"`
	Y0    *int `query:"y0" validate:"required,min=0"`
	Y1    *int `query:"y1" validate:"required,min=0"`
	Layer int  `query:"layer" default:"6" validate:"min=1,max=6"`
}

func (q cropQuery) request() crop.Request {
	return crop.Request{X0: *q.X0, X1: *q.X1, Y0: *q.Y0, Y1: *q.Y1, Layer: q.Layer}
}

func (h *Handler) crop(w http.ResponseWriter, r *http.Request) {
	res := h.responder(w, r)

	var q cropQuery
	if err := binding.Query(r, &q); err != nil {
		if h.collector != nil {
			h.collector.RecordRejection("validation")
		}
		res.ValidationError(binding.Details(err), h.meta(r)...)
		return
	}

	out, err := h.cropper.Crop(r.Context(), q.request())
	if err != nil {
		res.Fail(err, h.meta(r)...)
		return
	}

	res.PNG(out.PNG)
}

// InfoResponse describes the base image and the accepted layer range.
type InfoResponse struct {
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	MinLayer     int    `json:"minLayer"`
	MaxLayer     int    `json:"maxLayer"`
	DefaultLayer int    `json:"defaultLayer"`
	Format       string `json:"format"`
}

func (h *Handler) info(w http.ResponseWriter, r *http.Request) {
	res := h.responder(w, r)

	info, err := h.store.Info(r.Context())
	if err != nil {
		res.Fail(err, h.meta(r)...)
		return
	}

	res.OK(InfoResponse{
		Width:        info.Width,
		Height:       info.Height,
		MinLayer:     crop.MinLayer,
		MaxLayer:     crop.MaxLayer,
		DefaultLayer: crop.DefaultLayer,
		Format:       info.Format,
	}, h.meta(r)...)
}

// HealthResponse is served by /healthz. It never loads the image.
type HealthResponse struct {
	Status      string `json:"status"`
	ImageLoaded bool   `json:"imageLoaded"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.responder(w, r).JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		ImageLoaded: h.store.Loaded(),
	})
}

func (h *Handler) responder(w http.ResponseWriter, r *http.Request) *responder.Responder {
	return responder.New(w, r, func(_ http.ResponseWriter, r *http.Request, err error) {
		logging.FromContext(r.Context()).Warn("response write failed", zap.Error(err))
	})
}

func (h *Handler) meta(r *http.Request) []responder.Option {
	return []responder.Option{
		responder.WithTraceID(middleware.GetTraceIDFromRequest(r)),
		responder.WithTook(middleware.GetRequestDurationMillis(r.Context())),
	}
}
