// Package crop cuts rectangles out of the base image and downsamples them.
package crop

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	apperrors "github.com/leeforge/mapcrop/errors"
	"github.com/leeforge/mapcrop/logging"
	"github.com/leeforge/mapcrop/metrics"
)

// ImageSource yields the base image. *imagestore.Store implements it.
type ImageSource interface {
	Get(ctx context.Context) (image.Image, error)
}

// Request is a crop rectangle [X0,X1)×[Y0,Y1) at a detail layer.
// Layer 0 selects DefaultLayer.
type Request struct {
	X0    int
	X1    int
	Y0    int
	Y1    int
	Layer int
}

// Result is an encoded crop.
type Result struct {
	PNG    []byte
	Width  int
	Height int
	Layer  int
	Stride int
}

type Service struct {
	source      ImageSource
	logger      logging.Logger
	collector   *metrics.Collector
	compression png.CompressionLevel
	formatter   *apperrors.ErrorFormatter

	// extractMu serializes reads of the shared base image.
	extractMu sync.Mutex
}

type Option func(*Service)

func WithLogger(logger logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Service) {
		s.collector = collector
	}
}

func WithCompression(level png.CompressionLevel) Option {
	return func(s *Service) {
		s.compression = level
	}
}

func NewService(source ImageSource, opts ...Option) *Service {
	s := &Service{
		source:      source,
		logger:      logging.NewNop(),
		compression: png.DefaultCompression,
		formatter:   apperrors.NewErrorFormatter(true, true),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("crop")
	return s
}

// ParseCompression maps a config name onto a PNG compression level.
func ParseCompression(name string) (png.CompressionLevel, error) {
	switch name {
	case "", "default":
		return png.DefaultCompression, nil
	case "none":
		return png.NoCompression, nil
	case "fast":
		return png.BestSpeed, nil
	case "best":
		return png.BestCompression, nil
	default:
		return png.DefaultCompression, fmt.Errorf("unknown png compression %q", name)
	}
}

// Crop validates req, cuts the region and returns it as PNG.
func (s *Service) Crop(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	res, err := s.crop(ctx, req)
	if err != nil {
		s.reject(ctx, req, err)
		return nil, err
	}

	took := time.Since(start)
	if s.collector != nil {
		s.collector.RecordCrop(res.Layer, took, len(res.PNG))
	}
	logging.WithContext(s.logger, ctx).Debug("crop served",
		zap.Int("x0", req.X0), zap.Int("x1", req.X1),
		zap.Int("y0", req.Y0), zap.Int("y1", req.Y1),
		zap.Int("layer", res.Layer),
		zap.Int("width", res.Width), zap.Int("height", res.Height),
		zap.Int("bytes", len(res.PNG)),
		zap.Duration("took", took),
	)
	return res, nil
}

func (s *Service) crop(ctx context.Context, req Request) (*Result, error) {
	layer := req.Layer
	if layer == 0 {
		layer = DefaultLayer
	}
	if !ValidLayer(layer) {
		return nil, apperrors.NewValidation(
			fmt.Sprintf("layer must be between %d and %d", MinLayer, MaxLayer)).
			WithDetail("layer", req.Layer)
	}
	if req.X0 < 0 || req.Y0 < 0 {
		return nil, apperrors.NewValidation("coordinates must not be negative")
	}
	if req.X0 >= req.X1 || req.Y0 >= req.Y1 {
		return nil, apperrors.NewInvalidRegion()
	}

	base, err := s.source.Get(ctx)
	if err != nil {
		return nil, err
	}

	bounds := base.Bounds()
	if req.X1 > bounds.Dx() || req.Y1 > bounds.Dy() {
		return nil, apperrors.NewOutOfBounds(bounds.Dx(), bounds.Dy())
	}

	rect := image.Rect(req.X0, req.Y0, req.X1, req.Y1).Add(bounds.Min)
	region := s.extract(base, rect)

	out := region
	if stride := Stride(layer); stride > 1 {
		w, h := OutputSize(rect.Dx(), rect.Dy(), layer)
		out = imaging.Resize(region, w, h, imaging.NearestNeighbor)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG, imaging.PNGCompressionLevel(s.compression)); err != nil {
		return nil, apperrors.NewInternal("failed to encode crop", err)
	}

	return &Result{
		PNG:    buf.Bytes(),
		Width:  out.Bounds().Dx(),
		Height: out.Bounds().Dy(),
		Layer:  layer,
		Stride: Stride(layer),
	}, nil
}

// extract copies rect out of base while holding the extraction lock.
func (s *Service) extract(base image.Image, rect image.Rectangle) *image.NRGBA {
	s.extractMu.Lock()
	defer s.extractMu.Unlock()

	return imaging.Crop(base, rect)
}

func (s *Service) reject(ctx context.Context, req Request, err error) {
	appErr := apperrors.FromError(err)
	if s.collector != nil {
		s.collector.RecordRejection(string(appErr.Type))
	}

	log := logging.WithContext(s.logger, ctx).With(
		zap.Int("x0", req.X0), zap.Int("x1", req.X1),
		zap.Int("y0", req.Y0), zap.Int("y1", req.Y1),
		zap.Int("layer", req.Layer),
		zap.String("reason", string(appErr.Type)),
	)
	if apperrors.HTTPStatus(appErr) >= 500 {
		log.Error("crop failed", zap.String("error", s.formatter.Format(err)))
		return
	}
	log.Info("crop rejected", zap.String("detail", appErr.Message))
}
