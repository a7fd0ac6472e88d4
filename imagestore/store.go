// Package imagestore holds the base image that every crop is cut from.
package imagestore

import (
	"context"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	apperrors "github.com/leeforge/mapcrop/errors"
	"github.com/leeforge/mapcrop/logging"
	"github.com/leeforge/mapcrop/metrics"
)

// DecodeFunc turns an encoded image stream into pixels.
type DecodeFunc func(r io.Reader) (image.Image, error)

// DefaultDecode decodes any registered format. The stored pixel grid is used
// as is; EXIF orientation is ignored so crop coordinates address raw pixels.
func DefaultDecode(r io.Reader) (image.Image, error) {
	return imaging.Decode(r)
}

// Info describes the loaded base image.
type Info struct {
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Path     string        `json:"path"`
	Format   string        `json:"format"`
	LoadedAt time.Time     `json:"loadedAt"`
	LoadTook time.Duration `json:"loadTook"`
}

type loaded struct {
	pixels *image.NRGBA
	info   Info
}

// Store lazily loads the base image once and shares it read-only.
type Store struct {
	path      string
	logger    logging.Logger
	decode    DecodeFunc
	collector *metrics.Collector

	mu  sync.Mutex
	img atomic.Pointer[loaded]
}

type Option func(*Store)

func WithLogger(logger logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics publishes the base_image_loaded gauge and load timings.
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Store) {
		s.collector = collector
	}
}

func WithDecoder(decode DecodeFunc) Option {
	return func(s *Store) {
		if decode != nil {
			s.decode = decode
		}
	}
}

// New creates a Store for the image at path. Nothing is read until first use.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		logger: logging.NewNop(),
		decode: DefaultDecode,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("imagestore")
	return s
}

// Get returns the base image, loading it on first call. The returned image
// must not be modified. A failed load is not cached.
func (s *Store) Get(ctx context.Context) (image.Image, error) {
	l, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return l.pixels, nil
}

// Info returns the dimensions and metadata of the base image, loading it if needed.
func (s *Store) Info(ctx context.Context) (Info, error) {
	l, err := s.load(ctx)
	if err != nil {
		return Info{}, err
	}
	return l.info, nil
}

// Preload loads the image eagerly.
func (s *Store) Preload(ctx context.Context) error {
	_, err := s.load(ctx)
	return err
}

// Loaded reports whether the image has been loaded.
func (s *Store) Loaded() bool {
	return s.img.Load() != nil
}

func (s *Store) load(ctx context.Context) (*loaded, error) {
	if l := s.img.Load(); l != nil {
		return l, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if l := s.img.Load(); l != nil {
		return l, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewInternal("image load cancelled", err)
	}

	l, err := s.read()
	if err != nil {
		s.setLoaded(false)
		s.logger.Error("base image load failed", zap.String("path", s.path), zap.Error(err))
		return nil, err
	}

	s.img.Store(l)
	s.setLoaded(true)
	if s.collector != nil {
		s.collector.ObserveHistogram("base_image_load_seconds", l.info.LoadTook.Seconds(), nil)
	}
	s.logger.Info("base image loaded",
		zap.String("path", s.path),
		zap.String("format", l.info.Format),
		zap.Int("width", l.info.Width),
		zap.Int("height", l.info.Height),
		zap.Duration("took", l.info.LoadTook),
	)
	return l, nil
}

func (s *Store) setLoaded(ok bool) {
	if s.collector == nil {
		return
	}
	v := 0.0
	if ok {
		v = 1
	}
	s.collector.SetGauge("base_image_loaded", v, nil)
}

func (s *Store) read() (*loaded, error) {
	start := time.Now()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewConfiguration("base image not found at "+s.path, err).
				WithDetail("path", s.path)
		}
		return nil, apperrors.NewConfiguration("base image cannot be opened", err).
			WithDetail("path", s.path)
	}
	defer f.Close()

	src, err := s.decode(f)
	if err != nil {
		return nil, apperrors.NewConfiguration("base image cannot be decoded", err).
			WithDetail("path", s.path)
	}

	pixels := toRGB(src)
	bounds := pixels.Bounds()
	return &loaded{
		pixels: pixels,
		info: Info{
			Width:    bounds.Dx(),
			Height:   bounds.Dy(),
			Path:     s.path,
			Format:   formatOf(s.path),
			LoadedAt: time.Now(),
			LoadTook: time.Since(start),
		},
	}, nil
}

// toRGB copies src into a zero-origin NRGBA bitmap and makes every pixel opaque.
// Color channels are left untouched.
func toRGB(src image.Image) *image.NRGBA {
	dst := imaging.Clone(src)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

func formatOf(path string) string {
	if f, err := imaging.FormatFromFilename(path); err == nil {
		return strings.ToLower(f.String())
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
