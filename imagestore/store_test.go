package imagestore

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	apperrors "github.com/leeforge/mapcrop/errors"
	"github.com/leeforge/mapcrop/logging"
	"github.com/leeforge/mapcrop/metrics"
)

func writeImage(t *testing.T, dir, name string, w, h int, fill color.NRGBA) string {
	t.Helper()
	img := imaging.New(w, h, fill)
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(img, path))
	return path
}

func countingDecoder(calls *atomic.Int64) DecodeFunc {
	return func(r io.Reader) (image.Image, error) {
		calls.Add(1)
		return DefaultDecode(r)
	}
}

func TestGetLoadsOnceAndCaches(t *testing.T) {
	path := writeImage(t, t.TempDir(), "world.png", 40, 30, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	var calls atomic.Int64
	store := New(path, WithDecoder(countingDecoder(&calls)))

	assert.False(t, store.Loaded())

	first, err := store.Get(context.Background())
	require.NoError(t, err)
	second, err := store.Get(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), calls.Load())
	assert.True(t, store.Loaded())
	assert.Equal(t, image.Rect(0, 0, 40, 30), first.Bounds())
}

func TestConcurrentFirstLoadDecodesOnce(t *testing.T) {
	path := writeImage(t, t.TempDir(), "world.png", 64, 64, color.NRGBA{R: 1, A: 255})
	var calls atomic.Int64
	store := New(path, WithDecoder(countingDecoder(&calls)))

	const workers = 32
	results := make([]image.Image, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			img, err := store.Get(context.Background())
			assert.NoError(t, err)
			results[i] = img
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
	for _, img := range results {
		assert.Same(t, results[0], img)
	}
}

func TestMissingFileIsConfigurationErrorAndNotCached(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "base-world.png")
	store := New(path)

	_, err := store.Get(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	assert.Contains(t, err.Error(), path)
	assert.False(t, store.Loaded())

	writeImage(t, dir, "base-world.png", 8, 8, color.NRGBA{A: 255})

	img, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
}

func TestUndecodableFileIsConfigurationError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, writeBytes(path, []byte("not an image")))

	err := New(path).Preload(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestAlphaIsDropped(t *testing.T) {
	path := writeImage(t, t.TempDir(), "alpha.png", 4, 4, color.NRGBA{R: 200, G: 100, B: 50, A: 128})

	img, err := New(path).Get(context.Background())
	require.NoError(t, err)

	nrgba, ok := img.(*image.NRGBA)
	require.True(t, ok)
	c := nrgba.NRGBAAt(2, 2)
	assert.Equal(t, color.NRGBA{R: 200, G: 100, B: 50, A: 255}, c)
}

func TestInfoAndLogging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	path := writeImage(t, t.TempDir(), "world.jpg", 120, 80, color.NRGBA{G: 255, A: 255})
	store := New(path, WithLogger(logging.FromZap(zap.New(core))))

	require.NoError(t, store.Preload(context.Background()))
	info, err := store.Info(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 120, info.Width)
	assert.Equal(t, 80, info.Height)
	assert.Equal(t, "jpeg", info.Format)
	assert.Equal(t, path, info.Path)
	assert.False(t, info.LoadedAt.IsZero())

	entries := logs.FilterMessage("base image loaded").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(120), entries[0].ContextMap()["width"])
}

func TestCancelledContextBeforeLoad(t *testing.T) {
	path := writeImage(t, t.TempDir(), "world.png", 4, 4, color.NRGBA{A: 255})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(path).Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func writeBytes(path string, b []byte) error {
	return os.WriteFile(path, b, 0o644)
}

// exifOrientation builds an APP1 segment carrying only an Orientation tag.
func exifOrientation(orientation uint16) []byte {
	tiff := []byte{
		'M', 'M', 0x00, 0x2a, 0x00, 0x00, 0x00, 0x08, // big-endian header, IFD at 8
		0x00, 0x01, // one entry
		0x01, 0x12, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01, // Orientation, SHORT, count 1
		byte(orientation >> 8), byte(orientation), 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, // no next IFD
	}
	payload := append([]byte("Exif\x00\x00"), tiff...)
	size := len(payload) + 2
	return append([]byte{0xff, 0xe1, byte(size >> 8), byte(size)}, payload...)
}

func writeRotatedJPEG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 90, A: 255}), nil))
	raw := buf.Bytes()

	out := append([]byte{}, raw[:2]...)
	out = append(out, exifOrientation(6)...)
	out = append(out, raw[2:]...)

	path := filepath.Join(dir, "base-world.jpg")
	require.NoError(t, writeBytes(path, out))
	return path
}

func TestExifOrientationIsIgnored(t *testing.T) {
	path := writeRotatedJPEG(t, t.TempDir(), 120, 80)

	rotated, err := imaging.Open(path, imaging.AutoOrientation(true))
	require.NoError(t, err)
	require.Equal(t, 80, rotated.Bounds().Dx(), "fixture must carry a rotating orientation tag")

	info, err := New(path).Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 120, info.Width)
	assert.Equal(t, 80, info.Height)
}

func TestLoadGauge(t *testing.T) {
	dir := t.TempDir()
	collector := metrics.NewCollector()
	store := New(filepath.Join(dir, "base-world.png"), WithMetrics(collector))

	require.Error(t, store.Preload(context.Background()))
	gauge, ok := collector.GetMetric("base_image_loaded", nil)
	require.True(t, ok)
	assert.Equal(t, float64(0), gauge.Value)

	writeImage(t, dir, "base-world.png", 8, 8, color.NRGBA{A: 255})
	require.NoError(t, store.Preload(context.Background()))

	gauge, _ = collector.GetMetric("base_image_loaded", nil)
	assert.Equal(t, float64(1), gauge.Value)
	assert.Equal(t, float64(1), collector.Total("base_image_load_seconds"))
}
