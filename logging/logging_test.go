package logging

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newBufferLogger(level string) (Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cfg := DefaultConfig()
	cfg.Level = level
	return NewWithSyncer(cfg, zapcore.AddSync(buf)), buf
}

func TestConfigTransportLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"unknown", zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := Config{Level: tt.level}
			assert.Equal(t, tt.expected, cfg.TransportLevel())
		})
	}
}

func TestNewLoggerWritesLevelFiles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Director = t.TempDir()
	cfg.LogInTerminal = false
	t.Cleanup(func() { _ = CloseAllWriters() })

	logger := NewLogger(cfg)
	logger.Info("image loaded", zap.Int("width", 1200))
	logger.Error("crop failed")
	require.NoError(t, logger.Sync())

	day := time.Now().Format("2006-01-02")
	info, err := os.ReadFile(filepath.Join(cfg.Director, day, "info.log"))
	require.NoError(t, err)
	assert.Contains(t, string(info), `"width":1200`)
	assert.NotContains(t, string(info), "crop failed")

	errLog, err := os.ReadFile(filepath.Join(cfg.Director, day, "error.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errLog), "crop failed")
}

func TestWithContextAddsTraceID(t *testing.T) {
	logger, buf := newBufferLogger("info")

	ctx := SetTraceID(context.Background(), "trace-123")
	WithContext(logger, ctx).Info("hello")

	assert.Contains(t, buf.String(), `"trace_id":"trace-123"`)
	assert.Equal(t, "trace-123", GetTraceID(ctx))
	assert.Equal(t, "", GetTraceID(context.Background()))
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	logger, _ := newBufferLogger("info")
	ctx := ToContext(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestHTTPMiddlewareLogsStatus(t *testing.T) {
	logger, buf := newBufferLogger("info")

	handler := HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotNil(t, FromContext(r.Context()))
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/crop?x0=1", nil))

	out := buf.String()
	assert.Contains(t, out, `"message":"http.request.complete"`)
	assert.Contains(t, out, `"status":400`)
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"bytes":3`)
	assert.NotContains(t, out, "http.request.start")
}

func TestRecoveryMiddleware(t *testing.T) {
	logger, buf := newBufferLogger("info")

	handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("decoder exploded")
	}))

	rr := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/crop", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.True(t, strings.Contains(buf.String(), "decoder exploded"))
}
