package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestTraceIDMiddlewareGeneratesID(t *testing.T) {
	var seen string
	handler := TraceIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetTraceIDFromRequest(r)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/crop", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get(TraceIDHeader))
}

func TestTraceIDMiddlewareReusesHeader(t *testing.T) {
	var seen string
	handler := TraceIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetTraceIDFromRequest(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/crop", nil)
	req.Header.Set(TraceIDHeader, "abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "abc", seen)
}

func TestTimingMiddleware(t *testing.T) {
	var elapsed time.Duration
	handler := TimingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Millisecond)
		elapsed = GetRequestDuration(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.GreaterOrEqual(t, elapsed, 2*time.Millisecond)
}

func TestCORSAllowAllEchoesOriginWithCredentials(t *testing.T) {
	handler := CORS(AllowAllCORS())(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/crop", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "Origin", rr.Header().Get("Vary"))
}

func TestCORSPreflight(t *testing.T) {
	called := false
	handler := CORS(AllowAllCORS())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/crop", nil)
	req.Header.Set("Origin", "https://maps.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	req.Header.Set("Access-Control-Request-Headers", "X-Trace-ID")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "GET", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "X-Trace-ID", rr.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", rr.Header().Get("Access-Control-Max-Age"))
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	cfg := AllowAllCORS()
	cfg.AllowCredentials = false
	handler := CORS(cfg)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/crop", nil)
	req.Header.Set("Origin", "http://a.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSRestrictedOrigins(t *testing.T) {
	cfg := CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://maps.example.com"},
		AllowedMethods: []string{"GET"},
	}
	handler := CORS(cfg)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/crop", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/crop", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCORSDisabled(t *testing.T) {
	handler := CORS(CORSConfig{})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://a.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}
