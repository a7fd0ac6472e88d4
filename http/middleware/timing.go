package middleware

import (
	"context"
	"net/http"
	"time"
)

type timingContextKey string

// StartTimeKey is the key for request start time in context
const StartTimeKey timingContextKey = "start_time"

// TimingMiddleware records request start time for calculating processing duration
func TimingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), StartTimeKey, time.Now())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestDuration returns the time elapsed since the request entered TimingMiddleware.
func GetRequestDuration(ctx context.Context) time.Duration {
	if startTime, ok := ctx.Value(StartTimeKey).(time.Time); ok {
		return time.Since(startTime)
	}
	return 0
}

// GetRequestDurationMillis is GetRequestDuration in whole milliseconds.
func GetRequestDurationMillis(ctx context.Context) int64 {
	return GetRequestDuration(ctx).Milliseconds()
}
