package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig controls cross-origin access. "*" in a list allows everything.
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled" yaml:"enabled" default:"true"`
	AllowedOrigins   []string `mapstructure:"allowed-origins" yaml:"allowed-origins" default:"[\"*\"]"`
	AllowedMethods   []string `mapstructure:"allowed-methods" yaml:"allowed-methods" default:"[\"*\"]"`
	AllowedHeaders   []string `mapstructure:"allowed-headers" yaml:"allowed-headers" default:"[\"*\"]"`
	AllowCredentials bool     `mapstructure:"allow-credentials" yaml:"allow-credentials" default:"true"`
	MaxAge           int      `mapstructure:"max-age" yaml:"max-age" default:"600"`
}

// AllowAllCORS permits any origin, method and header, with credentials.
func AllowAllCORS() CORSConfig {
	return CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"*"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           600,
	}
}

// CORS answers preflight requests and decorates actual responses.
// Requests from disallowed origins pass through without CORS headers, so the
// browser blocks them.
func CORS(config CORSConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !config.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowOrigin, ok := config.allowOrigin(origin)
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			h := w.Header()
			h.Add("Vary", "Origin")
			if !ok {
				if preflight {
					http.Error(w, "Disallowed CORS origin", http.StatusBadRequest)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", allowOrigin)
			if config.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if !preflight {
				next.ServeHTTP(w, r)
				return
			}

			reqMethod := r.Header.Get("Access-Control-Request-Method")
			if contains(config.AllowedMethods, "*") {
				h.Set("Access-Control-Allow-Methods", reqMethod)
			} else {
				h.Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
			}

			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				if contains(config.AllowedHeaders, "*") {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
				} else {
					h.Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
				}
			}
			if config.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
			}
			w.WriteHeader(http.StatusOK)
		})
	}
}

// allowOrigin returns the value for Access-Control-Allow-Origin.
// Browsers reject "*" on credentialed requests, so the origin is echoed instead.
func (c CORSConfig) allowOrigin(origin string) (string, bool) {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			if c.AllowCredentials {
				return origin, true
			}
			return "*", true
		}
		if strings.EqualFold(o, origin) {
			return origin, true
		}
	}
	return "", false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
