package httpx

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy defines the CORS headers to emit for matching origins.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// WithCORS answers browser preflights at the edge so they never reach an upstream
// that does not route OPTIONS. A preflight from an unknown origin, or for a method
// outside AllowedMethods, gets a bare 204 without CORS headers and the browser
// blocks the real request. An empty AllowedOrigins disables the middleware.
func WithCORS(cfg CORSPolicy) Middleware {
	origins := normalizeList(cfg.AllowedOrigins)
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	methods := normalizeList(cfg.AllowedMethods)
	for i, m := range methods {
		methods[i] = strings.ToUpper(m)
	}

	static := http.Header{}
	setJoined(static, "Access-Control-Allow-Methods", methods)
	setJoined(static, "Access-Control-Allow-Headers", normalizeList(cfg.AllowedHeaders))
	setJoined(static, "Access-Control-Expose-Headers", normalizeList(cfg.ExposedHeaders))
	if cfg.AllowCredentials {
		static.Set("Access-Control-Allow-Credentials", "true")
	}
	if secs := int(cfg.MaxAge.Seconds()); secs > 0 {
		static.Set("Access-Control-Max-Age", strconv.Itoa(secs))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			requested := strings.ToUpper(r.Header.Get("Access-Control-Request-Method"))
			preflight := r.Method == http.MethodOptions && origin != "" && requested != ""

			if origin != "" {
				w.Header().Add("Vary", "Origin")
			}
			allowOrigin, ok := matchOrigin(origin, origins, cfg.AllowCredentials)
			if ok && preflight && len(methods) > 0 && !slices.Contains(methods, requested) {
				ok = false
			}
			if ok {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", allowOrigin)
				for k, v := range static {
					h[k] = v
				}
			}
			if preflight {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setJoined(h http.Header, key string, values []string) {
	if len(values) > 0 {
		h.Set(key, strings.Join(values, ", "))
	}
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// matchOrigin returns the Allow-Origin value for origin. A wildcard echoes the
// origin when credentials are allowed, since browsers reject "*" with credentials.
func matchOrigin(origin string, allowed []string, allowCredentials bool) (string, bool) {
	if origin == "" {
		return "", false
	}
	for _, candidate := range allowed {
		switch {
		case candidate == "*" && allowCredentials:
			return origin, true
		case candidate == "*":
			return "*", true
		case strings.EqualFold(candidate, origin):
			return origin, true
		}
	}
	return "", false
}
