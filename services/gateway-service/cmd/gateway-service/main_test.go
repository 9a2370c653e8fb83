package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

func newGateway(t *testing.T, upstream http.Handler) http.Handler {
	t.Helper()
	backend := httptest.NewServer(upstream)
	t.Cleanup(backend.Close)
	u, err := url.Parse(backend.URL)
	if err != nil {
		t.Fatalf("parse upstream url: %v", err)
	}
	mux := http.NewServeMux()
	registerRoutes(mux, u, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return mux
}

func TestProxiesPublicRoutes(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	h := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.RequestURI())
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))

	paths := []string{
		"/api/v1/availability/slots?businessId=b1&serviceId=s1&startDate=2026-10-19",
		"/api/v1/resource-map/b1/availability?scheduledAt=2026-10-19T10:00:00Z",
		"/api/v1/bookings",
	}
	for _, p := range paths {
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, p, nil))
		if rw.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", p, rw.Code)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(paths) || seen[0] != "GET "+paths[0] {
		t.Fatalf("unexpected upstream requests: %v", seen)
	}
}

func TestInternalRoutesNotExposed(t *testing.T) {
	h := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatalf("internal route reached upstream")
	}))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodPut, "/internal/v1/businesses/b1", nil))
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestUpstreamDownIsBadGateway(t *testing.T) {
	u, _ := url.Parse("http://127.0.0.1:1")
	mux := http.NewServeMux()
	registerRoutes(mux, u, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil))
	if rw.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rw.Code)
	}
}
