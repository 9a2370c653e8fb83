// Package handlers exposes the scheduling core over HTTP.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bookpro/libs/httpx"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/bookings"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/catalog"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/holds"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/resourcemap"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/schedule"
)

// SessionLimiter throttles hold attempts per booking session.
// *httpx.RedisRateLimiter satisfies it; LocalLimiter adapts the in-process limiter.
type SessionLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type LocalLimiter struct {
	*httpx.RateLimiter
}

func (l LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.RateLimiter.Allow(key), nil
}

type API struct {
	Engine    *availability.Engine
	Schedule  *schedule.Service
	Resources *resourcemap.Service
	Holds     *holds.Manager
	Bookings  *bookings.Service
	Catalog   *catalog.Service
	Logger    *slog.Logger
	// HoldLimiter is optional.
	HoldLimiter SessionLimiter
}

// Register mounts every route on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/availability/slots", a.Slots)
	mux.HandleFunc("GET /api/v1/availability/template", a.GetTemplate)
	mux.HandleFunc("PUT /api/v1/availability/template", a.PutTemplate)
	mux.HandleFunc("GET /api/v1/availability/week", a.GetWeek)
	mux.HandleFunc("PUT /api/v1/availability/week", a.PutWeek)
	mux.HandleFunc("POST /api/v1/availability/week/copy", a.CopyWeek)
	mux.HandleFunc("POST /api/v1/availability/week/reset", a.ResetWeek)

	mux.HandleFunc("GET /api/v1/resource-map/{businessId}", a.GetResourceMap)
	mux.HandleFunc("PUT /api/v1/resource-map/{businessId}", a.PutResourceMap)
	mux.HandleFunc("GET /api/v1/resource-map/{businessId}/availability", a.ResourceAvailability)
	mux.HandleFunc("POST /api/v1/resource-map/hold", a.CreateHold)
	mux.HandleFunc("DELETE /api/v1/resource-map/hold", a.ReleaseHold)

	mux.HandleFunc("POST /api/v1/bookings", a.CreateBooking)
	mux.HandleFunc("GET /api/v1/bookings", a.ListBookings)
	mux.HandleFunc("GET /api/v1/bookings/{bookingId}", a.GetBooking)
	mux.HandleFunc("POST /api/v1/bookings/{bookingId}/confirm", a.transition(a.Bookings.Confirm))
	mux.HandleFunc("POST /api/v1/bookings/{bookingId}/cancel", a.transition(a.Bookings.Cancel))
	mux.HandleFunc("POST /api/v1/bookings/{bookingId}/complete", a.transition(a.Bookings.Complete))

	mux.HandleFunc("PUT /internal/v1/businesses/{businessId}", a.PutBusiness)
	mux.HandleFunc("PUT /internal/v1/services/{serviceId}", a.PutService)
}

// writeError maps the domain error taxonomy onto HTTP statuses. Anything
// unclassified is logged and reported as a bare 500.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		httpx.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, model.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, model.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, model.ErrExpired):
		httpx.WriteError(w, http.StatusGone, "EXPIRED", err.Error())
	default:
		httpx.LoggerFromContext(r.Context(), a.Logger).Error("request failed", "path", r.URL.Path, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	httpx.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", msg)
}

// entityKey reads businessId, entityType and entityId from the query string.
func entityKey(r *http.Request) (model.EntityKey, error) {
	q := r.URL.Query()
	entity, err := model.ParseEntityType(q.Get("entityType"))
	if err != nil {
		return model.EntityKey{}, err
	}
	key := model.EntityKey{
		BusinessID: strings.TrimSpace(q.Get("businessId")),
		EntityType: entity,
		EntityID:   strings.TrimSpace(q.Get("entityId")),
	}
	return key, key.Validate()
}

func parseInstant(raw, name string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, errors.New("invalid " + name + ", expected RFC3339")
	}
	return t, nil
}
