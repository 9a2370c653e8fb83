package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/bookpro/libs/httpx"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/bookings"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
)

// CreateBooking answers 201 for a new booking and 200 when an Idempotency-Key replays an earlier one.
func (a *API) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req bookings.CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(key) > 200 {
		badRequest(w, "Idempotency-Key is too long")
		return
	}
	b, replayed, err := a.Bookings.Create(r.Context(), req, key)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
		w.Header().Set("Idempotent-Replayed", "true")
	}
	httpx.WriteJSON(w, status, b)
}

type listBookingsResponse struct {
	Items []model.Booking `json:"items"`
}

func (a *API) ListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.BookingFilter{
		BusinessID: strings.TrimSpace(q.Get("businessId")),
		Status:     model.BookingStatus(strings.ToLower(strings.TrimSpace(q.Get("status")))),
	}
	var err error
	if raw := q.Get("from"); raw != "" {
		if f.From, err = parseInstant(raw, "from"); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if f.To, err = parseInstant(raw, "to"); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if f.Limit, err = strconv.Atoi(raw); err != nil || f.Limit < 0 {
			badRequest(w, "invalid limit")
			return
		}
	}
	items, err := a.Bookings.List(r.Context(), f)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, listBookingsResponse{Items: items})
}

func (a *API) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := a.Bookings.Get(r.Context(), r.PathValue("bookingId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

func (a *API) transition(fn func(context.Context, string) (model.Booking, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fn(r.Context(), r.PathValue("bookingId"))
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, b)
	}
}
