package handlers

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/bookpro/libs/httpx"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/holds"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
)

func (a *API) GetResourceMap(w http.ResponseWriter, r *http.Request) {
	m, err := a.Resources.Get(r.Context(), r.PathValue("businessId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, m)
}

func (a *API) PutResourceMap(w http.ResponseWriter, r *http.Request) {
	var m model.ResourceMap
	if err := httpx.DecodeJSON(r, &m); err != nil {
		badRequest(w, err.Error())
		return
	}
	m.BusinessID = r.PathValue("businessId")
	saved, err := a.Resources.Put(r.Context(), m)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, saved)
}

func (a *API) ResourceAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	at, err := parseInstant(q.Get("scheduledAt"), "scheduledAt")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	out, err := a.Holds.GetAvailability(r.Context(), r.PathValue("businessId"), strings.TrimSpace(q.Get("serviceId")), at, strings.TrimSpace(q.Get("sessionId")))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (a *API) CreateHold(w http.ResponseWriter, r *http.Request) {
	var req holds.CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if a.HoldLimiter != nil && req.SessionID != "" {
		ok, err := a.HoldLimiter.Allow(r.Context(), req.BusinessID+":"+req.SessionID)
		if err != nil {
			httpx.LoggerFromContext(r.Context(), a.Logger).Warn("hold rate limiter unavailable", "err", err)
		} else if !ok {
			httpx.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many hold attempts for this session")
			return
		}
	}
	h, err := a.Holds.CreateHold(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, h)
}

func (a *API) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	var req holds.ReleaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if _, err := a.Holds.ReleaseHold(r.Context(), req); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
