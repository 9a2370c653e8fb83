package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/bookpro/libs/httpx"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
)

func (a *API) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, err := entityKey(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	serviceID := strings.TrimSpace(q.Get("serviceId"))
	if serviceID == "" {
		badRequest(w, "serviceId is required")
		return
	}
	start, err := model.ParseDate(q.Get("startDate"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	end := start
	if raw := q.Get("endDate"); raw != "" {
		if end, err = model.ParseDate(raw); err != nil {
			a.writeError(w, r, err)
			return
		}
	}

	days, err := a.Engine.ComputeSlots(r.Context(), availability.Query{
		BusinessID: key.BusinessID,
		ServiceID:  serviceID,
		Entity:     key.EntityType,
		EntityID:   key.EntityID,
		StartDate:  start,
		EndDate:    end,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, days)
}

func (a *API) GetTemplate(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	tmpl, err := a.Schedule.GetTemplate(r.Context(), key)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tmpl)
}

func (a *API) PutTemplate(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var tmpl model.AvailabilityTemplate
	if err := httpx.DecodeJSON(r, &tmpl); err != nil {
		badRequest(w, err.Error())
		return
	}
	tmpl.EntityKey = key
	saved, err := a.Schedule.PutTemplate(r.Context(), tmpl)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, saved)
}

func (a *API) GetWeek(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	week, err := a.Schedule.GetWeek(r.Context(), key, r.URL.Query().Get("weekStart"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, week)
}

func (a *API) PutWeek(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var week model.WeekOverride
	if err := httpx.DecodeJSON(r, &week); err != nil {
		badRequest(w, err.Error())
		return
	}
	week.EntityKey = key
	if ws := r.URL.Query().Get("weekStart"); ws != "" {
		if week.WeekStartDate != "" && week.WeekStartDate != ws {
			badRequest(w, fmt.Sprintf("weekStart %s does not match body weekStartDate %s", ws, week.WeekStartDate))
			return
		}
		week.WeekStartDate = ws
	}
	saved, err := a.Schedule.PutWeek(r.Context(), week)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, saved)
}

type copyWeekRequest struct {
	model.EntityKey
	FromWeekStart string `json:"fromWeekStart"`
	ToWeekStart   string `json:"toWeekStart"`
}

func (a *API) CopyWeek(w http.ResponseWriter, r *http.Request) {
	var req copyWeekRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	key, err := normalizeKey(req.EntityKey)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	week, err := a.Schedule.CopyWeek(r.Context(), key, req.FromWeekStart, req.ToWeekStart)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, week)
}

type resetWeekRequest struct {
	model.EntityKey
	WeekStart string `json:"weekStart"`
}

func (a *API) ResetWeek(w http.ResponseWriter, r *http.Request) {
	var req resetWeekRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	key, err := normalizeKey(req.EntityKey)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	week, err := a.Schedule.ResetWeek(r.Context(), key, req.WeekStart)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, week)
}

// normalizeKey defaults an empty entityType to BUSINESS for JSON bodies.
func normalizeKey(key model.EntityKey) (model.EntityKey, error) {
	entity, err := model.ParseEntityType(string(key.EntityType))
	if err != nil {
		return model.EntityKey{}, err
	}
	key.EntityType = entity
	key.BusinessID = strings.TrimSpace(key.BusinessID)
	key.EntityID = strings.TrimSpace(key.EntityID)
	return key, key.Validate()
}
