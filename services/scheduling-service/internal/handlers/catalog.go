package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/bookpro/libs/httpx"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
)

type businessRequest struct {
	Name               string                      `json:"name"`
	Timezone           string                      `json:"timezone"`
	Capacity           model.BookingCapacityConfig `json:"bookingCapacityConfig"`
	MinLeadTimeMinutes int                         `json:"minLeadTimeMinutes"`
	RequiresPayment    bool                        `json:"requiresPayment"`
}

// PutBusiness is the synchronous counterpart of the business profile events.
func (a *API) PutBusiness(w http.ResponseWriter, r *http.Request) {
	var req businessRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	b, err := a.Catalog.ApplyBusiness(r.Context(), model.Business{
		ID:                 r.PathValue("businessId"),
		Name:               req.Name,
		Timezone:           req.Timezone,
		Capacity:           req.Capacity,
		MinLeadTimeMinutes: req.MinLeadTimeMinutes,
		RequiresPayment:    req.RequiresPayment,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

type serviceRequest struct {
	BusinessID       string `json:"businessId"`
	Name             string `json:"name"`
	DurationMinutes  int    `json:"durationMinutes"`
	RequiresResource bool   `json:"requiresResource"`
	Active           *bool  `json:"active"`
}

func (a *API) PutService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	svc, err := a.Catalog.ApplyService(r.Context(), model.Service{
		ID:               r.PathValue("serviceId"),
		BusinessID:       req.BusinessID,
		Name:             req.Name,
		DurationMinutes:  req.DurationMinutes,
		RequiresResource: req.RequiresResource,
		Active:           req.Active == nil || *req.Active,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, svc)
}
