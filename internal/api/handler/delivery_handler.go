package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/notifyhub/gyre/internal/domain"
	"github.com/notifyhub/gyre/internal/service"
)

// DeliveryHandler reads the webhook delivery log.
type DeliveryHandler struct {
	svc *service.ProjectionService
}

func NewDeliveryHandler(svc *service.ProjectionService) *DeliveryHandler {
	return &DeliveryHandler{svc: svc}
}

// List handles GET /api/v1/deliveries
//
// @Summary  List webhook deliveries with filtering and pagination
// @Tags     deliveries
// @Produce  json
// @Param    status      query     string  false  "pending, sent or failed"
// @Param    projection  query     string  false  "Projection id"
// @Param    listener    query     int     false  "Listener handle"
// @Param    page        query     int     false  "Page number (default 1)"
// @Param    limit       query     int     false  "Items per page (default 20, max 100)"
// @Success  200         {object}  map[string]any
// @Router   /api/v1/deliveries [get]
func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := parseDeliveryFilter(r)
	deliveries, total, err := h.svc.Deliveries(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}
	if deliveries == nil {
		deliveries = []*domain.Delivery{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data":  deliveries,
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}

// Get handles GET /api/v1/deliveries/{id}
func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Delivery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func parseDeliveryFilter(r *http.Request) domain.DeliveryFilter {
	q := r.URL.Query()
	filter := domain.DeliveryFilter{Page: 1, Limit: 20}

	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		filter.Page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 100 {
		filter.Limit = l
	}
	switch s := domain.DeliveryStatus(q.Get("status")); s {
	case domain.DeliveryPending, domain.DeliverySent, domain.DeliveryFailed:
		filter.Status = &s
	}
	if pid := q.Get("projection"); pid != "" {
		filter.ProjectionID = &pid
	}
	if n, err := strconv.ParseUint(q.Get("listener"), 10, 64); err == nil && n > 0 {
		h := domain.Handle(n)
		filter.Listener = &h
	}
	return filter
}
