package handler

import (
	"encoding/json"
	"net/http"

	"github.com/notifyhub/gyre/internal/domain"
	"github.com/notifyhub/gyre/internal/service"
)

// SchedulerHandler exposes the time budget, counters and ready queue.
type SchedulerHandler struct {
	svc *service.ProjectionService
}

func NewSchedulerHandler(svc *service.ProjectionService) *SchedulerHandler {
	return &SchedulerHandler{svc: svc}
}

// GetBudget handles GET /api/v1/scheduler/budget
func (h *SchedulerHandler) GetBudget(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Budget(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, domain.BudgetRequest{BudgetMS: b.Milliseconds()})
}

// PutBudget handles PUT /api/v1/scheduler/budget
//
// @Summary  Set the per-pass time budget
// @Tags     scheduler
// @Accept   json
// @Param    body  body  domain.BudgetRequest  true  "Budget in milliseconds"
// @Success  204
// @Failure  422  {object}  map[string]string
// @Router   /api/v1/scheduler/budget [put]
func (h *SchedulerHandler) PutBudget(w http.ResponseWriter, r *http.Request) {
	var req domain.BudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.svc.SetBudget(r.Context(), req); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /api/v1/scheduler/stats
func (h *SchedulerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"queued":         st.Queued,
		"listeners":      st.Listeners,
		"projections":    st.Projections,
		"time_budget_ms": st.TimeBudget.Milliseconds(),
	})
}

// Queue handles GET /api/v1/queue
//
// Items are listed head to tail; the last item runs next.
func (h *SchedulerHandler) Queue(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Pending(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}
