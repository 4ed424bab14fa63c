package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/gyre/internal/api/middleware"
	"github.com/notifyhub/gyre/internal/domain"
	"github.com/notifyhub/gyre/internal/service"
)

// ListenerHandler manages webhook listeners.
type ListenerHandler struct {
	svc *service.ProjectionService
}

func NewListenerHandler(svc *service.ProjectionService) *ListenerHandler {
	return &ListenerHandler{svc: svc}
}

// Create handles POST /api/v1/listeners
//
// @Summary  Register a webhook listener
// @Tags     listeners
// @Accept   json
// @Produce  json
// @Param    body  body      domain.RegisterListenerRequest  true  "Listener"
// @Success  201   {object}  service.ListenerInfo
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/listeners [post]
func (h *ListenerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterListenerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	info, err := h.svc.RegisterWebhook(r.Context(), req)
	if err != nil {
		apimw.Logger(r.Context()).Warn("register listener failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, info)
}

// List handles GET /api/v1/listeners
func (h *ListenerHandler) List(w http.ResponseWriter, r *http.Request) {
	ls, err := h.svc.Listeners(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": ls, "total": len(ls)})
}

// Get handles GET /api/v1/listeners/{handle}
func (h *ListenerHandler) Get(w http.ResponseWriter, r *http.Request) {
	handle, ok := parseHandle(w, r)
	if !ok {
		return
	}
	info, err := h.svc.Listener(r.Context(), handle)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// Delete handles DELETE /api/v1/listeners/{handle}?projection=a&projection=b
//
// Without projection parameters every subscription is dropped.
//
// @Summary  Unsubscribe a listener
// @Tags     listeners
// @Param    handle      path   int     true   "Listener handle"
// @Param    projection  query  string  false  "Projection id, repeatable"
// @Success  204
// @Failure  422  {object}  map[string]string
// @Router   /api/v1/listeners/{handle} [delete]
func (h *ListenerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	handle, ok := parseHandle(w, r)
	if !ok {
		return
	}
	if err := h.svc.Unregister(r.Context(), handle, r.URL.Query()["projection"]); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseHandle(w http.ResponseWriter, r *http.Request) (domain.Handle, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, "handle"), 10, 64)
	if err != nil || n == 0 {
		respondError(w, http.StatusBadRequest, "handle must be a positive integer")
		return 0, false
	}
	return domain.Handle(n), true
}
