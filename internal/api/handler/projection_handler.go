package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/gyre/internal/api/middleware"
	"github.com/notifyhub/gyre/internal/service"
)

// ProjectionHandler publishes and reads projection snapshots.
type ProjectionHandler struct {
	svc *service.ProjectionService
}

func NewProjectionHandler(svc *service.ProjectionService) *ProjectionHandler {
	return &ProjectionHandler{svc: svc}
}

// Put handles PUT /api/v1/projections/{id}
//
// The request body is the new snapshot and must be valid JSON.
//
// @Summary  Publish a projection update
// @Tags     projections
// @Accept   json
// @Param    id    path  string  true  "Projection id"
// @Success  202
// @Failure  422  {object}  map[string]string
// @Router   /api/v1/projections/{id} [put]
func (h *ProjectionHandler) Put(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read body")
		return
	}

	if err := h.svc.Publish(r.Context(), id, body); err != nil {
		apimw.Logger(r.Context()).Warn("publish failed", zap.String("projection", id), zap.Error(err))
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Get handles GET /api/v1/projections/{id}
//
// @Summary  Latest snapshot of a projection
// @Tags     projections
// @Produce  json
// @Param    id   path      string  true  "Projection id"
// @Success  200  {object}  any
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/projections/{id} [get]
func (h *ProjectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
