package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness probe endpoint. When the scheduler
// loop has stopped the probe fails so orchestrators restart the process.
type HealthHandler struct {
	loopDone <-chan struct{}
	deps     map[string]Pinger
}

func NewHealthHandler(loopDone <-chan struct{}, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{loopDone: loopDone, deps: deps}
}

// Health handles GET /health
//
// @Summary  Liveness probe
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]string
// @Failure  503  {object}  map[string]string
// @Router   /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok", "scheduler": "running"}
	status := http.StatusOK

	select {
	case <-h.loopDone:
		body["scheduler"] = "stopped"
		status = http.StatusServiceUnavailable
	default:
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			body[name] = "unreachable"
			status = http.StatusServiceUnavailable
			continue
		}
		body[name] = "ok"
	}

	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	respondJSON(w, status, body)
}
