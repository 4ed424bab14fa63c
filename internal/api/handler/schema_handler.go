package handler

import (
	"encoding/json"
	"net/http"
	"reflect"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/invopop/jsonschema"

	"github.com/notifyhub/gyre/internal/domain"
	"github.com/notifyhub/gyre/internal/service"
)

// SchemaHandler serves JSON schemas for the API's request and response
// bodies so clients can validate before sending.
type SchemaHandler struct {
	schemas map[string]json.RawMessage
}

func NewSchemaHandler() (*SchemaHandler, error) {
	reflector := jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	types := map[string]any{
		"listener":      &domain.RegisterListenerRequest{},
		"budget":        &domain.BudgetRequest{},
		"delivery":      &domain.Delivery{},
		"listener-info": &service.ListenerInfo{},
		"queue":         &service.QueueView{},
	}

	h := &SchemaHandler{schemas: make(map[string]json.RawMessage, len(types))}
	for name, v := range types {
		schema := reflector.Reflect(v)
		schema.Title = reflect.TypeOf(v).Elem().Name()
		b, err := schema.MarshalJSON()
		if err != nil {
			return nil, err
		}
		h.schemas[name] = b
	}
	return h, nil
}

// Get handles GET /api/v1/schema/{name}
func (h *SchemaHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, ok := h.schemas[chi.URLParam(r, "name")]
	if !ok {
		names := make([]string, 0, len(h.schemas))
		for n := range h.schemas {
			names = append(names, n)
		}
		sort.Strings(names)
		respondJSON(w, http.StatusNotFound, map[string]any{"error": "unknown schema", "available": names})
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
