package provider

import (
	"context"
	"encoding/json"

	"github.com/notifyhub/gyre/internal/domain"
)

// SendRequest is the JSON body posted to a listener's webhook.
type SendRequest struct {
	Listener     string          `json:"listener"`
	ProjectionID string          `json:"projection_id"`
	Data         json.RawMessage `json:"data"`
	DeliveryID   string          `json:"delivery_id"`
}

// SendResponse records how the webhook answered.
type SendResponse struct {
	StatusCode int
}

// Provider abstracts delivery to a listener's webhook.
// Mocking this interface in tests gives full control over endpoint behaviour
// without making real HTTP calls.
type Provider interface {
	Send(ctx context.Context, d *domain.Delivery) (*SendResponse, error)
}
