package domain

import (
	"encoding/json"
	"net/url"
	"time"
)

// DeliveryStatus tracks the lifecycle of a webhook delivery.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Delivery records one webhook listener being notified of one projection
// update. It is an audit trail only; the scheduler never reads it back.
type Delivery struct {
	ID           string          `json:"id"`
	Listener     Handle          `json:"listener"`
	ListenerName string          `json:"listener_name"`
	ProjectionID string          `json:"projection_id"`
	URL          string          `json:"url"`
	Status       DeliveryStatus  `json:"status"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	SentAt       *time.Time      `json:"sent_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// RegisterListenerRequest is the inbound payload for a webhook listener.
type RegisterListenerRequest struct {
	ProjectionIDs []string `json:"projection_ids" jsonschema:"required,minItems=1"`
	URL           string   `json:"url" jsonschema:"required,format=uri"`
	Name          string   `json:"name,omitempty"`
	Priority      int      `json:"priority,omitempty"`
	MaxAttempts   int      `json:"max_attempts,omitempty" jsonschema:"minimum=0"`
}

func (r *RegisterListenerRequest) Validate() error {
	if _, err := ValidateProjectionIDs(r.ProjectionIDs); err != nil {
		return err
	}
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	if r.MaxAttempts < 0 {
		return ErrInvalidArgument
	}
	return nil
}

// BudgetRequest sets the per-pass time budget in milliseconds.
type BudgetRequest struct {
	BudgetMS int64 `json:"budget_ms" jsonschema:"minimum=0"`
}

func (r *BudgetRequest) Validate() error {
	if r.BudgetMS < 0 {
		return ErrInvalidBudget
	}
	return nil
}

// DeliveryFilter holds query parameters for paginated delivery listing.
type DeliveryFilter struct {
	Status       *DeliveryStatus
	ProjectionID *string
	Listener     *Handle
	Page         int
	Limit        int
}
