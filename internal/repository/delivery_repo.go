package repository

import (
	"context"
	"time"

	"github.com/notifyhub/gyre/internal/domain"
)

// DeliveryRepository defines all persistence operations for webhook
// deliveries. The pgx implementation is in pg_delivery_repo.go; the
// in-memory one in memory_delivery_repo.go backs tests and deployments
// without DATABASE_URL.
type DeliveryRepository interface {
	Create(ctx context.Context, d *domain.Delivery) error
	RecordAttempt(ctx context.Context, id string, attempts int, errMsg string) error
	MarkSent(ctx context.Context, id string, attempts int, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, errMsg string) error
	GetByID(ctx context.Context, id string) (*domain.Delivery, error)
	List(ctx context.Context, filter domain.DeliveryFilter) ([]*domain.Delivery, int, error)
}
