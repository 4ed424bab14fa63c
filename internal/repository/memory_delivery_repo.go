package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/notifyhub/gyre/internal/domain"
)

// MemoryDeliveryRepository is an in-memory DeliveryRepository. It is the
// delivery log when no database is configured, and the test double for
// everything above the repository layer.
type MemoryDeliveryRepository struct {
	mu         sync.RWMutex
	deliveries map[string]*domain.Delivery

	// Optional error overrides, set in tests to simulate failure paths.
	CreateErr error
	UpdateErr error
}

func NewMemoryDeliveryRepository() *MemoryDeliveryRepository {
	return &MemoryDeliveryRepository{deliveries: make(map[string]*domain.Delivery)}
}

func (m *MemoryDeliveryRepository) Create(_ context.Context, d *domain.Delivery) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *d
	m.deliveries[d.ID] = &clone
	return nil
}

func (m *MemoryDeliveryRepository) RecordAttempt(_ context.Context, id string, attempts int, errMsg string) error {
	return m.update(id, func(d *domain.Delivery) {
		d.Attempts = attempts
		d.ErrorMessage = &errMsg
	})
}

func (m *MemoryDeliveryRepository) MarkSent(_ context.Context, id string, attempts int, sentAt time.Time) error {
	return m.update(id, func(d *domain.Delivery) {
		d.Status = domain.DeliverySent
		d.Attempts = attempts
		d.SentAt = &sentAt
		d.ErrorMessage = nil
	})
}

func (m *MemoryDeliveryRepository) MarkFailed(_ context.Context, id string, attempts int, errMsg string) error {
	return m.update(id, func(d *domain.Delivery) {
		d.Status = domain.DeliveryFailed
		d.Attempts = attempts
		d.ErrorMessage = &errMsg
	})
}

func (m *MemoryDeliveryRepository) GetByID(_ context.Context, id string) (*domain.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deliveries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *d
	return &clone, nil
}

// List mirrors the pgx implementation: newest first, filtered, paginated.
func (m *MemoryDeliveryRepository) List(_ context.Context, f domain.DeliveryFilter) ([]*domain.Delivery, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*domain.Delivery
	for _, d := range m.deliveries {
		if f.Status != nil && d.Status != *f.Status {
			continue
		}
		if f.ProjectionID != nil && d.ProjectionID != *f.ProjectionID {
			continue
		}
		if f.Listener != nil && d.Listener != *f.Listener {
			continue
		}
		clone := *d
		matched = append(matched, &clone)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if f.Limit <= 0 {
		return matched, total, nil
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * f.Limit
	if start >= total {
		return nil, total, nil
	}
	end := min(start+f.Limit, total)
	return matched[start:end], total, nil
}

func (m *MemoryDeliveryRepository) update(id string, fn func(*domain.Delivery)) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(d)
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// compile-time check that MemoryDeliveryRepository implements DeliveryRepository
var _ DeliveryRepository = (*MemoryDeliveryRepository)(nil)
