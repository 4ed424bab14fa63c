package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/gyre/internal/domain"
)

const deliveryColumns = `id, listener, listener_name, projection_id, url, status,
		       attempts, max_attempts, error_message, payload, sent_at,
		       created_at, updated_at`

type pgDeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewPgDeliveryRepository returns a DeliveryRepository backed by PostgreSQL.
func NewPgDeliveryRepository(pool *pgxpool.Pool) DeliveryRepository {
	return &pgDeliveryRepository{pool: pool}
}

func (r *pgDeliveryRepository) Create(ctx context.Context, d *domain.Delivery) error {
	var payload []byte
	if len(d.Payload) > 0 {
		payload = d.Payload
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO deliveries
			(id, listener, listener_name, projection_id, url, status,
			 attempts, max_attempts, payload, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		d.ID, int64(d.Listener), d.ListenerName, d.ProjectionID, d.URL, d.Status,
		d.Attempts, d.MaxAttempts, payload, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (r *pgDeliveryRepository) RecordAttempt(ctx context.Context, id string, attempts int, errMsg string) error {
	return r.exec(ctx, `
		UPDATE deliveries
		SET attempts = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3`, attempts, errMsg, id)
}

func (r *pgDeliveryRepository) MarkSent(ctx context.Context, id string, attempts int, sentAt time.Time) error {
	return r.exec(ctx, `
		UPDATE deliveries
		SET status = 'sent', attempts = $1, sent_at = $2, error_message = NULL, updated_at = NOW()
		WHERE id = $3`, attempts, sentAt, id)
}

func (r *pgDeliveryRepository) MarkFailed(ctx context.Context, id string, attempts int, errMsg string) error {
	return r.exec(ctx, `
		UPDATE deliveries
		SET status = 'failed', attempts = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3`, attempts, errMsg, id)
}

func (r *pgDeliveryRepository) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id)

	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return d, err
}

func (r *pgDeliveryRepository) List(ctx context.Context, f domain.DeliveryFilter) ([]*domain.Delivery, int, error) {
	where, args := buildListWhere(f)
	offset := (f.Page - 1) * f.Limit

	// Count total matching rows for pagination metadata.
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM deliveries"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deliveries: %w", err)
	}

	args = append(args, f.Limit, offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM deliveries%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, deliveryColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, total, rows.Err()
}

func (r *pgDeliveryRepository) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ---- helpers ----

// scanDelivery reads a single delivery row from any pgx row type.
func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	var (
		d        domain.Delivery
		listener int64
		payload  []byte
	)
	err := row.Scan(
		&d.ID, &listener, &d.ListenerName, &d.ProjectionID, &d.URL, &d.Status,
		&d.Attempts, &d.MaxAttempts, &d.ErrorMessage, &payload, &d.SentAt,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Listener = domain.Handle(listener)
	d.Payload = payload
	return &d, nil
}

// buildListWhere builds a parameterised WHERE clause from a DeliveryFilter.
func buildListWhere(f domain.DeliveryFilter) (string, []any) {
	var conditions []string
	var args []any

	add := func(condition string, val any) {
		args = append(args, val)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.ProjectionID != nil {
		add("projection_id = $%d", *f.ProjectionID)
	}
	if f.Listener != nil {
		add("listener = $%d", int64(*f.Listener))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
