package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/gyre/internal/domain"
)

type deliveryStage int

const (
	stageRecord deliveryStage = iota
	stageSend
)

// outcome is what a background repository write or webhook attempt hands
// back to the loop goroutine.
type outcome struct {
	err      error
	storeErr error
	latency  time.Duration
}

// delivery is the multi-step task a webhook listener hands back to the
// scheduler: record the pending delivery, attempt the POST until it
// succeeds or runs out of attempts, and settle the record with the result.
//
// Steps never block. Repository writes and webhook attempts run on their
// own goroutine and later steps poll for the outcome. Until the rate
// limiter grants a token or the retry backoff has elapsed, a step reports
// not-done without doing anything.
type delivery struct {
	svc         *ProjectionService
	ctx         context.Context
	d           *domain.Delivery
	stage       deliveryStage
	inflight    chan outcome
	nextAttempt time.Time
	log         *zap.Logger
}

func (s *ProjectionService) newDelivery(
	h domain.Handle,
	name, projectionID string,
	hook webhook,
	payload json.RawMessage,
) *delivery {
	now := time.Now().UTC()
	d := &domain.Delivery{
		ID:           uuid.New().String(),
		Listener:     h,
		ListenerName: name,
		ProjectionID: projectionID,
		URL:          hook.url,
		Status:       domain.DeliveryPending,
		MaxAttempts:  hook.maxAttempts,
		Payload:      payload,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return &delivery{
		svc: s,
		ctx: s.driver.Context(),
		d:   d,
		log: s.logger.With(
			zap.String("delivery_id", d.ID),
			zap.Uint64("listener", uint64(h)),
			zap.String("projection", projectionID),
		),
	}
}

func (t *delivery) Step() (bool, error) {
	if t.inflight != nil {
		select {
		case out := <-t.inflight:
			t.inflight = nil
			return t.settle(out)
		default:
			return false, nil
		}
	}

	if err := t.ctx.Err(); err != nil {
		return true, fmt.Errorf("webhook delivery %s abandoned: %w", t.d.ID, err)
	}

	switch t.stage {
	case stageRecord:
		d := *t.d
		t.spawn(func() outcome {
			return outcome{err: t.svc.repo.Create(t.ctx, &d)}
		})
		return false, nil

	default:
		if time.Now().Before(t.nextAttempt) || !t.svc.limiter.Allow(t.d.Listener) {
			return false, nil
		}
		t.d.Attempts++
		d := *t.d
		t.spawn(func() outcome { return t.svc.attempt(t.ctx, &d) })
		return false, nil
	}
}

func (t *delivery) spawn(op func() outcome) {
	ch := make(chan outcome, 1)
	t.inflight = ch
	go func() { ch <- op() }()
}

// settle applies the outcome of the operation that just finished.
func (t *delivery) settle(out outcome) (bool, error) {
	if t.stage == stageRecord {
		if out.err != nil {
			return true, fmt.Errorf("persist delivery: %w", out.err)
		}
		t.stage = stageSend
		return false, nil
	}

	if out.storeErr != nil {
		t.log.Error("failed to update delivery record", zap.Error(out.storeErr))
	}

	if out.err == nil {
		t.svc.hooks.OnSent(out.latency)
		t.log.Info("webhook delivered",
			zap.Int("attempts", t.d.Attempts),
			zap.Duration("latency", out.latency),
		)
		return true, nil
	}

	if t.d.Attempts < t.d.MaxAttempts {
		delay := t.svc.backoff(t.d.Attempts)
		t.nextAttempt = time.Now().Add(delay)
		t.log.Warn("webhook attempt failed",
			zap.Int("attempt", t.d.Attempts),
			zap.Int("max_attempts", t.d.MaxAttempts),
			zap.Duration("retry_in", delay),
			zap.Error(out.err),
		)
		return false, nil
	}

	t.svc.hooks.OnFailed()
	return true, fmt.Errorf("webhook delivery %s failed after %d attempts: %w", t.d.ID, t.d.Attempts, out.err)
}

// attempt POSTs one delivery and writes the result to the delivery log. It
// runs off the loop goroutine and only touches its own copy of d.
func (s *ProjectionService) attempt(ctx context.Context, d *domain.Delivery) outcome {
	start := time.Now()
	_, err := s.prov.Send(ctx, d)
	out := outcome{err: err, latency: time.Since(start)}

	switch {
	case err == nil:
		out.storeErr = s.repo.MarkSent(ctx, d.ID, d.Attempts, time.Now().UTC())
	case d.Attempts < d.MaxAttempts:
		out.storeErr = s.repo.RecordAttempt(ctx, d.ID, d.Attempts, err.Error())
	default:
		out.storeErr = s.repo.MarkFailed(ctx, d.ID, d.Attempts, err.Error())
	}
	return out
}

// backoff returns the delay before the retry that follows attempt n.
// Attempts past the end of the schedule reuse its last entry.
//
//	attempt 1 → retryBackoff[0]
//	attempt 2 → retryBackoff[1]
//	attempt N ≥ len(retryBackoff) → last entry
func (s *ProjectionService) backoff(n int) time.Duration {
	if len(s.retryBackoff) == 0 {
		return 0
	}
	idx := n - 1
	if idx >= len(s.retryBackoff) {
		idx = len(s.retryBackoff) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return s.retryBackoff[idx]
}
