package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/gyre/internal/domain"
	"github.com/notifyhub/gyre/internal/provider"
	"github.com/notifyhub/gyre/internal/ratelimiter"
	"github.com/notifyhub/gyre/internal/repository"
	"github.com/notifyhub/gyre/internal/scheduler"
	"github.com/notifyhub/gyre/internal/worker"
)

// ListenerInfo describes a registered listener. URL and MaxAttempts are set
// for webhook listeners only.
type ListenerInfo struct {
	Handle        domain.Handle `json:"handle"`
	Name          string        `json:"name"`
	ProjectionIDs []string      `json:"projection_ids"`
	Priority      int           `json:"priority"`
	URL           string        `json:"url,omitempty"`
	MaxAttempts   int           `json:"max_attempts,omitempty"`
}

// PendingItem is one entry of the ready queue as exposed over the API.
type PendingItem struct {
	ProjectionID string        `json:"projection_id"`
	Listener     domain.Handle `json:"listener"`
	Priority     int           `json:"priority"`
	Resuming     bool          `json:"resuming"`
}

// QueueView lists the ready queue head to tail; the tail runs next.
type QueueView struct {
	Items  []PendingItem `json:"items"`
	Depths map[int]int   `json:"depths"`
}

// Hooks reports accepted updates and webhook outcomes, typically to metrics.
type Hooks struct {
	OnPublished func(source string)
	OnSent      func(latency time.Duration)
	OnFailed    func()
}

// DefaultRetryBackoff spaces out webhook retries when no schedule is set.
var DefaultRetryBackoff = []time.Duration{500 * time.Millisecond, 2 * time.Second, 10 * time.Second}

// Option configures a ProjectionService.
type Option func(*ProjectionService)

// WithRetryBackoff sets the delay before each webhook retry: entry i
// follows failed attempt i+1 and the last entry repeats.
func WithRetryBackoff(backoff ...time.Duration) Option {
	return func(s *ProjectionService) {
		s.retryBackoff = append([]time.Duration(nil), backoff...)
	}
}

type webhook struct {
	url         string
	maxAttempts int
}

// ProjectionService is the entry point for HTTP handlers and the NATS
// ingress. Every scheduler operation is submitted to the driver so the
// scheduler only ever runs on its loop goroutine.
type ProjectionService struct {
	driver      *worker.Driver
	repo        repository.DeliveryRepository
	prov        provider.Provider
	limiter     *ratelimiter.ListenerLimiters
	maxAttempts int
	logger      *zap.Logger
	hooks       Hooks

	retryBackoff []time.Duration

	// touched only from the loop goroutine
	webhooks map[domain.Handle]webhook
}

func NewProjectionService(
	driver *worker.Driver,
	repo repository.DeliveryRepository,
	prov provider.Provider,
	limiter *ratelimiter.ListenerLimiters,
	maxAttempts int,
	logger *zap.Logger,
	hooks Hooks,
	opts ...Option,
) *ProjectionService {
	if hooks.OnPublished == nil {
		hooks.OnPublished = func(string) {}
	}
	if hooks.OnSent == nil {
		hooks.OnSent = func(time.Duration) {}
	}
	if hooks.OnFailed == nil {
		hooks.OnFailed = func() {}
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	s := &ProjectionService{
		driver:       driver,
		repo:         repo,
		prov:         prov,
		limiter:      limiter,
		maxAttempts:  maxAttempts,
		logger:       logger,
		hooks:        hooks,
		retryBackoff: DefaultRetryBackoff,
		webhooks:     make(map[domain.Handle]webhook),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish records data as the latest snapshot of projection id and
// schedules its listeners. data must be valid JSON.
func (s *ProjectionService) Publish(ctx context.Context, id string, data json.RawMessage) error {
	return s.PublishFrom(ctx, "http", id, data)
}

// PublishFrom is Publish with the ingress source recorded for metrics.
func (s *ProjectionService) PublishFrom(ctx context.Context, source, id string, data json.RawMessage) error {
	if !json.Valid(data) {
		return domain.ErrInvalidPayload
	}
	snapshot := append(json.RawMessage(nil), data...)

	_, err := worker.Do(ctx, s.driver, func(sch *scheduler.Scheduler) (struct{}, error) {
		return struct{}{}, sch.ProjectionUpdate(id, snapshot)
	})
	if err != nil {
		return err
	}
	s.hooks.OnPublished(source)
	return nil
}

// Snapshot returns the latest published value of projection id.
func (s *ProjectionService) Snapshot(ctx context.Context, id string) (json.RawMessage, error) {
	return worker.Do(ctx, s.driver, func(sch *scheduler.Scheduler) (json.RawMessage, error) {
		v, ok := sch.Snapshot(id)
		if !ok {
			return nil, domain.ErrNotFound
		}
		return encodeSnapshot(v)
	})
}

// RegisterWebhook registers a listener that POSTs every update of its
// projections to req.URL.
func (s *ProjectionService) RegisterWebhook(ctx context.Context, req domain.RegisterListenerRequest) (*ListenerInfo, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hook := webhook{url: req.URL, maxAttempts: req.MaxAttempts}
	if hook.maxAttempts == 0 {
		hook.maxAttempts = s.maxAttempts
	}
	name := req.Name
	if name == "" {
		name = "webhook"
	}

	return worker.Do(ctx, s.driver, func(sch *scheduler.Scheduler) (*ListenerInfo, error) {
		// the callback only runs on a later pass, after h is assigned
		var h domain.Handle
		cb := func(data any, projectionID string) (domain.Resumable, error) {
			payload, err := encodeSnapshot(data)
			if err != nil {
				return nil, err
			}
			return s.newDelivery(h, name, projectionID, hook, payload), nil
		}

		var err error
		h, err = sch.Register(req.ProjectionIDs, cb,
			scheduler.WithPriority(req.Priority),
			scheduler.WithName(name),
		)
		if err != nil {
			return nil, err
		}
		s.webhooks[h] = hook

		s.logger.Info("webhook listener registered",
			zap.Uint64("handle", uint64(h)),
			zap.String("name", name),
			zap.String("url", hook.url),
		)
		return s.describe(sch, h)
	})
}

// Unregister drops the listener's subscription to ids, or to everything
// when ids is empty.
func (s *ProjectionService) Unregister(ctx context.Context, h domain.Handle, ids []string) error {
	_, err := worker.Do(ctx, s.driver, func(sch *scheduler.Scheduler) (struct{}, error) {
		if err := sch.Unregister(h, ids...); err != nil {
			return struct{}{}, err
		}
		if _, ok := sch.Listener(h); !ok {
			delete(s.webhooks, h)
			s.limiter.Forget(h)
		}
		return struct{}{}, nil
	})
	return err
}

// Listener returns a single listener or ErrNotFound.
func (s *ProjectionService) Listener(ctx context.Context, h domain.Handle) (*ListenerInfo, error) {
	return worker.Do(ctx, s.driver, func(sch *scheduler.Scheduler) (*ListenerInfo, error) {
		return s.describe(sch, h)
	})
}

func (s *ProjectionService) Listeners(ctx context.Context) ([]ListenerInfo, error) {
	return worker.Do(ctx, s.driver, func(sch *scheduler.Scheduler) ([]ListenerInfo, error) {
		ls := sch.Listeners()
		out := make([]ListenerInfo, 0, len(ls))
		for _, l := range ls {
			hook := s.webhooks[l.Handle]
			out = append(out, ListenerInfo{
				Handle:        l.Handle,
				Name:          l.Name,
				ProjectionIDs: l.ProjectionIDs,
				Priority:      l.Priority,
				URL:           hook.url,
				MaxAttempts:   hook.maxAttempts,
			})
		}
		return out, nil
	})
}

func (s *ProjectionService) Pending(ctx context.Context) (*QueueView, error) {
	return worker.Do(ctx, s.driver, func(sch *scheduler.Scheduler) (*QueueView, error) {
		items := sch.Pending()
		view := &QueueView{Items: make([]PendingItem, 0, len(items)), Depths: sch.Depths()}
		for _, it := range items {
			view.Items = append(view.Items, PendingItem{
				ProjectionID: it.ProjectionID,
				Listener:     it.Listener,
				Priority:     it.Priority,
				Resuming:     it.Continuation != nil,
			})
		}
		return view, nil
	})
}

func (s *ProjectionService) Budget(ctx context.Context) (time.Duration, error) {
	return worker.Do(ctx, s.driver, func(sch *scheduler.Scheduler) (time.Duration, error) {
		return sch.TimeBudget(), nil
	})
}

func (s *ProjectionService) SetBudget(ctx context.Context, req domain.BudgetRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	_, err := worker.Do(ctx, s.driver, func(sch *scheduler.Scheduler) (struct{}, error) {
		sch.SetTimeBudget(time.Duration(req.BudgetMS) * time.Millisecond)
		return struct{}{}, nil
	})
	return err
}

func (s *ProjectionService) Stats(ctx context.Context) (scheduler.Stats, error) {
	return worker.Do(ctx, s.driver, func(sch *scheduler.Scheduler) (scheduler.Stats, error) {
		return sch.Stats(), nil
	})
}

func (s *ProjectionService) Deliveries(ctx context.Context, filter domain.DeliveryFilter) ([]*domain.Delivery, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *ProjectionService) Delivery(ctx context.Context, id string) (*domain.Delivery, error) {
	return s.repo.GetByID(ctx, id)
}

// ---- private helpers ----

func (s *ProjectionService) describe(sch *scheduler.Scheduler, h domain.Handle) (*ListenerInfo, error) {
	l, ok := sch.Listener(h)
	if !ok {
		return nil, domain.ErrNotFound
	}
	hook := s.webhooks[h]
	return &ListenerInfo{
		Handle:        l.Handle,
		Name:          l.Name,
		ProjectionIDs: l.ProjectionIDs,
		Priority:      l.Priority,
		URL:           hook.url,
		MaxAttempts:   hook.maxAttempts,
	}, nil
}

// encodeSnapshot returns v as JSON. Snapshots published through the
// service are already raw JSON and are copied as-is.
func encodeSnapshot(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return append(json.RawMessage(nil), raw...), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}
