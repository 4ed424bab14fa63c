package scheduler

import (
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/gyre/internal/clock"
)

// DefaultTimeBudget bounds a single RunOnce pass unless overridden.
const DefaultTimeBudget = 10 * time.Millisecond

// Hooks carries observation callbacks, typically metrics. Nil fields are no-ops.
type Hooks struct {
	OnInvoke  func(listener string)
	OnResume  func(listener string)
	OnDrop    func()
	OnFailure func(listener string)
	OnPass    func(elapsed time.Duration, executed int)
}

func (h Hooks) withDefaults() Hooks {
	if h.OnInvoke == nil {
		h.OnInvoke = func(string) {}
	}
	if h.OnResume == nil {
		h.OnResume = func(string) {}
	}
	if h.OnDrop == nil {
		h.OnDrop = func() {}
	}
	if h.OnFailure == nil {
		h.OnFailure = func(string) {}
	}
	if h.OnPass == nil {
		h.OnPass = func(time.Duration, int) {}
	}
	return h
}

type Option func(*Scheduler)

func WithClock(c clock.Source) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

func WithTimeBudget(d time.Duration) Option {
	return func(s *Scheduler) {
		s.SetTimeBudget(d)
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithHooks(h Hooks) Option {
	return func(s *Scheduler) {
		s.hooks = h.withDefaults()
	}
}

type listenerOptions struct {
	name     string
	priority int
}

// ListenerOption configures a listener at registration time.
type ListenerOption func(*listenerOptions)

// WithPriority sets the listener's priority. Higher runs first. Default 0.
func WithPriority(p int) ListenerOption {
	return func(o *listenerOptions) {
		o.priority = p
	}
}

// WithName labels the listener in logs and metrics. Default "unnamed".
func WithName(name string) ListenerOption {
	return func(o *listenerOptions) {
		if name != "" {
			o.name = name
		}
	}
}
