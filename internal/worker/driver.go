package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/petermattis/goid"
	"go.uber.org/zap"

	"github.com/notifyhub/gyre/internal/domain"
	"github.com/notifyhub/gyre/internal/scheduler"
)

// Hooks lets main observe the loop without the worker importing metrics.
type Hooks struct {
	OnTick  func(scheduler.Stats)
	OnError func(error)
}

type task struct {
	fn   func(*scheduler.Scheduler)
	done chan struct{}
}

// Driver is the single goroutine that owns a Scheduler. It runs a pass on
// every tick and executes submitted operations between passes, so the
// scheduler itself never sees concurrent calls.
type Driver struct {
	sched    *scheduler.Scheduler
	interval time.Duration
	ingress  chan task
	stopped  chan struct{}
	owner    atomic.Int64
	started  atomic.Bool
	ctx      atomic.Pointer[context.Context]
	logger   *zap.Logger
	hooks    Hooks
}

func NewDriver(
	sched *scheduler.Scheduler,
	interval time.Duration,
	buffer int,
	logger *zap.Logger,
	hooks Hooks,
) *Driver {
	if hooks.OnTick == nil {
		hooks.OnTick = func(scheduler.Stats) {}
	}
	if hooks.OnError == nil {
		hooks.OnError = func(error) {}
	}
	if buffer < 0 {
		buffer = 0
	}
	return &Driver{
		sched:    sched,
		interval: interval,
		ingress:  make(chan task, buffer),
		stopped:  make(chan struct{}),
		logger:   logger,
		hooks:    hooks,
	}
}

// Run ticks every interval and calls RunOnce, interleaving submitted
// operations. It blocks until ctx is cancelled and must be called once.
func (d *Driver) Run(ctx context.Context) {
	if !d.started.CompareAndSwap(false, true) {
		d.logger.Error("scheduler driver already running")
		return
	}
	d.ctx.Store(&ctx)
	d.owner.Store(goid.Get())
	defer close(d.stopped)
	defer d.owner.Store(0)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("scheduler driver started",
		zap.Duration("interval", d.interval),
		zap.Duration("time_budget", d.sched.TimeBudget()),
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("scheduler driver stopping", zap.Int("queued", d.sched.Stats().Queued))
			return
		case t := <-d.ingress:
			t.fn(d.sched)
			close(t.done)
		case <-ticker.C:
			d.tick()
		}
	}
}

// Context returns the context Run was started with. Work spawned by
// listener callbacks uses it so shutdown cancels it. Before Run it is
// context.Background.
func (d *Driver) Context() context.Context {
	if p := d.ctx.Load(); p != nil {
		return *p
	}
	return context.Background()
}

// Done is closed once Run has returned.
func (d *Driver) Done() <-chan struct{} {
	return d.stopped
}

// Submit runs fn on the loop goroutine and waits for it to finish. Called
// from the loop goroutine itself (a listener callback), fn runs inline.
func (d *Driver) Submit(ctx context.Context, fn func(*scheduler.Scheduler)) error {
	if d.owner.Load() == goid.Get() {
		fn(d.sched)
		return nil
	}

	select {
	case <-d.stopped:
		return domain.ErrDriverStopped
	default:
	}

	t := task{fn: fn, done: make(chan struct{})}
	select {
	case d.ingress <- t:
	case <-d.stopped:
		return domain.ErrDriverStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-t.done:
		return nil
	case <-d.stopped:
		return domain.ErrDriverStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do is Submit for operations that produce a value.
func Do[T any](ctx context.Context, d *Driver, fn func(*scheduler.Scheduler) (T, error)) (T, error) {
	var (
		out T
		err error
	)
	if serr := d.Submit(ctx, func(s *scheduler.Scheduler) {
		out, err = fn(s)
	}); serr != nil {
		var zero T
		return zero, serr
	}
	return out, err
}

func (d *Driver) tick() {
	if err := d.sched.RunOnce(); err != nil {
		if scheduler.IsCallbackError(err) {
			d.logger.Warn("scheduler pass stopped by failing listener", zap.Error(err))
		} else {
			d.logger.Error("scheduler pass error", zap.Error(err))
		}
		d.hooks.OnError(err)
	}
	d.hooks.OnTick(d.sched.Stats())
}
