package scheduler

import (
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/gyre/internal/clock"
	"github.com/notifyhub/gyre/internal/domain"
	"github.com/notifyhub/gyre/internal/queue"
	"github.com/notifyhub/gyre/internal/registry"
	"github.com/notifyhub/gyre/internal/snapshot"
)

// Scheduler owns the ready queue, the listener registry and the snapshot
// store. All three are mutated only through its methods.
type Scheduler struct {
	queue     *queue.ReadyQueue
	listeners *registry.Registry
	snapshots snapshot.Store

	clock   clock.Source
	budget  time.Duration
	logger  *zap.Logger
	hooks   Hooks
	running bool
}

// Stats is a point-in-time view of the scheduler's state.
type Stats struct {
	Queued      int           `json:"queued"`
	Listeners   int           `json:"listeners"`
	Projections int           `json:"projections"`
	TimeBudget  time.Duration `json:"time_budget"`
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		queue:     queue.New(),
		listeners: registry.New(),
		snapshots: snapshot.NewMemory(),
		clock:     clock.System{},
		budget:    DefaultTimeBudget,
		logger:    zap.NewNop(),
		hooks:     Hooks{}.withDefaults(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register subscribes cb to the given projections and returns the new
// listener's handle. Every subscribed projection that already has a
// snapshot is scheduled for the listener straight away.
func (s *Scheduler) Register(projectionIDs []string, cb domain.Callback, opts ...ListenerOption) (domain.Handle, error) {
	ids, err := domain.ValidateProjectionIDs(projectionIDs)
	if err != nil {
		return 0, err
	}
	if cb == nil {
		return 0, fmt.Errorf("%w: callback must not be nil", domain.ErrInvalidArgument)
	}

	o := listenerOptions{name: "unnamed"}
	for _, opt := range opts {
		opt(&o)
	}

	l := s.listeners.Add(o.name, ids, o.priority, cb)
	replayed := 0
	for _, id := range l.ProjectionIDs {
		if s.snapshots.Has(id) {
			s.schedule(l, id)
			replayed++
		}
	}

	s.logger.Debug("listener registered",
		zap.Uint64("handle", uint64(l.Handle)),
		zap.String("listener", l.Name),
		zap.Strings("projections", l.ProjectionIDs),
		zap.Int("priority", l.Priority),
		zap.Int("replayed", replayed),
	)
	return l.Handle, nil
}

// Unregister removes the listener's subscription to projectionIDs, or to
// all of its projections when none are given. The listener is deleted once
// it has no subscriptions left. Every queued item for the targeted
// projections is purged, whichever listener it belongs to.
// An unknown handle is a no-op.
func (s *Scheduler) Unregister(h domain.Handle, projectionIDs ...string) error {
	var targets []string
	if len(projectionIDs) > 0 {
		ids, err := domain.ValidateProjectionIDs(projectionIDs)
		if err != nil {
			return err
		}
		targets = ids
	}

	l, ok := s.listeners.Get(h)
	if !ok {
		return nil
	}
	if targets == nil {
		targets = slices.Clone(l.ProjectionIDs)
	}

	deleted, _ := s.listeners.Unsubscribe(h, targets)
	purged := s.queue.Purge(targets)

	s.logger.Debug("listener unsubscribed",
		zap.Uint64("handle", uint64(h)),
		zap.Strings("projections", targets),
		zap.Bool("deleted", deleted),
		zap.Int("purged", purged),
	)
	return nil
}

// ProjectionUpdate stores data as the latest snapshot of id and schedules
// one item for every listener subscribed to id. Repeated updates are not
// coalesced.
func (s *Scheduler) ProjectionUpdate(id string, data any) error {
	if id == "" {
		return fmt.Errorf("%w: projection id is empty", domain.ErrInvalidArgument)
	}

	s.snapshots.Set(id, data)
	for _, l := range s.listeners.Subscribers(id) {
		s.schedule(l, id)
	}
	return nil
}

// RunOnce executes queued items, highest priority first, until the queue
// is empty or the time budget is spent. See the package documentation for
// the continuation rules.
//
// A failing callback or step stops the pass and is returned as a
// *CallbackError; the failed item is dropped and the rest of the queue is
// left for the next pass.
func (s *Scheduler) RunOnce() error {
	if s.running {
		return ErrReentrantRun
	}
	s.running = true
	defer func() { s.running = false }()

	start := s.clock.Now()
	deadline := start.Add(s.budget)
	executed := 0
	defer func() { s.recordPass(start, executed) }()

	for (s.clock.Now().Before(deadline) || executed == 0) && s.queue.Len() > 0 {
		item, _ := s.queue.Pop()

		l, ok := s.listeners.Get(item.Listener)
		if !ok {
			s.hooks.OnDrop()
			continue
		}
		executed++

		if item.Continuation != nil {
			s.hooks.OnResume(l.Name)
			done, err := item.Continuation.Step()
			if err != nil {
				return s.fail(l, item, true, err)
			}
			if !done {
				s.requeue(item)
			}
			continue
		}

		s.hooks.OnInvoke(l.Name)
		data, _ := s.snapshots.Get(item.ProjectionID)
		task, err := l.Callback(data, item.ProjectionID)
		if err != nil {
			return s.fail(l, item, false, err)
		}
		if task == nil {
			continue
		}

		done, err := task.Step()
		if err != nil {
			return s.fail(l, item, false, err)
		}
		if !done {
			item.Continuation = task
			s.requeue(item)
		}
	}

	return nil
}

func (s *Scheduler) recordPass(start time.Time, executed int) {
	elapsed := s.clock.Now().Sub(start)
	s.hooks.OnPass(elapsed, executed)
	if executed > 0 {
		s.logger.Debug("scheduler pass",
			zap.Int("executed", executed),
			zap.Int("remaining", s.queue.Len()),
			zap.Duration("elapsed", elapsed),
		)
	}
}

// SetTimeBudget sets the wall-clock budget for each RunOnce pass.
// Negative values are treated as zero.
func (s *Scheduler) SetTimeBudget(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.budget = d
}

func (s *Scheduler) TimeBudget() time.Duration {
	return s.budget
}

// Snapshot returns the latest published value of a projection.
func (s *Scheduler) Snapshot(id string) (any, bool) {
	return s.snapshots.Get(id)
}

// Listeners returns copies of the registered listeners ordered by handle.
func (s *Scheduler) Listeners() []registry.Listener {
	return s.listeners.List()
}

// Listener returns a copy of one registered listener.
func (s *Scheduler) Listener(h domain.Handle) (registry.Listener, bool) {
	l, ok := s.listeners.Get(h)
	if !ok {
		return registry.Listener{}, false
	}
	c := *l
	c.ProjectionIDs = slices.Clone(l.ProjectionIDs)
	return c, true
}

// Pending returns copies of the queued items, lowest priority first.
func (s *Scheduler) Pending() []queue.Item {
	return s.queue.Snapshot()
}

// Depths returns the number of queued items per priority.
func (s *Scheduler) Depths() map[int]int {
	return s.queue.Depths()
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Queued:      s.queue.Len(),
		Listeners:   s.listeners.Len(),
		Projections: s.snapshots.Len(),
		TimeBudget:  s.budget,
	}
}

func (s *Scheduler) schedule(l *registry.Listener, projectionID string) {
	s.queue.Insert(&queue.Item{
		ProjectionID: projectionID,
		Listener:     l.Handle,
		Priority:     l.Priority,
	})
}

// requeue parks an unfinished continuation at the tail so it is popped
// next. A continuation whose listener dropped the projection during the
// step, or unregistered entirely, is not re-queued.
func (s *Scheduler) requeue(item *queue.Item) {
	l, ok := s.listeners.Get(item.Listener)
	if !ok || !slices.Contains(l.ProjectionIDs, item.ProjectionID) {
		s.hooks.OnDrop()
		return
	}
	s.queue.PushTail(item)
}

func (s *Scheduler) fail(l *registry.Listener, item *queue.Item, resumed bool, err error) error {
	s.hooks.OnFailure(l.Name)
	s.logger.Warn("listener failed, item dropped",
		zap.Uint64("handle", uint64(l.Handle)),
		zap.String("listener", l.Name),
		zap.String("projection", item.ProjectionID),
		zap.Bool("resumed", resumed),
		zap.Error(err),
	)
	return &CallbackError{
		Handle:       l.Handle,
		Listener:     l.Name,
		ProjectionID: item.ProjectionID,
		Resumed:      resumed,
		Err:          err,
	}
}
