package scheduler_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/gyre/internal/clock"
	"github.com/notifyhub/gyre/internal/domain"
	"github.com/notifyhub/gyre/internal/scheduler"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// newFrozen returns a scheduler whose clock never moves, so any positive
// budget lets a pass drain the whole queue.
func newFrozen(opts ...scheduler.Option) *scheduler.Scheduler {
	opts = append([]scheduler.Option{scheduler.WithClock(clock.NewManual(epoch))}, opts...)
	return scheduler.New(opts...)
}

// recorder returns a callback that appends "<name>:<projection>=<data>" to log.
func recorder(log *[]string, name string) domain.Callback {
	return func(data any, pid string) (domain.Resumable, error) {
		*log = append(*log, fmt.Sprintf("%s:%s=%v", name, pid, data))
		return nil, nil
	}
}

// stepper returns a callback whose task logs "<name>#<n>" for n steps.
func stepper(log *[]string, name string, n int, during func(step int)) domain.Callback {
	return func(any, string) (domain.Resumable, error) {
		fns := make([]func() error, n)
		for i := range fns {
			step := i + 1
			fns[i] = func() error {
				*log = append(*log, fmt.Sprintf("%s#%d", name, step))
				if during != nil {
					during(step)
				}
				return nil
			}
		}
		return domain.Steps(fns...), nil
	}
}

func TestScheduler_SampleScenario(t *testing.T) {
	s := newFrozen()
	var calls []string

	_, err := s.Register([]string{"counter"}, recorder(&calls, "cb"), scheduler.WithPriority(5))
	require.NoError(t, err)
	require.NoError(t, s.ProjectionUpdate("counter", 10))

	require.NoError(t, s.RunOnce())
	assert.Equal(t, []string{"cb:counter=10"}, calls)

	require.NoError(t, s.RunOnce())
	assert.Equal(t, []string{"cb:counter=10"}, calls, "an empty queue invokes nothing")
}

func TestScheduler_PriorityOrdering(t *testing.T) {
	s := newFrozen()
	var log []string

	_, err := s.Register([]string{"p"}, recorder(&log, "low"), scheduler.WithPriority(1))
	require.NoError(t, err)
	_, err = s.Register([]string{"p"}, recorder(&log, "high"), scheduler.WithPriority(9))
	require.NoError(t, err)
	_, err = s.Register([]string{"p"}, recorder(&log, "mid"), scheduler.WithPriority(5))
	require.NoError(t, err)

	require.NoError(t, s.ProjectionUpdate("p", "v"))
	require.NoError(t, s.RunOnce())

	assert.Equal(t, []string{"high:p=v", "mid:p=v", "low:p=v"}, log)
}

func TestScheduler_EqualPriorityIsLIFO(t *testing.T) {
	t.Run("two listeners on one projection", func(t *testing.T) {
		s := newFrozen()
		var log []string

		_, _ = s.Register([]string{"p"}, recorder(&log, "A"), scheduler.WithPriority(2))
		_, _ = s.Register([]string{"p"}, recorder(&log, "B"), scheduler.WithPriority(2))

		require.NoError(t, s.ProjectionUpdate("p", 1))
		require.NoError(t, s.RunOnce())

		assert.Equal(t, []string{"B:p=1", "A:p=1"}, log)
	})

	t.Run("one listener on two projections", func(t *testing.T) {
		s := newFrozen()
		var log []string

		_, _ = s.Register([]string{"x", "y"}, recorder(&log, "L"))

		require.NoError(t, s.ProjectionUpdate("x", 1))
		require.NoError(t, s.ProjectionUpdate("y", 2))
		require.NoError(t, s.RunOnce())

		assert.Equal(t, []string{"L:y=2", "L:x=1"}, log)
	})
}

// TestScheduler_ContinuationMonopolizes verifies a started multi-step
// task runs all its steps before anything else, including higher priority
// work that became ready while it ran.
func TestScheduler_ContinuationMonopolizes(t *testing.T) {
	s := newFrozen()
	var log []string

	_, err := s.Register([]string{"low"}, recorder(&log, "low"), scheduler.WithPriority(0))
	require.NoError(t, err)
	_, err = s.Register([]string{"urgent"}, recorder(&log, "urgent"), scheduler.WithPriority(100))
	require.NoError(t, err)
	_, err = s.Register([]string{"slow"}, stepper(&log, "slow", 3, func(step int) {
		if step == 1 {
			require.NoError(t, s.ProjectionUpdate("urgent", "now"))
		}
	}), scheduler.WithPriority(10))
	require.NoError(t, err)

	require.NoError(t, s.ProjectionUpdate("low", 0))
	require.NoError(t, s.ProjectionUpdate("slow", 0))
	require.NoError(t, s.RunOnce())

	assert.Equal(t, []string{"slow#1", "slow#2", "slow#3", "urgent:urgent=now", "low:low=0"}, log)
	assert.Equal(t, 0, s.Stats().Queued)
}

func TestScheduler_StarvationAvoidance(t *testing.T) {
	s := newFrozen(scheduler.WithTimeBudget(0))
	var log []string

	_, _ = s.Register([]string{"a"}, recorder(&log, "A"), scheduler.WithPriority(1))
	_, _ = s.Register([]string{"b"}, recorder(&log, "B"), scheduler.WithPriority(2))
	require.NoError(t, s.ProjectionUpdate("a", 1))
	require.NoError(t, s.ProjectionUpdate("b", 1))

	require.NoError(t, s.RunOnce())
	assert.Equal(t, []string{"B:b=1"}, log)

	require.NoError(t, s.RunOnce())
	assert.Equal(t, []string{"B:b=1", "A:a=1"}, log)
}

// TestScheduler_StarvationAvoidance_ContinuationStep verifies a zero
// budget pass advances a parked continuation by exactly one step.
func TestScheduler_StarvationAvoidance_ContinuationStep(t *testing.T) {
	s := newFrozen(scheduler.WithTimeBudget(0))
	var log []string

	_, _ = s.Register([]string{"p"}, stepper(&log, "T", 3, nil))
	require.NoError(t, s.ProjectionUpdate("p", nil))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RunOnce())
	}
	assert.Equal(t, []string{"T#1", "T#2", "T#3"}, log)
	assert.Equal(t, 0, s.Stats().Queued)
}

func TestScheduler_BudgetBoundsPass(t *testing.T) {
	// every clock read moves time by 1ms: the pass reads once at start,
	// then once per loop check, so a 3ms budget admits two items
	s := scheduler.New(
		scheduler.WithClock(clock.NewStepping(epoch, time.Millisecond)),
		scheduler.WithTimeBudget(3*time.Millisecond),
	)
	var log []string

	for i := 0; i < 5; i++ {
		_, err := s.Register([]string{"p"}, recorder(&log, fmt.Sprintf("L%d", i)))
		require.NoError(t, err)
	}
	require.NoError(t, s.ProjectionUpdate("p", 0))

	require.NoError(t, s.RunOnce())
	assert.Len(t, log, 2)
	assert.Equal(t, 3, s.Stats().Queued)
}

func TestScheduler_ContinuationResumesAcrossPasses(t *testing.T) {
	s := scheduler.New(
		scheduler.WithClock(clock.NewStepping(epoch, time.Millisecond)),
		scheduler.WithTimeBudget(3*time.Millisecond),
	)
	var log []string

	_, _ = s.Register([]string{"p"}, stepper(&log, "T", 5, nil))
	require.NoError(t, s.ProjectionUpdate("p", nil))

	require.NoError(t, s.RunOnce())
	assert.Equal(t, []string{"T#1", "T#2"}, log)

	require.NoError(t, s.RunOnce())
	assert.Equal(t, []string{"T#1", "T#2", "T#3", "T#4"}, log)

	require.NoError(t, s.RunOnce())
	assert.Equal(t, []string{"T#1", "T#2", "T#3", "T#4", "T#5"}, log)
	assert.Equal(t, 0, s.Stats().Queued)
}

func TestScheduler_LateSubscriptionReplay(t *testing.T) {
	s := newFrozen()
	var log []string

	require.NoError(t, s.ProjectionUpdate("a", "A"))
	require.NoError(t, s.ProjectionUpdate("c", "C"))

	_, err := s.Register([]string{"a", "b", "c"}, recorder(&log, "late"))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Stats().Queued, "one item per projection that already has data")

	require.NoError(t, s.RunOnce())
	assert.ElementsMatch(t, []string{"late:a=A", "late:c=C"}, log)
}

func TestScheduler_UpdatesAreNotCoalesced(t *testing.T) {
	s := newFrozen()
	var log []string

	_, _ = s.Register([]string{"p"}, recorder(&log, "L"))
	require.NoError(t, s.ProjectionUpdate("p", 1))
	require.NoError(t, s.ProjectionUpdate("p", 2))
	assert.Equal(t, 2, s.Stats().Queued)

	require.NoError(t, s.RunOnce())
	assert.Equal(t, []string{"L:p=2", "L:p=2"}, log, "both items read the latest snapshot")
}

func TestScheduler_UnregisterPurgesAcrossListeners(t *testing.T) {
	s := newFrozen()
	var log []string

	one, err := s.Register([]string{"p1", "p2"}, recorder(&log, "one"))
	require.NoError(t, err)
	_, err = s.Register([]string{"p1"}, recorder(&log, "two"))
	require.NoError(t, err)

	require.NoError(t, s.ProjectionUpdate("p1", 1))
	require.NoError(t, s.ProjectionUpdate("p2", 2))
	require.Equal(t, 3, s.Stats().Queued)

	require.NoError(t, s.Unregister(one, "p1"))

	for _, it := range s.Pending() {
		assert.NotEqual(t, "p1", it.ProjectionID)
	}
	assert.Equal(t, 2, s.Stats().Listeners, "both listeners keep a subscription")

	require.NoError(t, s.RunOnce())
	assert.Equal(t, []string{"one:p2=2"}, log)

	// the shrunk subscription set sticks for future updates
	log = nil
	require.NoError(t, s.ProjectionUpdate("p1", 3))
	require.NoError(t, s.RunOnce())
	assert.Equal(t, []string{"two:p1=3"}, log)
}

func TestScheduler_UnregisterAll(t *testing.T) {
	s := newFrozen()
	var log []string

	h, _ := s.Register([]string{"a", "b"}, recorder(&log, "L"))
	require.NoError(t, s.ProjectionUpdate("a", 1))
	require.NoError(t, s.ProjectionUpdate("b", 1))

	require.NoError(t, s.Unregister(h))
	assert.Equal(t, 0, s.Stats().Listeners)
	assert.Equal(t, 0, s.Stats().Queued)

	require.NoError(t, s.ProjectionUpdate("a", 2))
	require.NoError(t, s.RunOnce())
	assert.Empty(t, log)
}

func TestScheduler_UnregisterUnknownHandleIsNoop(t *testing.T) {
	s := newFrozen()
	var log []string

	_, _ = s.Register([]string{"p"}, recorder(&log, "L"))
	require.NoError(t, s.ProjectionUpdate("p", 1))

	require.NoError(t, s.Unregister(99, "p"))
	assert.Equal(t, 1, s.Stats().Queued, "an unknown handle purges nothing")
}

func TestScheduler_UnregisterValidatesIDs(t *testing.T) {
	s := newFrozen()
	h, _ := s.Register([]string{"p"}, recorder(new([]string), "L"))

	err := s.Unregister(h, "p", "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Equal(t, 1, s.Stats().Listeners, "a rejected call changes nothing")
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := newFrozen()
	cb := recorder(new([]string), "L")

	cases := map[string]struct {
		ids []string
		cb  domain.Callback
	}{
		"empty id":       {ids: []string{""}, cb: cb},
		"empty sequence": {ids: []string{}, cb: cb},
		"empty entry":    {ids: []string{"a", ""}, cb: cb},
		"nil callback":   {ids: []string{"a"}, cb: nil},
		"nil ids":        {ids: nil, cb: cb},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h, err := s.Register(tc.ids, tc.cb)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
			assert.Zero(t, h)
		})
	}

	assert.Equal(t, 0, s.Stats().Listeners)
	h, err := s.Register([]string{"a"}, cb)
	require.NoError(t, err)
	assert.Equal(t, domain.Handle(1), h, "failed registrations issue no handle")
}

func TestScheduler_ProjectionUpdateRejectsEmptyID(t *testing.T) {
	s := newFrozen()
	assert.ErrorIs(t, s.ProjectionUpdate("", 1), domain.ErrInvalidArgument)
	assert.Equal(t, 0, s.Stats().Projections)
}

func TestScheduler_ListenerDefaults(t *testing.T) {
	s := newFrozen()
	_, _ = s.Register([]string{"p", "p"}, recorder(new([]string), "L"))

	ls := s.Listeners()
	require.Len(t, ls, 1)
	assert.Equal(t, "unnamed", ls[0].Name)
	assert.Equal(t, 0, ls[0].Priority)
	assert.Equal(t, []string{"p"}, ls[0].ProjectionIDs)
}

func TestScheduler_CallbackErrorDropsItem(t *testing.T) {
	s := newFrozen()
	var log []string
	boom := errors.New("boom")

	_, _ = s.Register([]string{"p"}, recorder(&log, "ok"), scheduler.WithPriority(1))
	_, _ = s.Register([]string{"p"}, func(any, string) (domain.Resumable, error) {
		return nil, boom
	}, scheduler.WithPriority(2), scheduler.WithName("bad"))
	require.NoError(t, s.ProjectionUpdate("p", 1))

	err := s.RunOnce()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, scheduler.IsCallbackError(err))

	var ce *scheduler.CallbackError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "bad", ce.Listener)
	assert.Equal(t, "p", ce.ProjectionID)
	assert.False(t, ce.Resumed)

	assert.Empty(t, log, "the pass stops at the failure")
	assert.Equal(t, 1, s.Stats().Queued)

	require.NoError(t, s.RunOnce())
	assert.Equal(t, []string{"ok:p=1"}, log)
}

func TestScheduler_ContinuationErrorDropsItem(t *testing.T) {
	s := newFrozen()
	boom := errors.New("step failed")
	steps := 0

	_, _ = s.Register([]string{"p"}, func(any, string) (domain.Resumable, error) {
		return domain.StepFunc(func() (bool, error) {
			steps++
			if steps == 2 {
				return false, boom
			}
			return false, nil
		}), nil
	})
	require.NoError(t, s.ProjectionUpdate("p", 1))

	err := s.RunOnce()
	var ce *scheduler.CallbackError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Resumed)
	assert.Equal(t, 2, steps)
	assert.Equal(t, 0, s.Stats().Queued)
}

func TestScheduler_ReentrantRunOnce(t *testing.T) {
	s := newFrozen()
	var inner error

	_, _ = s.Register([]string{"p"}, func(any, string) (domain.Resumable, error) {
		inner = s.RunOnce()
		return nil, nil
	})
	require.NoError(t, s.ProjectionUpdate("p", 1))

	require.NoError(t, s.RunOnce())
	assert.ErrorIs(t, inner, scheduler.ErrReentrantRun)
}

func TestScheduler_UpdatesFromCallbackJoinSamePass(t *testing.T) {
	s := newFrozen()
	var log []string

	_, _ = s.Register([]string{"derived"}, recorder(&log, "sink"))
	_, _ = s.Register([]string{"source"}, func(data any, _ string) (domain.Resumable, error) {
		log = append(log, "source")
		return nil, s.ProjectionUpdate("derived", data.(int)*2)
	})

	require.NoError(t, s.ProjectionUpdate("source", 21))
	require.NoError(t, s.RunOnce())

	assert.Equal(t, []string{"source", "sink:derived=42"}, log)
}

func TestScheduler_SelfUnregisterStopsContinuation(t *testing.T) {
	s := newFrozen()
	var h domain.Handle
	steps := 0

	h, _ = s.Register([]string{"p"}, func(any, string) (domain.Resumable, error) {
		return domain.StepFunc(func() (bool, error) {
			steps++
			if steps == 2 {
				require.NoError(t, s.Unregister(h))
			}
			return false, nil
		}), nil
	})
	require.NoError(t, s.ProjectionUpdate("p", 1))

	require.NoError(t, s.RunOnce())
	assert.Equal(t, 2, steps)
	assert.Equal(t, 0, s.Stats().Queued)
}

func TestScheduler_PartialSelfUnregisterStopsContinuation(t *testing.T) {
	s := newFrozen()
	var h domain.Handle
	var log []string

	h, _ = s.Register([]string{"p1", "p2"}, func(data any, pid string) (domain.Resumable, error) {
		if pid == "p2" {
			log = append(log, fmt.Sprintf("p2=%v", data))
			return nil, nil
		}
		return domain.StepFunc(func() (bool, error) {
			log = append(log, "p1 step")
			require.NoError(t, s.Unregister(h, "p1"))
			return false, nil
		}), nil
	})
	require.NoError(t, s.ProjectionUpdate("p1", 1))
	require.NoError(t, s.ProjectionUpdate("p2", 2))

	require.NoError(t, s.RunOnce())
	assert.Equal(t, []string{"p2=2", "p1 step"}, log)
	assert.Empty(t, s.Pending(), "no item for p1 may survive the unsubscribe")

	l, ok := s.Listener(h)
	require.True(t, ok)
	assert.Equal(t, []string{"p2"}, l.ProjectionIDs)
}

func TestScheduler_FailingPassIsRecorded(t *testing.T) {
	var passes, executed int
	s := newFrozen(scheduler.WithHooks(scheduler.Hooks{
		OnPass: func(_ time.Duration, n int) {
			passes++
			executed = n
		},
	}))
	_, _ = s.Register([]string{"p"}, func(any, string) (domain.Resumable, error) {
		return nil, errors.New("boom")
	})
	require.NoError(t, s.ProjectionUpdate("p", 1))

	require.Error(t, s.RunOnce())
	assert.Equal(t, 1, passes)
	assert.Equal(t, 1, executed)
}

func TestScheduler_Hooks(t *testing.T) {
	var invoked, resumed, dropped, failed, passes int
	s := newFrozen(scheduler.WithHooks(scheduler.Hooks{
		OnInvoke:  func(string) { invoked++ },
		OnResume:  func(string) { resumed++ },
		OnDrop:    func() { dropped++ },
		OnFailure: func(string) { failed++ },
		OnPass:    func(time.Duration, int) { passes++ },
	}))
	var log []string

	_, _ = s.Register([]string{"p"}, stepper(&log, "T", 3, nil))
	require.NoError(t, s.ProjectionUpdate("p", 1))
	require.NoError(t, s.RunOnce())

	assert.Equal(t, 1, invoked)
	assert.Equal(t, 2, resumed)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 1, passes)
}

func TestScheduler_TimeBudget(t *testing.T) {
	s := scheduler.New()
	assert.Equal(t, 10*time.Millisecond, s.TimeBudget())

	s.SetTimeBudget(25 * time.Millisecond)
	assert.Equal(t, 25*time.Millisecond, s.TimeBudget())

	s.SetTimeBudget(-time.Second)
	assert.Equal(t, time.Duration(0), s.TimeBudget())
}

func TestScheduler_SnapshotAndDepths(t *testing.T) {
	s := newFrozen()
	_, _ = s.Register([]string{"p"}, recorder(new([]string), "a"), scheduler.WithPriority(3))
	_, _ = s.Register([]string{"p"}, recorder(new([]string), "b"), scheduler.WithPriority(3))
	require.NoError(t, s.ProjectionUpdate("p", "data"))

	v, ok := s.Snapshot("p")
	assert.True(t, ok)
	assert.Equal(t, "data", v)
	assert.Equal(t, map[int]int{3: 2}, s.Depths())

	_, ok = s.Snapshot("missing")
	assert.False(t, ok)
}

func TestScheduler_ListenerLookup(t *testing.T) {
	s := newFrozen()
	h, _ := s.Register([]string{"a", "b"}, recorder(new([]string), "L"), scheduler.WithName("lookup"))

	l, ok := s.Listener(h)
	require.True(t, ok)
	assert.Equal(t, "lookup", l.Name)

	l.ProjectionIDs[0] = "mutated"
	again, _ := s.Listener(h)
	assert.Equal(t, []string{"a", "b"}, again.ProjectionIDs, "callers get a copy")

	_, ok = s.Listener(h + 1)
	assert.False(t, ok)
}
