package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/gyre/internal/clock"
	"github.com/notifyhub/gyre/internal/domain"
	"github.com/notifyhub/gyre/internal/metrics"
	"github.com/notifyhub/gyre/internal/scheduler"
)

func TestSchedulerHooks_CountPassActivity(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s := scheduler.New(
		scheduler.WithClock(clock.NewManual(time.Unix(0, 0))),
		scheduler.WithHooks(m.SchedulerHooks()),
	)

	_, err := s.Register([]string{"p"}, func(any, string) (domain.Resumable, error) {
		return domain.Steps(func() error { return nil }, func() error { return nil }), nil
	}, scheduler.WithName("two-step"))
	require.NoError(t, err)
	gone, err := s.Register([]string{"p"}, func(any, string) (domain.Resumable, error) {
		return nil, nil
	})
	require.NoError(t, err)

	require.NoError(t, s.ProjectionUpdate("p", 1))
	require.NoError(t, s.Unregister(gone))
	// unregistering purged p entirely, so publish again for the survivor
	require.NoError(t, s.ProjectionUpdate("p", 2))
	require.NoError(t, s.RunOnce())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallbacksInvoked.WithLabelValues("two-step")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepsResumed.WithLabelValues("two-step")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PassDuration))

	m.ObserveScheduler(s.Stats())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.QueueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Listeners))
}

func TestServiceHooks(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := m.ServiceHooks()

	h.OnPublished("http")
	h.OnPublished("nats")
	h.OnPublished("nats")
	h.OnSent(20 * time.Millisecond)
	h.OnSent(30 * time.Millisecond)
	h.OnFailed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProjectionsIngest.WithLabelValues("http")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProjectionsIngest.WithLabelValues("nats")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DeliveriesSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveriesFailed))
}
