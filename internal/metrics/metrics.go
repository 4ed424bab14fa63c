package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/gyre/internal/scheduler"
	"github.com/notifyhub/gyre/internal/service"
	"github.com/notifyhub/gyre/internal/worker"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	CallbacksInvoked *prometheus.CounterVec
	StepsResumed     *prometheus.CounterVec
	CallbackFailures *prometheus.CounterVec
	StaleDropped     prometheus.Counter
	PassDuration     prometheus.Histogram
	PassExecuted     prometheus.Histogram
	QueueDepth       prometheus.Gauge
	Listeners        prometheus.Gauge

	DeliveriesSent    prometheus.Counter
	DeliveriesFailed  prometheus.Counter
	DeliveryLatency   prometheus.Histogram
	ProjectionsIngest *prometheus.CounterVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CallbacksInvoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gyre_callbacks_invoked_total",
			Help: "Fresh listener callback invocations.",
		}, []string{"listener"}),

		StepsResumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gyre_continuation_steps_total",
			Help: "Steps taken on resumed continuations.",
		}, []string{"listener"}),

		CallbackFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gyre_callback_failures_total",
			Help: "Callbacks or continuation steps that returned an error.",
		}, []string{"listener"}),

		StaleDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gyre_stale_items_dropped_total",
			Help: "Queued items discarded because their listener was removed.",
		}),

		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gyre_pass_duration_seconds",
			Help:    "Wall-clock time spent in one scheduler pass.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),

		PassExecuted: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gyre_pass_executed_items",
			Help:    "Items executed per non-empty scheduler pass.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gyre_queue_depth",
			Help: "Current number of items in the ready queue.",
		}),
		Listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gyre_listeners",
			Help: "Currently registered listeners.",
		}),

		DeliveriesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gyre_webhook_deliveries_sent_total",
			Help: "Webhook deliveries acknowledged with a 2xx.",
		}),
		DeliveriesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gyre_webhook_deliveries_failed_total",
			Help: "Webhook deliveries that exhausted their attempts.",
		}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gyre_webhook_delivery_seconds",
			Help:    "Latency of a single webhook attempt.",
			Buckets: prometheus.DefBuckets,
		}),
		ProjectionsIngest: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gyre_projection_updates_total",
			Help: "Projection updates accepted, by source.",
		}, []string{"source"}),
	}

	reg.MustRegister(
		m.CallbacksInvoked,
		m.StepsResumed,
		m.CallbackFailures,
		m.StaleDropped,
		m.PassDuration,
		m.PassExecuted,
		m.QueueDepth,
		m.Listeners,
		m.DeliveriesSent,
		m.DeliveriesFailed,
		m.DeliveryLatency,
		m.ProjectionsIngest,
	)

	return m
}

// SchedulerHooks returns the observation callbacks expected by
// scheduler.WithHooks, keeping the scheduler package free of prometheus.
func (m *Metrics) SchedulerHooks() scheduler.Hooks {
	return scheduler.Hooks{
		OnInvoke: func(listener string) {
			m.CallbacksInvoked.WithLabelValues(listener).Inc()
		},
		OnResume: func(listener string) {
			m.StepsResumed.WithLabelValues(listener).Inc()
		},
		OnDrop: m.StaleDropped.Inc,
		OnFailure: func(listener string) {
			m.CallbackFailures.WithLabelValues(listener).Inc()
		},
		OnPass: func(elapsed time.Duration, executed int) {
			if executed == 0 {
				return
			}
			m.PassDuration.Observe(elapsed.Seconds())
			m.PassExecuted.Observe(float64(executed))
		},
	}
}

// ServiceHooks returns the callbacks the projection service reports
// accepted updates and webhook outcomes through.
func (m *Metrics) ServiceHooks() service.Hooks {
	return service.Hooks{
		OnPublished: func(source string) {
			m.ProjectionsIngest.WithLabelValues(source).Inc()
		},
		OnSent: func(latency time.Duration) {
			m.DeliveriesSent.Inc()
			m.DeliveryLatency.Observe(latency.Seconds())
		},
		OnFailed: m.DeliveriesFailed.Inc,
	}
}

// WorkerHooks returns the driver callbacks that keep the scheduler gauges
// current after every tick.
func (m *Metrics) WorkerHooks() worker.Hooks {
	return worker.Hooks{OnTick: m.ObserveScheduler}
}

// ObserveScheduler refreshes the queue and listener gauges.
func (m *Metrics) ObserveScheduler(st scheduler.Stats) {
	m.QueueDepth.Set(float64(st.Queued))
	m.Listeners.Set(float64(st.Listeners))
}
