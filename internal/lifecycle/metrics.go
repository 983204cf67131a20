package lifecycle

import (
	"time"

	"github.com/bissquit/submanage/internal/domain"
	"github.com/bissquit/submanage/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "lifecycle",
			Name:      "sweep_runs_total",
			Help:      "Lifecycle sweeps by trigger and outcome",
		},
		[]string{"trigger", "status"},
	)

	sweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "lifecycle",
			Name:      "sweep_duration_seconds",
			Help:      "Time taken by a lifecycle sweep",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"trigger"},
	)

	statusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Subscriber status changes applied by sweeps",
		},
		[]string{"from", "to"},
	)
)

func recordSweep(trigger Trigger, status string, d time.Duration) {
	sweepRuns.WithLabelValues(string(trigger), status).Inc()
	sweepDuration.WithLabelValues(string(trigger)).Observe(d.Seconds())
}

func recordTransition(from, to domain.SubscriberStatus) {
	statusTransitions.WithLabelValues(string(from), string(to)).Inc()
}
