package notifications

import (
	"time"

	"github.com/bissquit/submanage/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "communications",
			Name:      "sent_total",
			Help:      "Subscriber messages processed by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	messageSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "communications",
			Name:      "send_duration_seconds",
			Help:      "Time to hand a message to its channel",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)
)

func recordMessageSent(channel, status string) {
	messagesSent.WithLabelValues(channel, status).Inc()
}

func recordSendDuration(channel string, d time.Duration) {
	messageSendDuration.WithLabelValues(channel).Observe(d.Seconds())
}
