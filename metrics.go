package motor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Login outcomes recorded in motor_logins_total.
const (
	loginSuccess    = "success"
	loginOutdated   = "outdated"
	loginMismatch   = "verify_mismatch"
	loginRejected   = "auth_rejected"
	loginAuthError  = "auth_error"
	loginProtocol   = "protocol_error"
	loginCryptoFail = "crypto_error"
)

// metrics are the runtime collectors, registered once per Runtime.
type metrics struct {
	accepted     prometheus.Counter
	throttled    prometheus.Counter
	logins       *prometheus.CounterVec
	online       prometheus.Gauge
	ticks        prometheus.Counter
	behind       prometheus.Counter
	tickDuration prometheus.Histogram
	authDuration prometheus.Histogram
	jobPanics    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		accepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "motor",
			Name:      "connections_accepted_total",
			Help:      "Connections accepted on any listener.",
		}),
		throttled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "motor",
			Name:      "connections_throttled_total",
			Help:      "Connections closed by the per address accept limit.",
		}),
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "motor",
			Name:      "logins_total",
			Help:      "Completed login attempts by outcome.",
		}, []string{"result"}),
		online: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "motor",
			Name:      "players_online",
			Help:      "Clients in the play state.",
		}),
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "motor",
			Name:      "ticks_total",
			Help:      "Ticks executed.",
		}),
		behind: f.NewCounter(prometheus.CounterOpts{
			Namespace: "motor",
			Name:      "ticks_behind_total",
			Help:      "Times the tick loop fell behind and dropped its backlog.",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "motor",
			Name:      "tick_duration_seconds",
			Help:      "Time spent inside the world barrier per tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 10),
		}),
		authDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "motor",
			Name:      "session_request_duration_seconds",
			Help:      "Latency of session server verification.",
			Buckets:   prometheus.DefBuckets,
		}),
		jobPanics: f.NewCounter(prometheus.CounterOpts{
			Namespace: "motor",
			Name:      "job_panics_total",
			Help:      "Jobs that panicked on a worker.",
		}),
	}
}
