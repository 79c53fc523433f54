package httpauth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xonoko/ldapauth/auth"
)

// Metrics records authentication outcomes. It implements auth.Observer.
type Metrics struct {
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ldapauth",
				Name:      "authentications_total",
				Help:      "Total number of authentication attempts",
			},
			[]string{"outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ldapauth",
				Name:      "authentication_duration_seconds",
				Help:      "Authentication latency in seconds, directory and datastore included",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) ObserveAuthentication(outcome auth.Outcome, elapsed time.Duration) {
	m.attempts.WithLabelValues(outcome.String()).Inc()
	m.duration.WithLabelValues(outcome.String()).Observe(elapsed.Seconds())
}
