// Package metrics exposes Prometheus instruments for email dispatch.
//
// A [Collector] implements both mailer.Observer and mailer.AttemptObserver:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg)
//	svc := mailer.NewService(registry, client, mailer.WithObserver(m))
//	client := mailer.NewClient(conn, mailer.WithAttemptObserver(m))
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

const namespace = "courier"

// Attempt outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeFailure = "failure"
)

// CodeOK labels successful sends.
const CodeOK = "OK"

// Collector records send and attempt metrics.
type Collector struct {
	sends    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New creates a Collector and registers its instruments with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		// Labels:
		// - tenant:   project key
		// - template: template type, "raw" for caller-built messages
		// - code:     "OK" or the error code of the result
		sends: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sends_total",
				Help:      "Total number of template and raw sends by outcome",
			},
			[]string{"tenant", "template", "code"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "send_duration_seconds",
				Help:      "Time spent rendering and delivering one email",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"tenant"},
		),
		// Labels:
		// - provider: client name, such as "gmail"
		// - outcome:  "success", "retry" or "failure"
		attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "attempts_total",
				Help:      "Total number of provider delivery attempts",
			},
			[]string{"provider", "outcome"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "attempt_duration_seconds",
				Help:      "Latency of a single provider call",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
	}
}

// SendCompleted implements mailer.Observer.
func (c *Collector) SendCompleted(_ context.Context, tenant, templateType string, result mailer.SendResult, elapsed time.Duration) {
	code := CodeOK
	if !result.OK() {
		code = result.Code()
	}
	if templateType == "" {
		templateType = "raw"
	}
	c.sends.WithLabelValues(tenant, templateType, code).Inc()
	c.duration.WithLabelValues(tenant).Observe(elapsed.Seconds())
}

// ObserveAttempt implements mailer.AttemptObserver.
func (c *Collector) ObserveAttempt(_ context.Context, a mailer.Attempt) {
	c.attempts.WithLabelValues(a.Provider, outcome(a)).Inc()
	c.latency.WithLabelValues(a.Provider).Observe(a.Duration.Seconds())
}

func outcome(a mailer.Attempt) string {
	switch {
	case a.Err == nil:
		return OutcomeSuccess
	case a.WillRetry:
		return OutcomeRetry
	default:
		return OutcomeFailure
	}
}
