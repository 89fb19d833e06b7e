// Package metrics records retry runs as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bjaus/retryable"
)

// Attempt outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics contains the retry metrics of one namespace.
type Metrics struct {
	Attempts   *prometheus.CounterVec
	Runs       *prometheus.CounterVec
	RunAttempt *prometheus.HistogramVec
}

// New creates the retry metrics under namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		Attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retry",
				Name:      "attempts_total",
				Help:      "Total number of attempts by outcome",
			},
			[]string{"operation", "outcome"},
		),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retry",
				Name:      "runs_total",
				Help:      "Total number of settled runs by reason (ok on success)",
			},
			[]string{"operation", "reason"},
		),

		RunAttempt: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retry",
				Name:      "attempts_per_run",
				Help:      "Number of attempts made by a settled run",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"operation"},
		),
	}
}

// Register adds every metric to reg. Already registered collectors are not an error.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Attempts, m.Runs, m.RunAttempt} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return fmt.Errorf("metrics: register: %w", err)
		}
	}
	return nil
}

// Option returns a controller option recording the run under operation.
func (m *Metrics) Option(operation string) retryable.Option {
	return retryable.Options(
		retryable.OnError(func(context.Context, int, error) {
			m.Attempts.WithLabelValues(operation, OutcomeFailure).Inc()
		}),
		retryable.OnSuccess(func(context.Context, int) {
			m.Attempts.WithLabelValues(operation, OutcomeSuccess).Inc()
		}),
		retryable.OnSettled(func(_ context.Context, attempts int, err error) {
			m.Runs.WithLabelValues(operation, reason(err)).Inc()
			m.RunAttempt.WithLabelValues(operation).Observe(float64(attempts))
		}),
	)
}

func reason(err error) string {
	if err == nil {
		return "ok"
	}
	if r, ok := retryable.ReasonOf(err); ok {
		return r
	}
	return "unknown"
}
