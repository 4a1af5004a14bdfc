// Package metrics records unit-of-work activity.
//
// Recorder is the narrow interface the unit-of-work factory and the retry
// concern report to. Prometheus publishes the counters through a
// client_golang registry; Nop discards them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome is how a unit of work ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeDiscarded Outcome = "discarded"
)

// Recorder receives unit-of-work events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	// Started is called when a unit of work is created.
	Started(usecase string)
	// Finished is called once per unit of work with its lifetime.
	Finished(usecase string, outcome Outcome, d time.Duration)
	// Conflict is called when completion fails with a concurrent modification.
	Conflict(usecase string)
	// Retry is called before the retry concern re-runs a usecase.
	Retry(usecase string)
}

// Nop discards all events.
type Nop struct{}

func (Nop) Started(string)                          {}
func (Nop) Finished(string, Outcome, time.Duration) {}
func (Nop) Conflict(string)                         {}
func (Nop) Retry(string)                            {}

// Prometheus publishes unit-of-work metrics.
type Prometheus struct {
	started   *prometheus.CounterVec
	finished  *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	retries   *prometheus.CounterVec
	open      prometheus.Gauge
	duration  *prometheus.HistogramVec
}

// NewPrometheus creates the collectors under namespace and registers them
// with reg. A nil reg leaves them unregistered.
func NewPrometheus(reg prometheus.Registerer, namespace string) (*Prometheus, error) {
	p := &Prometheus{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "unitofwork",
			Name:      "started_total",
			Help:      "Units of work created.",
		}, []string{"usecase"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "unitofwork",
			Name:      "finished_total",
			Help:      "Units of work finished, by outcome.",
		}, []string{"usecase", "outcome"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "unitofwork",
			Name:      "conflicts_total",
			Help:      "Completions rejected by a concurrent modification.",
		}, []string{"usecase"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "unitofwork",
			Name:      "retries_total",
			Help:      "Usecase re-runs after a concurrent modification.",
		}, []string{"usecase"}),
		open: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "unitofwork",
			Name:      "open",
			Help:      "Units of work currently open.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "unitofwork",
			Name:      "duration_seconds",
			Help:      "Time from creation to completion or discard.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"usecase", "outcome"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{p.started, p.finished, p.conflicts, p.retries, p.open, p.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func (p *Prometheus) Started(usecase string) {
	p.started.WithLabelValues(usecase).Inc()
	p.open.Inc()
}

func (p *Prometheus) Finished(usecase string, outcome Outcome, d time.Duration) {
	p.finished.WithLabelValues(usecase, string(outcome)).Inc()
	p.duration.WithLabelValues(usecase, string(outcome)).Observe(d.Seconds())
	p.open.Dec()
}

func (p *Prometheus) Conflict(usecase string) {
	p.conflicts.WithLabelValues(usecase).Inc()
}

func (p *Prometheus) Retry(usecase string) {
	p.retries.WithLabelValues(usecase).Inc()
}
