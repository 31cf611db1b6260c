// Package metrics exposes the bot loop's Prometheus metrics.
//
// A nil *Metrics is valid and records nothing, so callers do not branch on
// whether metrics are enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "contextbot"

type Metrics struct {
	reg *prometheus.Registry

	iterations prometheus.Counter
	errors     prometheus.Counter
	triggers   *prometheus.CounterVec
	fed        *prometheus.CounterVec
	recent     *prometheus.GaugeVec
	backoff    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "iterations_total",
			Help: "Completed loop iterations.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "iteration_errors_total",
			Help: "Loop iterations that failed.",
		}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "triggers_total",
			Help: "Replies sent because the rule tree fired.",
		}, []string{"channel"}),
		fed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_fed_total",
			Help: "Messages fed to the activity oracle.",
		}, []string{"channel"}),
		recent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "recent_messages",
			Help: "Messages inside the recent window.",
		}, []string{"channel"}),
		backoff: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "backoff_seconds",
			Help: "Last error backoff wait.",
		}),
	}
	m.reg.MustRegister(
		m.iterations, m.errors, m.triggers, m.fed, m.recent, m.backoff,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Iteration() {
	if m != nil {
		m.iterations.Inc()
	}
}

// Failed records an iteration error and the wait chosen for it.
func (m *Metrics) Failed(wait time.Duration) {
	if m != nil {
		m.errors.Inc()
		m.backoff.Set(wait.Seconds())
	}
}

func (m *Metrics) Triggered(channel string) {
	if m != nil {
		m.triggers.WithLabelValues(channel).Inc()
	}
}

// Fed records a batch and the resulting recent-window size.
func (m *Metrics) Fed(channel string, batch, recent int) {
	if m == nil {
		return
	}
	m.fed.WithLabelValues(channel).Add(float64(batch))
	m.recent.WithLabelValues(channel).Set(float64(recent))
}
