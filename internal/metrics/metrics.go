package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "kabuscout"

// Metrics holds the process counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	ScanUnits        *prometheus.CounterVec
	ScanDuration     *prometheus.GaugeVec
	AdvisoryAttempts *prometheus.CounterVec
	AdvisoryOutcomes *prometheus.CounterVec
	PicksCreated     prometheus.Counter
	PicksSwept       prometheus.Counter
	PicksVerified    *prometheus.CounterVec

	pushURL string
	job     string
}

// New registers all collectors on a private registry. pushURL may be empty.
func New(pushURL, job string) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ScanUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_units_total",
			Help:      "Watchlist symbols processed, by outcome.",
		}, []string{"category", "outcome"}),
		ScanDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of the most recent scan.",
		}, []string{"category"}),
		AdvisoryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisory_attempts_total",
			Help:      "Advisory service calls, by error class.",
		}, []string{"class"}),
		AdvisoryOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisory_outcomes_total",
			Help:      "Advisory requests, by final outcome.",
		}, []string{"outcome"}),
		PicksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "picks_created_total",
			Help:      "Picks registered.",
		}),
		PicksSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "picks_swept_total",
			Help:      "Picks removed after expiry.",
		}),
		PicksVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "picks_verified_total",
			Help:      "Pick verifications, by result.",
		}, []string{"result"}),
		pushURL: pushURL,
		job:     job,
	}
	m.Registry.MustRegister(m.ScanUnits, m.ScanDuration, m.AdvisoryAttempts, m.AdvisoryOutcomes,
		m.PicksCreated, m.PicksSwept, m.PicksVerified)
	return m
}

func (m *Metrics) ObserveUnit(category, outcome string) {
	if m == nil {
		return
	}
	m.ScanUnits.WithLabelValues(category, outcome).Inc()
}

func (m *Metrics) ObserveScan(category string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScanDuration.WithLabelValues(category).Set(d.Seconds())
}

func (m *Metrics) ObserveAdvisoryAttempt(class string) {
	if m == nil {
		return
	}
	m.AdvisoryAttempts.WithLabelValues(class).Inc()
}

func (m *Metrics) ObserveAdvisoryOutcome(outcome string) {
	if m == nil {
		return
	}
	m.AdvisoryOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePicksCreated(n int) {
	if m == nil {
		return
	}
	m.PicksCreated.Add(float64(n))
}

func (m *Metrics) ObservePicksSwept(n int) {
	if m == nil {
		return
	}
	m.PicksSwept.Add(float64(n))
}

func (m *Metrics) ObserveVerification(result string) {
	if m == nil {
		return
	}
	m.PicksVerified.WithLabelValues(result).Inc()
}

// Push sends the registry to the configured Pushgateway. Without a URL it does nothing.
func (m *Metrics) Push(ctx context.Context) error {
	if m == nil || m.pushURL == "" {
		return nil
	}
	if err := push.New(m.pushURL, m.job).Gatherer(m.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
