// Package metrics exposes Prometheus counters for cycles, accounts and games.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tapfarm"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	CyclesTotal        *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	PassesTotal        prometheus.Counter
	AccountsProcessed  prometheus.Counter
	AccountFailures    *prometheus.CounterVec
	AccountsActive     prometheus.Gauge
	AccountsPending    prometheus.Gauge
	AcquireAttempts    *prometheus.CounterVec
	GameRuns           *prometheus.CounterVec
	GameDuration       *prometheus.HistogramVec
	NextFireTimestamp  prometheus.Gauge
	NotificationsTotal *prometheus.CounterVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	return NewWith(prometheus.NewRegistry())
}

// NewWith registers all collectors on reg
func NewWith(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cycle",
				Name:      "finished_total",
				Help:      "Cycles finished, by final status",
			},
			[]string{"status"},
		),
		CycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "cycle",
				Name:      "duration_seconds",
				Help:      "Wall time of a cycle from first pass to report",
				Buckets:   prometheus.ExponentialBuckets(60, 2, 8), // 1m to ~2h
			},
		),
		PassesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cycle",
				Name:      "passes_total",
				Help:      "Passes over the account list",
			},
		),
		AccountsProcessed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "account",
				Name:      "processed_total",
				Help:      "Accounts that produced at least one game result",
			},
		),
		AccountFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "account",
				Name:      "failures_total",
				Help:      "Account passes that ended without results, by stage",
			},
			[]string{"stage"},
		),
		AccountsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "account",
				Name:      "active",
				Help:      "Active accounts in the current cycle",
			},
		),
		AccountsPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "account",
				Name:      "pending",
				Help:      "Active accounts not yet processed in the current cycle",
			},
		),
		AcquireAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "acquire_attempts_total",
				Help:      "Remote browser open attempts, by result",
			},
			[]string{"result"},
		),
		GameRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "game",
				Name:      "runs_total",
				Help:      "Game driver runs, by game and result",
			},
			[]string{"game", "result"},
		),
		GameDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "game",
				Name:      "duration_seconds",
				Help:      "Wall time of one game driver run",
				Buckets:   prometheus.ExponentialBuckets(5, 2, 8), // 5s to ~10m
			},
			[]string{"game"},
		),
		NextFireTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "next_fire_timestamp_seconds",
				Help:      "Unix time of the next scheduled cycle",
			},
		),
		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notify",
				Name:      "messages_total",
				Help:      "Messages sent to the chat, by kind and result",
			},
			[]string{"kind", "result"},
		),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// CycleFinished records the end of a cycle
func (m *Metrics) CycleFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(status).Inc()
	m.CycleDuration.Observe(d.Seconds())
	m.AccountsPending.Set(0)
}

// PassStarted records a new pass and the remaining work
func (m *Metrics) PassStarted(active, pending int) {
	if m == nil {
		return
	}
	m.PassesTotal.Inc()
	m.AccountsActive.Set(float64(active))
	m.AccountsPending.Set(float64(pending))
}

// AccountProcessed records an account that produced results
func (m *Metrics) AccountProcessed() {
	if m == nil {
		return
	}
	m.AccountsProcessed.Inc()
	m.AccountsPending.Dec()
}

// AccountFailed records an account pass that ended at stage
func (m *Metrics) AccountFailed(stage string) {
	if m == nil {
		return
	}
	m.AccountFailures.WithLabelValues(stage).Inc()
}

// AcquireAttempt records one remote browser open attempt
func (m *Metrics) AcquireAttempt(ok bool) {
	if m == nil {
		return
	}
	m.AcquireAttempts.WithLabelValues(result(ok)).Inc()
}

// GamePlayed records one driver run
func (m *Metrics) GamePlayed(game string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.GameRuns.WithLabelValues(game, result(ok)).Inc()
	m.GameDuration.WithLabelValues(game).Observe(d.Seconds())
}

// ScheduleArmed records the next fire time
func (m *Metrics) ScheduleArmed(at time.Time) {
	if m == nil {
		return
	}
	m.NextFireTimestamp.Set(float64(at.Unix()))
}

// Notification records one chat delivery
func (m *Metrics) Notification(kind string, ok bool) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind, result(ok)).Inc()
}
