package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sessionsOpenedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "playtime_service",
		Subsystem: "tracker",
		Name:      "sessions_opened_total",
		Help:      "Number of live sessions opened by the tracker.",
	})
	sessionsReconciledCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "playtime_service",
		Subsystem: "tracker",
		Name:      "sessions_reconciled_total",
		Help:      "Number of sessions closed and folded into playtime totals.",
	})
	clampedDurationsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "playtime_service",
		Subsystem: "tracker",
		Name:      "clamped_durations_total",
		Help:      "Number of session durations clamped due to clock skew or the session age cap.",
	})
	lastOpenedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "playtime_service",
		Subsystem: "tracker",
		Name:      "last_session_opened_timestamp_seconds",
		Help:      "Unix timestamp of the most recently opened session.",
	})
	lastReconciledGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "playtime_service",
		Subsystem: "tracker",
		Name:      "last_session_reconciled_timestamp_seconds",
		Help:      "Unix timestamp of the most recently reconciled session.",
	})
)

func init() {
	prometheus.MustRegister(
		sessionsOpenedCounter,
		sessionsReconciledCounter,
		clampedDurationsCounter,
		lastOpenedGauge,
		lastReconciledGauge,
	)
}

// RecordSessionOpened updates the open-session watermark.
func RecordSessionOpened(ts time.Time) {
	sessionsOpenedCounter.Inc()
	if ts.IsZero() {
		return
	}
	lastOpenedGauge.Set(float64(ts.Unix()))
}

// RecordSessionReconciled updates the reconciliation watermark.
func RecordSessionReconciled(ts time.Time) {
	sessionsReconciledCounter.Inc()
	if ts.IsZero() {
		return
	}
	lastReconciledGauge.Set(float64(ts.Unix()))
}

// RecordDurationClamped counts a duration that had to be clamped.
func RecordDurationClamped() {
	clampedDurationsCounter.Inc()
}
