// Package prometheus exports chorus engine and backend telemetry as
// Prometheus metrics.
package prometheus

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/fwojciec/chorus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Interface compliance checks.
var (
	_ chorus.Observer        = (*Collector)(nil)
	_ chorus.BackendObserver = (*Collector)(nil)
)

// Collector records session and backend metrics. It is safe for concurrent
// use.
type Collector struct {
	framesTotal     *prometheus.CounterVec
	flushesTotal    *prometheus.CounterVec
	sessionsTotal   *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	channelsTotal   *prometheus.CounterVec

	backendRequests *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	backendTokens   *prometheus.CounterVec
	backendInFlight *prometheus.GaugeVec
}

// NewCollector registers the chorus metrics with reg under namespace.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		framesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Frames applied by sessions, by kind",
			},
			[]string{"kind", "ignored"},
		),
		flushesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_flushes_total",
				Help:      "Snapshots delivered to consumers",
			},
			[]string{"final"},
		),
		sessionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Finished sessions, by outcome",
			},
			[]string{"outcome"},
		),
		sessionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Session wall time in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		channelsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channels_total",
				Help:      "Channel verdicts of finished sessions",
			},
			[]string{"verdict"},
		),
		backendRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_total",
				Help:      "Backend generations, by backend and status",
			},
			[]string{"backend", "status"},
		),
		backendDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_duration_seconds",
				Help:      "Backend generation duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"backend"},
		),
		backendTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_tokens_total",
				Help:      "Tokens consumed by backends",
			},
			[]string{"backend", "type"}, // type: input, output, cache_read
		),
		backendInFlight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backend_in_flight",
				Help:      "Backend generations currently running",
			},
			[]string{"backend"},
		),
	}
}

// FrameApplied implements chorus.Observer.
func (c *Collector) FrameApplied(kind chorus.FrameKind, ignored bool) {
	c.framesTotal.WithLabelValues(string(kind), strconv.FormatBool(ignored)).Inc()
}

// Flushed implements chorus.Observer.
func (c *Collector) Flushed(final bool) {
	c.flushesTotal.WithLabelValues(strconv.FormatBool(final)).Inc()
}

// SessionFinished implements chorus.Observer.
func (c *Collector) SessionFinished(res chorus.SessionResult) {
	outcome := res.Outcome.String()
	c.sessionsTotal.WithLabelValues(outcome).Inc()
	c.sessionDuration.WithLabelValues(outcome).Observe(res.Duration().Seconds())
	for _, ch := range res.Channels {
		c.channelsTotal.WithLabelValues(ch.Verdict.String()).Inc()
	}
}

// BackendStarted implements chorus.BackendObserver.
func (c *Collector) BackendStarted(name string) {
	c.backendInFlight.WithLabelValues(name).Inc()
}

// BackendFinished implements chorus.BackendObserver.
func (c *Collector) BackendFinished(name string, elapsed time.Duration, usage chorus.Usage, err error) {
	c.backendInFlight.WithLabelValues(name).Dec()
	c.backendRequests.WithLabelValues(name, backendStatus(err)).Inc()
	c.backendDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if usage.InputTokens > 0 {
		c.backendTokens.WithLabelValues(name, "input").Add(float64(usage.InputTokens))
	}
	if usage.OutputTokens > 0 {
		c.backendTokens.WithLabelValues(name, "output").Add(float64(usage.OutputTokens))
	}
	if usage.CacheReadTokens > 0 {
		c.backendTokens.WithLabelValues(name, "cache_read").Add(float64(usage.CacheReadTokens))
	}
}

func backendStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
