// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bizlens"

// Metrics groups the service's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTPRequests counts requests. Labels: method, route (gin FullPath), status.
	HTTPRequests *prometheus.CounterVec
	// HTTPDuration observes request latency. Labels: method, route.
	HTTPDuration *prometheus.HistogramVec
	// AIRequests counts provider calls. Labels: provider, outcome (success, error, rate_limited, fallback).
	AIRequests *prometheus.CounterVec
	// AICacheEvents counts cache activity. Labels: event (hit, miss, evict).
	AICacheEvents *prometheus.CounterVec
	// RulesTriggered counts triggered automation actions. Labels: action.
	RulesTriggered *prometheus.CounterVec
	// Predictions counts ML predictions. Labels: model.
	Predictions *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in main and a
// fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		AIRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_requests_total",
			Help:      "AI provider calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		AICacheEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_cache_events_total",
			Help:      "AI response cache hits, misses and bulk evictions",
		}, []string{"event"}),
		RulesTriggered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automation_rules_triggered_total",
			Help:      "Automation actions run for triggered rules",
		}, []string{"action"}),
		Predictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "ML predictions served by model",
		}, []string{"model"}),
	}
}

// ObserveAI records an AI provider outcome.
func (m *Metrics) ObserveAI(provider, outcome string) {
	if m == nil {
		return
	}
	m.AIRequests.WithLabelValues(provider, outcome).Inc()
}

// CacheEvent records an AI cache event.
func (m *Metrics) CacheEvent(event string) {
	if m == nil {
		return
	}
	m.AICacheEvents.WithLabelValues(event).Inc()
}

// RuleTriggered records one action run for a triggered rule.
func (m *Metrics) RuleTriggered(action string) {
	if m == nil {
		return
	}
	m.RulesTriggered.WithLabelValues(action).Inc()
}

// Prediction records one prediction for model.
func (m *Metrics) Prediction(model string) {
	if m == nil {
		return
	}
	m.Predictions.WithLabelValues(model).Inc()
}
