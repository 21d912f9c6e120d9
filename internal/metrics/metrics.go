// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harrier_batch_runs_total",
		Help: "Total number of batch passes, labelled by final status.",
	}, []string{"status"})

	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harrier_batch_duration_seconds",
		Help:    "Wall time of a batch pass.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	RuleEvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harrier_rule_evaluation_duration_ms",
		Help:    "Time to evaluate one rule over the population in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	}, []string{"rule_id"})

	RuleTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harrier_rule_triggers_total",
		Help: "Total number of transactions flagged, labelled by rule ID.",
	}, []string{"rule_id"})

	RulesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harrier_rules_skipped_total",
		Help: "Total number of rules skipped during a pass, labelled by rule ID.",
	}, []string{"rule_id"})

	AlertsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harrier_alerts_created_total",
		Help: "Total number of alerts created.",
	})

	AlertsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harrier_alerts_deduplicated_total",
		Help: "Total number of alerts not created because one already existed.",
	})

	AlertsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harrier_alerts_failed_total",
		Help: "Total number of alerts that could not be written.",
	})

	AlertTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harrier_alert_transitions_total",
		Help: "Total number of alert status changes, labelled by target status.",
	}, []string{"status"})

	ModelScoreLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harrier_model_score_lookups_total",
		Help: "Model score lookups, labelled by result (hit, miss, error).",
	}, []string{"result"})

	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harrier_cache_requests_total",
		Help: "Cache reads, labelled by tier (local, redis) and result (hit, miss, error).",
	}, []string{"tier", "result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harrier_http_requests_total",
		Help: "Total number of API requests, labelled by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harrier_http_request_duration_seconds",
		Help:    "API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)
