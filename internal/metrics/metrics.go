// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_evaluations_total",
			Help: "Total number of evaluations by outcome",
		},
		[]string{"outcome"},
	)

	EvaluationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_evaluation_errors_total",
			Help: "Total number of evaluations that failed, by error class",
		},
		[]string{"class"},
	)

	EvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kestrel_evaluation_duration_seconds",
			Help:    "Duration of evaluations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"outcome"},
	)

	KnockoutViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_knockout_violations_total",
			Help: "Total number of knockout rule violations by rule",
		},
		[]string{"rule"},
	)

	FraudFlags = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_fraud_flags_total",
			Help: "Total number of fraud flags raised by code",
		},
		[]string{"code"},
	)

	Warnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_warnings_total",
			Help: "Total number of advisory warnings by stage",
		},
		[]string{"stage"},
	)

	ConfigUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_config_updates_total",
			Help: "Total number of configuration versions written by kind",
		},
		[]string{"kind"},
	)

	WorkerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_worker_messages_total",
			Help: "Total number of evaluation requests consumed by the worker, by result",
		},
		[]string{"result"},
	)
)
