// Package metrics - prometheus collectors shared by the services
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "packer"

var (
	// TasksProcessed - attempts by terminal status
	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_processed_total",
		Help:      "Packaging task attempts by terminal status.",
	}, []string{"status"})

	// WorkflowDuration - wall time of the UI workflow
	WorkflowDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "workflow_duration_seconds",
		Help:      "Duration of the packing workflow under the timeout supervisor.",
		Buckets:   []float64{5, 15, 30, 60, 90, 120, 180, 240},
	}, []string{"outcome"})

	// DrainIterations - drain iterations by result
	DrainIterations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "drain_iterations_total",
		Help:      "Drain iterations by result.",
	}, []string{"result"})

	// LaneTriggers - lane trigger attempts by result
	LaneTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lane_triggers_total",
		Help:      "Lane trigger attempts by result.",
	}, []string{"result"})

	// WebhookFailures - OMS webhook calls that did not succeed
	WebhookFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_failures_total",
		Help:      "OMS webhook notifications that failed.",
	})

	// Repaired - stale tasks and queue messages recovered by the supervisor
	Repaired = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "repaired_total",
		Help:      "Stale tasks and expired queue messages recovered by the supervisor.",
	}, []string{"kind"})
)
