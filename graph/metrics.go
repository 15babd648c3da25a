package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSteps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "langgraph",
		Subsystem: "executor",
		Name:      "supersteps_total",
		Help:      "Number of supersteps executed.",
	})
	metricTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "langgraph",
		Subsystem: "executor",
		Name:      "tasks_total",
		Help:      "Number of tasks executed, by outcome.",
	}, []string{"outcome"})
	metricTaskRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "langgraph",
		Subsystem: "executor",
		Name:      "task_retries_total",
		Help:      "Number of task retry attempts.",
	})
	metricInterrupts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "langgraph",
		Subsystem: "executor",
		Name:      "interrupts_total",
		Help:      "Number of graph interrupts raised.",
	})
	metricCheckpointPut = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "langgraph",
		Subsystem: "checkpoint",
		Name:      "put_seconds",
		Help:      "Latency of checkpoint commits.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Task outcome labels.
const (
	taskOutcomeOK          = "ok"
	taskOutcomeError       = "error"
	taskOutcomeInterrupted = "interrupted"
	taskOutcomeReplayed    = "replayed"
)
