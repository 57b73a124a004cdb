package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "codefuse_extraction_seconds",
		Help:    "Time spent extracting one program unit.",
		Buckets: prometheus.DefBuckets,
	})

	ExtractionFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codefuse_extraction_failures_total",
		Help: "Total number of units excluded because they could not be extracted.",
	})

	FusionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "codefuse_fusion_seconds",
		Help:    "Time spent comparing and synthesizing one version set.",
		Buckets: prometheus.DefBuckets,
	})

	FusionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codefuse_fusions_total",
		Help: "Total number of fusion requests by result.",
	}, []string{"result"})

	ConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codefuse_conflicts_total",
		Help: "Total number of conflicting declarations detected.",
	}, []string{"kind"})

	DeclarationsAddedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codefuse_declarations_added_total",
		Help: "Total number of non-base declarations appended to fused output.",
	}, []string{"kind"})

	ValidationStagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codefuse_validation_stage_total",
		Help: "Total number of validation stage executions by outcome.",
	}, []string{"stage", "result"})

	ToolInvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codefuse_tool_invocations_total",
		Help: "Total number of external tool invocations by outcome.",
	}, []string{"tool", "result"})

	ToolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codefuse_tool_seconds",
		Help:    "Wall-clock time of external tool invocations.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"tool"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codefuse_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})
)
