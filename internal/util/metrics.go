package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_runs_total",
		Help: "Total number of pipeline runs by outcome",
	}, []string{"status"})

	PipelineRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_run_duration_seconds",
		Help:    "End-to-end duration of pipeline runs",
		Buckets: prometheus.DefBuckets,
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Duration of each pipeline stage",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	StageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_stage_failures_total",
		Help: "Total number of aborted stages",
	}, []string{"stage"})

	RecordsProcessed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_records",
		Help: "Record counts of the latest run per stage and entity",
	}, []string{"stage", "entity"})

	RecordsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_records_dropped_total",
		Help: "Total number of rows dropped during cleaning",
	}, []string{"entity", "reason"})

	ValidationChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_validation_checks_total",
		Help: "Total number of data quality checks by status",
	}, []string{"dataset", "status"})

	KPIRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_kpi_rows",
		Help: "Row count of each KPI table in the latest run",
	}, []string{"kpi"})

	KPIFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_kpi_failures_total",
		Help: "Total number of degraded KPI computations",
	}, []string{"kpi"})

	CrossCheckMismatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_crosscheck_mismatches_total",
		Help: "Total number of differences between the memory and SQL executors",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
