// Package interfaces declares the pluggable collaborators of the analysis
// engine.
package interfaces

import "time"

// MetricsExporter exports metrics to a monitoring backend.
type MetricsExporter interface {
	// Counter increments a counter metric.
	Counter(name string, value int64, tags map[string]string)

	// Gauge sets a gauge metric to the specified value.
	Gauge(name string, value float64, tags map[string]string)

	// Timer records a duration.
	Timer(name string, duration time.Duration, tags map[string]string)

	// Flush sends any buffered metrics to the backend.
	Flush() error

	// Close releases resources.
	Close() error
}

// Metric names emitted by the analyzer.
const (
	MetricEventsTotal      = "procinsight.analysis.events.total"
	MetricCasesTotal       = "procinsight.analysis.cases.total"
	MetricActivitiesTotal  = "procinsight.analysis.activities.total"
	MetricTransitionsTotal = "procinsight.analysis.transitions.total"
	MetricInsightsTotal    = "procinsight.analysis.insights.total"
	MetricStageDuration    = "procinsight.analysis.stage.duration"
	MetricAnalysisDuration = "procinsight.analysis.duration"
	MetricAnalysisErrors   = "procinsight.analysis.errors"
	MetricEfficiencyScore  = "procinsight.analysis.efficiency_score"
	MetricCacheHits        = "procinsight.cache.hits"
	MetricCacheMisses      = "procinsight.cache.misses"
	MetricExportRows       = "procinsight.export.rows"
	MetricExportDuration   = "procinsight.export.duration"
)

// Common tag names.
const (
	TagStage   = "stage"
	TagStatus  = "status"
	TagWorkers = "workers"
	TagTable   = "table"
	TagRunID   = "run_id"
)
