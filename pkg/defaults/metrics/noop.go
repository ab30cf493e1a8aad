// Package metrics provides default MetricsExporter implementations.
package metrics

import (
	"time"

	"github.com/logflow/procinsight/pkg/interfaces"
)

// NoopMetrics discards all metrics. It is the analyzer's default.
type NoopMetrics struct{}

// NewNoopMetrics creates a new noop metrics exporter.
func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) Counter(name string, value int64, tags map[string]string)        {}
func (n *NoopMetrics) Gauge(name string, value float64, tags map[string]string)        {}
func (n *NoopMetrics) Timer(name string, duration time.Duration, tags map[string]string) {}
func (n *NoopMetrics) Flush() error                                                     { return nil }
func (n *NoopMetrics) Close() error                                                     { return nil }

var _ interfaces.MetricsExporter = (*NoopMetrics)(nil)
