package metrics

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/logflow/procinsight/pkg/interfaces"
)

// LogMetrics writes metrics as single log lines, e.g.
//
//	[metrics] timer procinsight.analysis.stage.duration=1.2ms {stage=group}
type LogMetrics struct {
	mu       sync.Mutex
	logger   *log.Logger
	prefix   string
	minLevel LogLevel
}

// LogLevel controls which metrics are logged.
type LogLevel int

const (
	LogLevelAll LogLevel = iota
	LogLevelTimers
	LogLevelNone
)

// LogMetricsOption configures LogMetrics.
type LogMetricsOption func(*LogMetrics)

// WithPrefix sets the log prefix.
func WithPrefix(prefix string) LogMetricsOption {
	return func(m *LogMetrics) {
		m.prefix = prefix
	}
}

// WithMinLevel sets the minimum log level.
func WithMinLevel(level LogLevel) LogMetricsOption {
	return func(m *LogMetrics) {
		m.minLevel = level
	}
}

// WithLogger sends output to l instead of stderr.
func WithLogger(l *log.Logger) LogMetricsOption {
	return func(m *LogMetrics) {
		m.logger = l
	}
}

// NewLogMetrics creates a new log-based metrics exporter.
func NewLogMetrics(opts ...LogMetricsOption) *LogMetrics {
	m := &LogMetrics{
		logger:   log.New(os.Stderr, "", log.LstdFlags),
		prefix:   "[metrics]",
		minLevel: LogLevelAll,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Counter logs a counter metric.
func (m *LogMetrics) Counter(name string, value int64, tags map[string]string) {
	if m.minLevel >= LogLevelTimers {
		return
	}
	m.log("counter", name, fmt.Sprintf("%d", value), tags)
}

// Gauge logs a gauge metric.
func (m *LogMetrics) Gauge(name string, value float64, tags map[string]string) {
	if m.minLevel >= LogLevelTimers {
		return
	}
	m.log("gauge", name, fmt.Sprintf("%.4f", value), tags)
}

// Timer logs a timer metric.
func (m *LogMetrics) Timer(name string, duration time.Duration, tags map[string]string) {
	if m.minLevel >= LogLevelNone {
		return
	}
	m.log("timer", name, duration.String(), tags)
}

// Flush is a no-op; lines are written immediately.
func (m *LogMetrics) Flush() error { return nil }

// Close is a no-op.
func (m *LogMetrics) Close() error { return nil }

func (m *LogMetrics) log(metricType, name, value string, tags map[string]string) {
	line := fmt.Sprintf("%s %s %s=%s%s", m.prefix, metricType, name, value, formatTags(tags))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Println(line)
}

func formatTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}

	// Sort keys for consistent output
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, tags[k])
	}
	return " {" + strings.Join(parts, ", ") + "}"
}

var _ interfaces.MetricsExporter = (*LogMetrics)(nil)
