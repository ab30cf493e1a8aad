package analysis

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/logflow/procinsight/internal/model"
	"github.com/logflow/procinsight/pkg/defaults/metrics"
	perrors "github.com/logflow/procinsight/pkg/errors"
	"github.com/logflow/procinsight/pkg/interfaces"
	"github.com/logflow/procinsight/pkg/telemetry"
)

// ErrInvalidInput matches every input validation failure via errors.Is.
var ErrInvalidInput = perrors.New(perrors.CodeInvalidEvent, "invalid input")

// Analyzer runs the analysis pipeline. An Analyzer holds configuration
// only and is safe for concurrent use.
type Analyzer struct {
	policy  Policy
	workers int
	metrics interfaces.MetricsExporter
	tracer  trace.Tracer
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithPolicy replaces the default scoring policy.
func WithPolicy(p Policy) Option {
	return func(a *Analyzer) { a.policy = p }
}

// WithWorkers aggregates traces on n goroutines. n <= 1 runs sequentially.
func WithWorkers(n int) Option {
	return func(a *Analyzer) { a.workers = n }
}

// WithMetrics sets the metrics exporter.
func WithMetrics(m interfaces.MetricsExporter) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithTracer sets the tracer used for stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(a *Analyzer) { a.tracer = t }
}

// New creates an Analyzer. It returns an error if the policy is invalid.
func New(opts ...Option) (*Analyzer, error) {
	a := &Analyzer{
		policy:  DefaultPolicy(),
		workers: 1,
		metrics: metrics.NewNoopMetrics(),
		tracer:  telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.policy.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Policy returns the analyzer's scoring policy.
func (a *Analyzer) Policy() Policy { return a.policy }

// Analyze runs the pipeline with the default policy on a single goroutine.
func Analyze(events []model.Event) (*ProcessAnalysis, error) {
	a, err := New()
	if err != nil {
		return nil, err
	}
	return a.Analyze(context.Background(), events)
}

// Validate checks the structural shape of the input. An event that sets
// none of its fields cannot be attributed to any case or activity and
// fails the whole analysis.
func Validate(events []model.Event) error {
	for i := range events {
		if events[i].IsEmpty() {
			err := perrors.InvalidEvent(i, "event has no fields")
			err.Cause = ErrInvalidInput
			return err
		}
	}
	return nil
}

// Analyze validates and groups the events, then runs the remaining stages.
func (a *Analyzer) Analyze(ctx context.Context, events []model.Event) (*ProcessAnalysis, error) {
	ctx, span := a.tracer.Start(ctx, "analysis.Analyze",
		trace.WithAttributes(attribute.Int("events", len(events))))
	start := time.Now()

	if err := Validate(events); err != nil {
		a.metrics.Counter(interfaces.MetricAnalysisErrors, 1, map[string]string{interfaces.TagStage: "validate"})
		telemetry.EndStage(span, err)
		return nil, err
	}

	log := stage(a, ctx, "group", func(context.Context) *TraceLog { return GroupCases(events) })

	result, err := a.AnalyzeTraces(ctx, log)
	telemetry.EndStage(span, err)
	if err == nil {
		a.metrics.Timer(interfaces.MetricAnalysisDuration, time.Since(start), nil)
	}
	return result, err
}

// AnalyzeTraces runs every stage after grouping. It lets callers reuse a
// TraceLog they already hold, e.g. from a TraceCache.
func (a *Analyzer) AnalyzeTraces(ctx context.Context, log *TraceLog) (*ProcessAnalysis, error) {
	p := a.policy
	a.metrics.Counter(interfaces.MetricEventsTotal, int64(log.EventCount()), nil)
	a.metrics.Counter(interfaces.MetricCasesTotal, int64(log.Len()), nil)

	stageCtx, span := telemetry.StartStage(ctx, a.tracer, "collect",
		attribute.Int("traces", log.Len()), attribute.Int("workers", a.workers))
	t0 := time.Now()
	agg, err := collect(stageCtx, log.Traces, a.workers)
	telemetry.EndStage(span, err)
	if err != nil {
		a.metrics.Counter(interfaces.MetricAnalysisErrors, 1, map[string]string{interfaces.TagStage: "collect"})
		return nil, err
	}
	a.metrics.Timer(interfaces.MetricStageDuration, time.Since(t0), map[string]string{
		interfaces.TagStage:   "collect",
		interfaces.TagWorkers: strconv.Itoa(a.workers),
	})
	a.metrics.Counter(interfaces.MetricActivitiesTotal, int64(agg.activities.Len()), nil)
	a.metrics.Counter(interfaces.MetricTransitionsTotal, int64(agg.transitions.Len()), nil)

	type graph struct {
		nodes []ProcessNode
		edges []ProcessEdge
	}
	g := stage(a, ctx, "build", func(context.Context) graph {
		activities := agg.activities.Ordered()
		ids := assignIDs(activities)
		return graph{
			nodes: buildNodes(activities, ids, p),
			edges: buildEdges(agg.transitions.Ordered(), ids, p),
		}
	})

	insights := stage(a, ctx, "insights", func(context.Context) []ProcessInsight {
		return GenerateInsights(g.nodes, p)
	})
	m := stage(a, ctx, "metrics", func(context.Context) Metrics {
		return ComputeMetrics(log, g.nodes, p)
	})
	variants := stage(a, ctx, "variants", func(context.Context) []Variant {
		return CollectVariants(log, p.TopVariants)
	})

	a.metrics.Counter(interfaces.MetricInsightsTotal, int64(len(insights)), nil)
	a.metrics.Gauge(interfaces.MetricEfficiencyScore, m.EfficiencyScore, nil)

	return &ProcessAnalysis{
		MainProcesses: g.nodes,
		Edges:         g.edges,
		Insights:      insights,
		Metrics:       m,
		Variants:      variants,
	}, nil
}

// stage runs fn inside a span and records its wall time.
func stage[T any](a *Analyzer, ctx context.Context, name string, fn func(context.Context) T) T {
	ctx, span := telemetry.StartStage(ctx, a.tracer, name)
	t0 := time.Now()
	out := fn(ctx)
	a.metrics.Timer(interfaces.MetricStageDuration, time.Since(t0), map[string]string{interfaces.TagStage: name})
	telemetry.EndStage(span, nil)
	return out
}
