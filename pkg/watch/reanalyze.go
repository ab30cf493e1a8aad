package watch

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/logflow/procinsight/internal/model"
	"github.com/logflow/procinsight/pkg/analysis"
	"github.com/logflow/procinsight/pkg/eventsource"
)

// Loader reads the events of an input file.
type Loader func(ctx context.Context, path string) ([]model.Event, error)

// ResultFunc receives every successful analysis.
type ResultFunc func(path string, res *analysis.ProcessAnalysis) error

// Reanalyzer runs the analysis of one input file and repeats it whenever
// the file changes. Grouped traces are kept in a TraceCache so a save that
// does not change the events skips regrouping.
type Reanalyzer struct {
	path     string
	analyzer *analysis.Analyzer
	cache    *analysis.TraceCache
	load     Loader
	onResult ResultFunc
	logger   *log.Logger
}

// ReanalyzerOption configures a Reanalyzer.
type ReanalyzerOption func(*Reanalyzer)

// WithLoader replaces the default eventsource loader.
func WithLoader(l Loader) ReanalyzerOption {
	return func(r *Reanalyzer) { r.load = l }
}

// WithLogger sets the logger for change notices.
func WithLogger(l *log.Logger) ReanalyzerOption {
	return func(r *Reanalyzer) { r.logger = l }
}

// NewReanalyzer creates a Reanalyzer for path. cache may be nil.
func NewReanalyzer(path string, a *analysis.Analyzer, cache *analysis.TraceCache, onResult ResultFunc, opts ...ReanalyzerOption) *Reanalyzer {
	if cache == nil {
		cache = analysis.NewTraceCache(nil)
	}
	r := &Reanalyzer{
		path:     path,
		analyzer: a,
		cache:    cache,
		load: func(ctx context.Context, path string) ([]model.Event, error) {
			return eventsource.Load(ctx, path)
		},
		onResult: onResult,
		logger:   log.New(os.Stderr, "[watch] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Analyze loads the input and runs the analysis once.
func (r *Reanalyzer) Analyze(ctx context.Context) (*analysis.ProcessAnalysis, error) {
	start := time.Now()
	events, err := r.load(ctx, r.path)
	if err != nil {
		return nil, err
	}
	res, err := r.analyzer.AnalyzeCached(ctx, r.cache, events)
	if err != nil {
		return nil, err
	}
	r.logger.Printf("analyzed %s: %d events, %d cases in %v",
		r.path, len(events), res.Metrics.TotalCases, time.Since(start).Round(time.Millisecond))

	if r.onResult != nil {
		if err := r.onResult(r.path, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Invalidate drops the cached traces.
func (r *Reanalyzer) Invalidate() {
	r.cache.Invalidate()
}

// Run analyzes the input once, then again after every change until ctx is
// cancelled. Analysis errors after the first run are logged and do not
// stop the loop.
func (r *Reanalyzer) Run(ctx context.Context, debounce time.Duration) error {
	if _, err := r.Analyze(ctx); err != nil {
		return err
	}

	w, err := NewWatcher(debounce)
	if err != nil {
		return err
	}
	defer w.Close()

	w.OnChange = func(path string) error {
		r.logger.Printf("change detected: %s", path)
		_, err := r.Analyze(ctx)
		return err
	}
	w.OnRemove = func(path string) {
		r.logger.Printf("input removed: %s", path)
		r.Invalidate()
	}
	w.OnError = func(path string, err error) {
		r.logger.Printf("error: %s: %v", path, err)
	}

	if err := w.Watch(r.path); err != nil {
		return err
	}
	r.logger.Printf("watching %s", r.path)
	return w.Run(ctx)
}
