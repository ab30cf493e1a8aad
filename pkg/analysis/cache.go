package analysis

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/logflow/procinsight/internal/model"
	"github.com/logflow/procinsight/pkg/interfaces"
)

// TraceCache memoizes the grouped traces of the most recent input. The
// cache is derived data: an input with a different fingerprint or event
// count, or an explicit Invalidate, forces a regroup.
type TraceCache struct {
	mu          sync.Mutex
	fingerprint uint64
	events      int
	log         *TraceLog
	metrics     interfaces.MetricsExporter
}

// NewTraceCache creates an empty cache. m may be nil.
func NewTraceCache(m interfaces.MetricsExporter) *TraceCache {
	return &TraceCache{metrics: m}
}

// Traces returns the grouped traces for events, regrouping on a miss.
func (c *TraceCache) Traces(events []model.Event) (*TraceLog, bool) {
	fp := Fingerprint(events)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.log != nil && c.fingerprint == fp && c.events == len(events) {
		c.count(interfaces.MetricCacheHits)
		return c.log, true
	}
	c.count(interfaces.MetricCacheMisses)
	c.log = GroupCases(events)
	c.fingerprint = fp
	c.events = len(events)
	return c.log, false
}

// Invalidate drops the cached traces.
func (c *TraceCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = nil
	c.fingerprint = 0
	c.events = 0
}

func (c *TraceCache) count(name string) {
	if c.metrics != nil {
		c.metrics.Counter(name, 1, nil)
	}
}

// AnalyzeCached validates events and analyzes them, reusing cached traces
// when the input is unchanged.
func (a *Analyzer) AnalyzeCached(ctx context.Context, cache *TraceCache, events []model.Event) (*ProcessAnalysis, error) {
	if err := Validate(events); err != nil {
		return nil, err
	}
	log, _ := cache.Traces(events)
	return a.AnalyzeTraces(ctx, log)
}

// Fingerprint hashes every field of every event, in order.
func Fingerprint(events []model.Event) uint64 {
	h := fnv.New64a()
	sep := []byte{0}
	for i := range events {
		ev := &events[i]
		for _, f := range []string{ev.CaseID, ev.Activity, ev.Timestamp, ev.Resource, ev.Lifecycle} {
			h.Write([]byte(f))
			h.Write(sep)
		}
		if len(ev.Attributes) > 0 {
			keys := make([]string, 0, len(ev.Attributes))
			for k := range ev.Attributes {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(h, "%s=%v", k, ev.Attributes[k])
				h.Write(sep)
			}
		}
		h.Write([]byte{1})
	}
	return h.Sum64()
}
