package analysis

import (
	"sort"

	"github.com/RoaringBitmap/roaring"
)

// DurationStats is a streaming summary of duration samples in milliseconds.
// It replaces raw sample lists so memory stays bounded on large logs.
type DurationStats struct {
	Count int
	SumMs int64
}

// Add records one sample.
func (d *DurationStats) Add(ms int64) {
	d.Count++
	d.SumMs += ms
}

// Merge folds another summary into d.
func (d *DurationStats) Merge(o DurationStats) {
	d.Count += o.Count
	d.SumMs += o.SumMs
}

// MeanMs returns the average sample, or 0 without samples.
func (d DurationStats) MeanMs() float64 {
	if d.Count == 0 {
		return 0
	}
	return float64(d.SumMs) / float64(d.Count)
}

// ActivityAggregate accumulates statistics for one activity name.
type ActivityAggregate struct {
	Name      string
	Frequency int
	Resources map[string]struct{}
	// Cases holds the ordinals of the traces the activity occurs in.
	Cases     *roaring.Bitmap
	Durations DurationStats

	// firstSeen is the smallest input index of the activity's events.
	firstSeen int
}

func newActivityAggregate(name string, seq int) *ActivityAggregate {
	return &ActivityAggregate{
		Name:      name,
		Resources: make(map[string]struct{}),
		Cases:     roaring.New(),
		firstSeen: seq,
	}
}

// ResourceCount returns the number of distinct resources.
func (a *ActivityAggregate) ResourceCount() int { return len(a.Resources) }

// CaseCount returns the number of distinct cases.
func (a *ActivityAggregate) CaseCount() int { return int(a.Cases.GetCardinality()) }

func (a *ActivityAggregate) merge(o *ActivityAggregate) {
	a.Frequency += o.Frequency
	for r := range o.Resources {
		a.Resources[r] = struct{}{}
	}
	a.Cases.Or(o.Cases)
	a.Durations.Merge(o.Durations)
	if o.firstSeen < a.firstSeen {
		a.firstSeen = o.firstSeen
	}
}

// ActivityStats is the set of aggregates of one analysis.
type ActivityStats struct {
	byName map[string]*ActivityAggregate
}

func newActivityStats() *ActivityStats {
	return &ActivityStats{byName: make(map[string]*ActivityAggregate)}
}

// Get returns the aggregate of an activity.
func (s *ActivityStats) Get(name string) (*ActivityAggregate, bool) {
	a, ok := s.byName[name]
	return a, ok
}

// Len returns the number of distinct activities.
func (s *ActivityStats) Len() int { return len(s.byName) }

// Ordered returns aggregates in the order their activity first appears in
// the input event list.
func (s *ActivityStats) Ordered() []*ActivityAggregate {
	out := make([]*ActivityAggregate, 0, len(s.byName))
	for _, a := range s.byName {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].firstSeen < out[j].firstSeen })
	return out
}

func (s *ActivityStats) merge(o *ActivityStats) {
	for name, agg := range o.byName {
		if cur, ok := s.byName[name]; ok {
			cur.merge(agg)
			continue
		}
		s.byName[name] = agg
	}
}

// CollectActivities counts every event of every trace against its activity
// and attributes each inter-event gap to the preceding activity. A gap is
// only sampled when both events carry a parseable timestamp.
func CollectActivities(traces []*Trace) *ActivityStats {
	stats := newActivityStats()
	for _, tr := range traces {
		stats.addTrace(tr)
	}
	return stats
}

func (s *ActivityStats) addTrace(tr *Trace) {
	for i := range tr.Events {
		cur := &tr.Events[i]
		name := cur.Event.ActivityName()

		agg, ok := s.byName[name]
		if !ok {
			agg = newActivityAggregate(name, cur.Seq)
			s.byName[name] = agg
		} else if cur.Seq < agg.firstSeen {
			agg.firstSeen = cur.Seq
		}

		agg.Frequency++
		agg.Cases.Add(tr.Ordinal)
		if cur.Event.Resource != "" {
			agg.Resources[cur.Event.Resource] = struct{}{}
		}

		if i+1 < len(tr.Events) {
			next := &tr.Events[i+1]
			if cur.Stamp.Valid && next.Stamp.Valid {
				agg.Durations.Add(next.At() - cur.At())
			}
		}
	}
}
