package analysis

import "sort"

// TransitionKey is an ordered activity pair.
type TransitionKey struct {
	Source string
	Target string
}

// TransitionAggregate accumulates statistics for one directly-follows pair.
type TransitionAggregate struct {
	TransitionKey
	Frequency int
	Durations DurationStats

	// firstSeen packs (trace ordinal, position in trace).
	firstSeen uint64
}

// TransitionStats is the set of transition aggregates of one analysis.
type TransitionStats struct {
	byKey map[TransitionKey]*TransitionAggregate
}

func newTransitionStats() *TransitionStats {
	return &TransitionStats{byKey: make(map[TransitionKey]*TransitionAggregate)}
}

// Get returns the aggregate of a transition.
func (s *TransitionStats) Get(source, target string) (*TransitionAggregate, bool) {
	a, ok := s.byKey[TransitionKey{Source: source, Target: target}]
	return a, ok
}

// Len returns the number of distinct transitions.
func (s *TransitionStats) Len() int { return len(s.byKey) }

// Ordered returns aggregates in first-observation order: by the trace
// they were first seen in, then by position inside that trace.
func (s *TransitionStats) Ordered() []*TransitionAggregate {
	out := make([]*TransitionAggregate, 0, len(s.byKey))
	for _, a := range s.byKey {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].firstSeen < out[j].firstSeen })
	return out
}

func (s *TransitionStats) merge(o *TransitionStats) {
	for key, agg := range o.byKey {
		cur, ok := s.byKey[key]
		if !ok {
			s.byKey[key] = agg
			continue
		}
		cur.Frequency += agg.Frequency
		cur.Durations.Merge(agg.Durations)
		if agg.firstSeen < cur.firstSeen {
			cur.firstSeen = agg.firstSeen
		}
	}
}

// CollectTransitions counts every consecutive activity pair of every trace.
// The elapsed time is sampled only when both events carry a parseable
// timestamp.
func CollectTransitions(traces []*Trace) *TransitionStats {
	stats := newTransitionStats()
	for _, tr := range traces {
		stats.addTrace(tr)
	}
	return stats
}

func (s *TransitionStats) addTrace(tr *Trace) {
	for i := 0; i+1 < len(tr.Events); i++ {
		cur, next := &tr.Events[i], &tr.Events[i+1]
		key := TransitionKey{Source: cur.Event.ActivityName(), Target: next.Event.ActivityName()}

		agg, ok := s.byKey[key]
		if !ok {
			agg = &TransitionAggregate{
				TransitionKey: key,
				firstSeen:     uint64(tr.Ordinal)<<32 | uint64(i),
			}
			s.byKey[key] = agg
		}

		agg.Frequency++
		if cur.Stamp.Valid && next.Stamp.Valid {
			agg.Durations.Add(next.At() - cur.At())
		}
	}
}
