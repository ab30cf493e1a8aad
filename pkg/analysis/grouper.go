package analysis

import (
	"sort"

	"github.com/logflow/procinsight/internal/model"
	"github.com/logflow/procinsight/internal/timestamp"
)

// TracedEvent is an event placed inside its trace.
type TracedEvent struct {
	Event model.Event
	Stamp model.Stamp
	// Seq is the event's position in the input list.
	Seq int
}

// At returns the effective timestamp: the parsed value, or the epoch
// when the event has none.
func (e *TracedEvent) At() int64 {
	if !e.Stamp.Valid {
		return model.Epoch.UnixMilli()
	}
	return e.Stamp.Time.UnixMilli()
}

// Trace is the time-ordered sequence of events of one case.
type Trace struct {
	CaseID string
	// Ordinal is the trace's position in first-encounter order.
	Ordinal uint32
	Events  []TracedEvent
}

// Len returns the number of events in the trace.
func (t *Trace) Len() int { return len(t.Events) }

// TraceLog maps case ids to traces while remembering the order in which
// cases were first encountered.
type TraceLog struct {
	Traces []*Trace
	index  map[string]int
	events int
}

// Get returns the trace of a case.
func (l *TraceLog) Get(caseID string) (*Trace, bool) {
	i, ok := l.index[caseID]
	if !ok {
		return nil, false
	}
	return l.Traces[i], true
}

// Len returns the number of traces.
func (l *TraceLog) Len() int { return len(l.Traces) }

// EventCount returns the total number of events across all traces.
func (l *TraceLog) EventCount() int { return l.events }

// GroupCases buckets events by case id and sorts every bucket ascending by
// effective timestamp. Events with a missing or unparseable timestamp sort
// as the epoch; ties keep input order. No event is dropped.
func GroupCases(events []model.Event) *TraceLog {
	log := &TraceLog{
		Traces: make([]*Trace, 0),
		index:  make(map[string]int),
		events: len(events),
	}

	for i := range events {
		ev := events[i]
		caseID := ev.CaseKey()

		idx, ok := log.index[caseID]
		if !ok {
			idx = len(log.Traces)
			log.index[caseID] = idx
			log.Traces = append(log.Traces, &Trace{CaseID: caseID, Ordinal: uint32(idx)})
		}

		t, valid := timestamp.Resolve(ev.Timestamp)
		if !valid {
			t = model.Epoch
		}
		tr := log.Traces[idx]
		tr.Events = append(tr.Events, TracedEvent{
			Event: ev,
			Stamp: model.Stamp{Time: t, Valid: valid},
			Seq:   i,
		})
	}

	for _, tr := range log.Traces {
		evs := tr.Events
		sort.SliceStable(evs, func(a, b int) bool {
			return evs[a].At() < evs[b].At()
		})
	}

	return log
}
