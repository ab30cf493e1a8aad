package analysis

import (
	"context"
	"testing"

	"github.com/logflow/procinsight/internal/model"
)

func TestGroupCases_SortsByTimestamp(t *testing.T) {
	events := []model.Event{
		ev("c1", "C", at(3000)),
		ev("c2", "X", at(500)),
		ev("c1", "A", at(1000)),
		ev("c1", "Untimed", "not-a-date"),
		ev("c1", "B", at(2000)),
		ev("", "Orphan", at(0)),
	}

	log := GroupCases(events)
	if log.Len() != 3 {
		t.Fatalf("expected 3 traces, got %d", log.Len())
	}
	if log.EventCount() != len(events) {
		t.Errorf("EventCount = %d, want %d", log.EventCount(), len(events))
	}

	c1, ok := log.Get("c1")
	if !ok {
		t.Fatal("trace c1 missing")
	}
	want := []string{"Untimed", "A", "B", "C"}
	if c1.Len() != len(want) {
		t.Fatalf("c1 has %d events, want %d", c1.Len(), len(want))
	}
	for i, name := range want {
		if got := c1.Events[i].Event.Activity; got != name {
			t.Errorf("c1[%d] = %s, want %s", i, got, name)
		}
	}
	if c1.Events[0].Stamp.Valid {
		t.Error("unparseable timestamp should be marked invalid")
	}
	for i := 1; i < c1.Len(); i++ {
		if c1.Events[i].At() < c1.Events[i-1].At() {
			t.Errorf("c1 not sorted at %d", i)
		}
	}

	if _, ok := log.Get(model.DefaultCaseID); !ok {
		t.Error("event without case id should land in the unknown case")
	}
	if log.Traces[0].CaseID != "c1" || log.Traces[1].CaseID != "c2" {
		t.Errorf("traces not in first-encounter order: %s, %s", log.Traces[0].CaseID, log.Traces[1].CaseID)
	}
}

func TestGroupCases_StableForEqualTimestamps(t *testing.T) {
	events := []model.Event{
		ev("c", "first", ""),
		ev("c", "second", ""),
		ev("c", "third", at(0)),
	}
	tr, _ := GroupCases(events).Get("c")

	// Untimed events sort as the epoch, before 2024.
	want := []string{"first", "second", "third"}
	for i, name := range want {
		if tr.Events[i].Event.Activity != name {
			t.Errorf("event %d = %s, want %s", i, tr.Events[i].Event.Activity, name)
		}
	}
}

func TestTraceCache(t *testing.T) {
	cache := NewTraceCache(nil)
	events := twoCaseLog()

	first, hit := cache.Traces(events)
	if hit {
		t.Error("first lookup should miss")
	}
	second, hit := cache.Traces(events)
	if !hit || second != first {
		t.Error("identical input should hit the cache")
	}

	changed := append([]model.Event{}, events...)
	changed[0].Resource = "ann"
	if _, hit := cache.Traces(changed); hit {
		t.Error("changed input should miss")
	}

	cache.Invalidate()
	if _, hit := cache.Traces(changed); hit {
		t.Error("lookup after Invalidate should miss")
	}

	a, err := New()
	if err != nil {
		t.Fatal(err)
	}
	res, err := a.AnalyzeCached(context.Background(), cache, events)
	if err != nil {
		t.Fatalf("AnalyzeCached failed: %v", err)
	}
	if res.Metrics.TotalCases != 2 {
		t.Errorf("TotalCases = %d, want 2", res.Metrics.TotalCases)
	}
}

func TestTraceCache_CountGuardsFingerprint(t *testing.T) {
	cache := NewTraceCache(nil)
	events := twoCaseLog()
	cache.Traces(events)

	longer := append(append([]model.Event{}, events...), ev("c3", "A", at(0)))
	// Pretend the longer input hashes like the cached one.
	cache.fingerprint = Fingerprint(longer)

	log, hit := cache.Traces(longer)
	if hit {
		t.Fatal("input with a different event count should miss")
	}
	if log.Len() != 3 {
		t.Errorf("regrouped cases = %d, want 3", log.Len())
	}
}

func TestNodeID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Register Request", "register_request"},
		{"  Check\t\tTicket ", "_check_ticket_"},
		{"decide", "decide"},
		{"Review\u00a0Order\vNow", "review_order_now"},
		{"Ship\u2003\u3000Goods", "ship_goods"},
		{"\ufeffStart\u2028End", "_start_end"},
		{"Pay\u0085Invoice", "pay\u0085invoice"},
	}
	for _, tt := range tests {
		if got := NodeID(tt.in); got != tt.want {
			t.Errorf("NodeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAssignIDs_Unique(t *testing.T) {
	acts := []*ActivityAggregate{
		newActivityAggregate("Check Ticket", 0),
		newActivityAggregate("check  ticket", 1),
		newActivityAggregate("CHECK TICKET", 2),
	}
	ids := assignIDs(acts)

	want := map[string]string{
		"Check Ticket":  "check_ticket",
		"check  ticket": "check_ticket_2",
		"CHECK TICKET":  "check_ticket_3",
	}
	for name, id := range want {
		if ids[name] != id {
			t.Errorf("id(%q) = %q, want %q", name, ids[name], id)
		}
	}
}
