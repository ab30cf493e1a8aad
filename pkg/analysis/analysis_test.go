package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/logflow/procinsight/internal/model"
	perrors "github.com/logflow/procinsight/pkg/errors"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(ms int64) string {
	return base.Add(time.Duration(ms) * time.Millisecond).Format(time.RFC3339Nano)
}

func ev(caseID, activity, ts string) model.Event {
	return model.Event{CaseID: caseID, Activity: activity, Timestamp: ts}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func twoCaseLog() []model.Event {
	return []model.Event{
		ev("c1", "A", at(0)),
		ev("c2", "B", at(1_200_000)),
		ev("c1", "B", at(600_000)),
		ev("c2", "A", at(0)),
	}
}

func TestAnalyze_TwoCaseScenario(t *testing.T) {
	res, err := Analyze(twoCaseLog())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if res.Metrics.TotalCases != 2 {
		t.Errorf("TotalCases = %d, want 2", res.Metrics.TotalCases)
	}
	if len(res.MainProcesses) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(res.MainProcesses))
	}

	a := res.MainProcesses[0]
	if a.ID != "a" || a.Frequency != 2 {
		t.Errorf("first node = %s freq %d, want a freq 2", a.ID, a.Frequency)
	}
	if !approx(a.AvgDuration, 900) || !approx(a.TotalDuration, 1800) {
		t.Errorf("A durations = avg %v total %v, want 900/1800", a.AvgDuration, a.TotalDuration)
	}
	if !approx(a.Efficiency, 0.308) {
		t.Errorf("A efficiency = %v, want 0.308", a.Efficiency)
	}
	if !approx(a.BottleneckScore, 0.181) {
		t.Errorf("A bottleneck = %v, want 0.181", a.BottleneckScore)
	}
	if !approx(a.WasteScore, 0.4268) {
		t.Errorf("A waste = %v, want 0.4268", a.WasteScore)
	}

	b := res.MainProcesses[1]
	if b.AvgDuration != 0 || b.TotalDuration != 0 {
		t.Errorf("B should have no duration samples, got avg %v", b.AvgDuration)
	}

	if len(res.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(res.Edges))
	}
	e := res.Edges[0]
	if e.Source != "a" || e.Target != "b" || e.Frequency != 2 || !approx(e.AvgDuration, 900) {
		t.Errorf("edge = %+v, want a->b freq 2 avg 900", e)
	}
	if !approx(e.Efficiency, 0.5*2.0/50+0.5*0.5) {
		t.Errorf("edge efficiency = %v", e.Efficiency)
	}

	if !approx(res.Metrics.AvgCaseTime, 900) {
		t.Errorf("AvgCaseTime = %v, want 900", res.Metrics.AvgCaseTime)
	}
	if len(res.Insights) != 0 {
		t.Errorf("expected no insights, got %+v", res.Insights)
	}
}

func TestCollectActivities_Durations(t *testing.T) {
	log := GroupCases(twoCaseLog())
	stats := CollectActivities(log.Traces)

	a, ok := stats.Get("A")
	if !ok {
		t.Fatal("activity A missing")
	}
	if a.Frequency != 2 || a.Durations.Count != 2 || a.Durations.SumMs != 1_800_000 {
		t.Errorf("A = freq %d, %d samples, sum %d", a.Frequency, a.Durations.Count, a.Durations.SumMs)
	}
	if a.CaseCount() != 2 {
		t.Errorf("A case count = %d, want 2", a.CaseCount())
	}

	tr := CollectTransitions(log.Traces)
	ab, ok := tr.Get("A", "B")
	if !ok || ab.Frequency != 2 || ab.Durations.MeanMs() != 900_000 {
		t.Errorf("A->B = %+v", ab)
	}
	if _, ok := tr.Get("B", "A"); ok {
		t.Error("B->A should not be observed")
	}
}

func TestCollectActivities_Resources(t *testing.T) {
	events := []model.Event{
		{CaseID: "1", Activity: "Review", Resource: "ann"},
		{CaseID: "2", Activity: "Review", Resource: "bob"},
		{CaseID: "3", Activity: "Review", Resource: "ann"},
		{CaseID: "3", Activity: "Review"},
	}
	stats := CollectActivities(GroupCases(events).Traces)
	r, _ := stats.Get("Review")
	if r.ResourceCount() != 2 {
		t.Errorf("ResourceCount = %d, want 2", r.ResourceCount())
	}
	if r.CaseCount() != 3 {
		t.Errorf("CaseCount = %d, want 3", r.CaseCount())
	}
	if r.Durations.Count != 0 {
		t.Errorf("untimed events must not produce durations, got %d", r.Durations.Count)
	}
}

func TestAnalyze_FrequencySumEqualsEventCount(t *testing.T) {
	events := randomLog(rand.New(rand.NewSource(7)), 60, 30)
	stats := CollectActivities(GroupCases(events).Traces)

	total := 0
	for _, a := range stats.Ordered() {
		total += a.Frequency
	}
	if total != len(events) {
		t.Errorf("sum of frequencies = %d, want %d", total, len(events))
	}
}

func TestAnalyze_NodeCap(t *testing.T) {
	var events []model.Event
	for i := 0; i < 25; i++ {
		events = append(events, ev(fmt.Sprintf("c%d", i), fmt.Sprintf("Step %02d", i), at(int64(i))))
	}

	res, err := Analyze(events)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(res.MainProcesses) != 20 {
		t.Fatalf("node count = %d, want 20", len(res.MainProcesses))
	}
	for i, n := range res.MainProcesses {
		want := fmt.Sprintf("step_%02d", i)
		if n.ID != want {
			t.Errorf("node %d = %s, want %s (ties keep encounter order)", i, n.ID, want)
		}
	}
	if res.Metrics.TotalActivities != 20 {
		t.Errorf("TotalActivities = %d, want 20", res.Metrics.TotalActivities)
	}
}

func TestAnalyze_NodeCapKeepsMostFrequent(t *testing.T) {
	var events []model.Event
	// 30 activities; activity i occurs i+1 times.
	for i := 0; i < 30; i++ {
		for k := 0; k <= i; k++ {
			events = append(events, ev(fmt.Sprintf("c%d", k), fmt.Sprintf("act%d", i), ""))
		}
	}

	res, err := Analyze(events)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(res.MainProcesses) != 20 {
		t.Fatalf("node count = %d, want 20", len(res.MainProcesses))
	}
	for i, n := range res.MainProcesses {
		if n.Frequency != 30-i {
			t.Errorf("node %d frequency = %d, want %d", i, n.Frequency, 30-i)
		}
	}
}

func TestAnalyze_EmptyInput(t *testing.T) {
	res, err := Analyze(nil)
	if err != nil {
		t.Fatalf("Analyze(nil) failed: %v", err)
	}
	if len(res.MainProcesses) != 0 || len(res.Edges) != 0 || len(res.Insights) != 0 {
		t.Errorf("expected empty lists, got %+v", res)
	}
	if res.Metrics != (Metrics{}) {
		t.Errorf("expected zero metrics, got %+v", res.Metrics)
	}

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"mainProcesses":[],"edges":[],"insights":[],"metrics":{"totalCases":0,"avgCaseTime":0,"totalActivities":0,"efficiencyScore":0,"bottleneckCount":0,"wastePercentage":0}}`
	if string(data) != want {
		t.Errorf("json = %s\nwant %s", data, want)
	}
}

func TestAnalyze_ScoresBounded(t *testing.T) {
	events := randomLog(rand.New(rand.NewSource(42)), 120, 40)
	res, err := Analyze(events)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	in01 := func(v float64) bool { return v >= 0 && v <= 1 }
	for _, n := range res.MainProcesses {
		if !in01(n.Efficiency) || !in01(n.BottleneckScore) || !in01(n.WasteScore) {
			t.Errorf("node %s scores out of range: %+v", n.ID, n)
		}
	}
	for i, e := range res.Edges {
		if !in01(e.Efficiency) || !in01(e.BottleneckScore) {
			t.Errorf("edge %s->%s scores out of range: %+v", e.Source, e.Target, e)
		}
		if i > 0 && e.Frequency > res.Edges[i-1].Frequency {
			t.Errorf("edges not sorted by frequency at %d", i)
		}
	}
}

func TestAnalyze_ParallelMatchesSequential(t *testing.T) {
	events := randomLog(rand.New(rand.NewSource(99)), 300, 25)

	seq, err := New()
	if err != nil {
		t.Fatal(err)
	}
	want, err := seq.Analyze(context.Background(), events)
	if err != nil {
		t.Fatal(err)
	}

	for _, workers := range []int{2, 3, 8, 1000} {
		par, err := New(WithWorkers(workers))
		if err != nil {
			t.Fatal(err)
		}
		got, err := par.Analyze(context.Background(), events)
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("workers=%d: parallel result differs from sequential", workers)
		}
	}
}

func TestAnalyze_CanceledContext(t *testing.T) {
	a, err := New(WithWorkers(4))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = a.Analyze(ctx, randomLog(rand.New(rand.NewSource(1)), 50, 5))
	if !perrors.IsCode(err, perrors.CodeContextCanceled) {
		t.Errorf("expected cancellation error, got %v", err)
	}
}

func TestAnalyze_InvalidEvent(t *testing.T) {
	events := []model.Event{ev("c1", "A", at(0)), {}}

	_, err := Analyze(events)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("error should match ErrInvalidInput: %v", err)
	}
	if !perrors.IsInputError(err) {
		t.Errorf("expected input error code, got %s", perrors.GetCode(err))
	}
}

func TestAnalyze_Defaults(t *testing.T) {
	events := []model.Event{
		{Activity: "Submit", Timestamp: at(0)},
		{Timestamp: at(1000)},
	}
	res, err := Analyze(events)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.Metrics.TotalCases != 1 {
		t.Errorf("events without case id should share one case, got %d", res.Metrics.TotalCases)
	}
	if len(res.Edges) != 1 || res.Edges[0].Target != "unknown" {
		t.Errorf("missing activity should map to Unknown, edges = %+v", res.Edges)
	}
}

func TestAnalyze_CustomPolicy(t *testing.T) {
	p := DefaultPolicy()
	p.NodeCap = 1
	a, err := New(WithPolicy(p))
	if err != nil {
		t.Fatal(err)
	}
	res, err := a.Analyze(context.Background(), twoCaseLog())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.MainProcesses) != 1 || res.Metrics.TotalActivities != 1 {
		t.Errorf("node cap 1 not applied: %d nodes", len(res.MainProcesses))
	}

	p.ActivityWindowMs = 0
	if _, err := New(WithPolicy(p)); !perrors.IsCode(err, perrors.CodeValidationFailed) {
		t.Errorf("expected policy validation error, got %v", err)
	}
}

func TestCollectVariants(t *testing.T) {
	events := []model.Event{
		ev("1", "A", at(0)), ev("1", "B", at(1)),
		ev("2", "A", at(0)), ev("2", "C", at(1)),
		ev("3", "A", at(0)), ev("3", "C", at(1)),
		ev("4", "A", at(0)), ev("4", "B", at(1)),
		ev("5", "A", at(0)), ev("5", "C", at(1)),
	}
	got := CollectVariants(GroupCases(events), 10)
	want := []Variant{
		{Variant: "A -> C", Count: 3, Percent: 60},
		{Variant: "A -> B", Count: 2, Percent: 40},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CollectVariants = %+v, want %+v", got, want)
	}
	if got := CollectVariants(GroupCases(events), 1); len(got) != 1 {
		t.Errorf("top 1 returned %d variants", len(got))
	}
}

// randomLog builds a reproducible log with some untimed events.
func randomLog(r *rand.Rand, cases, activities int) []model.Event {
	var events []model.Event
	for c := 0; c < cases; c++ {
		n := 1 + r.Intn(8)
		t := int64(0)
		for i := 0; i < n; i++ {
			t += int64(r.Intn(7_200_000))
			ts := at(t)
			if r.Intn(10) == 0 {
				ts = "garbage"
			}
			events = append(events, model.Event{
				CaseID:    fmt.Sprintf("case-%d", c),
				Activity:  fmt.Sprintf("Activity %d", r.Intn(activities)),
				Timestamp: ts,
				Resource:  fmt.Sprintf("r%d", r.Intn(6)),
			})
		}
	}
	r.Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })
	return events
}

func TestAnalyze_NodeCapTiesFollowInputOrder(t *testing.T) {
	// One case, 21 tied activities listed latest first: X20 at t=20 ... X0 at t=0.
	var events []model.Event
	for i := 20; i >= 0; i-- {
		events = append(events, ev("c1", fmt.Sprintf("X%d", i), at(int64(i)*1000)))
	}

	for _, workers := range []int{0, 4} {
		a, err := New(WithWorkers(workers))
		if err != nil {
			t.Fatal(err)
		}
		res, err := a.Analyze(context.Background(), events)
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		if len(res.MainProcesses) != 20 {
			t.Fatalf("workers=%d: node count = %d, want 20", workers, len(res.MainProcesses))
		}
		for i, n := range res.MainProcesses {
			want := fmt.Sprintf("x%d", 20-i)
			if n.ID != want {
				t.Errorf("workers=%d: node %d = %s, want %s", workers, i, n.ID, want)
			}
		}
	}
}

func TestCollectActivities_OrderedByInput(t *testing.T) {
	// A comes first in the input but sorts after B inside the trace.
	events := []model.Event{
		ev("c1", "A", at(5000)),
		ev("c1", "B", at(0)),
		ev("c2", "C", at(0)),
	}
	log := GroupCases(events)
	if got := log.Traces[0].Events[0].Event.Activity; got != "B" {
		t.Fatalf("trace starts with %s, want B", got)
	}

	var got []string
	for _, a := range CollectActivities(log.Traces).Ordered() {
		got = append(got, a.Name)
	}
	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Ordered = %v, want %v", got, want)
	}
}

func TestAnalyze_SubMillisecondTimestamps(t *testing.T) {
	events := []model.Event{
		ev("c1", "A", "2024-01-01T00:00:00.0009Z"),
		ev("c1", "B", "2024-01-01T00:00:00.6001Z"),
	}
	res, err := Analyze(events)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	// Durations are differences of whole-millisecond instants, as is case time.
	if !approx(res.MainProcesses[0].AvgDuration, 0.6) {
		t.Errorf("A avg duration = %v, want 0.6", res.MainProcesses[0].AvgDuration)
	}
	if !approx(res.Edges[0].AvgDuration, 0.6) {
		t.Errorf("edge avg duration = %v, want 0.6", res.Edges[0].AvgDuration)
	}
	if !approx(res.Metrics.AvgCaseTime, res.MainProcesses[0].AvgDuration) {
		t.Errorf("AvgCaseTime = %v, want %v", res.Metrics.AvgCaseTime, res.MainProcesses[0].AvgDuration)
	}
}

func TestCollect_PanicBecomesError(t *testing.T) {
	log := GroupCases(twoCaseLog())
	traces := append(log.Traces, nil)

	for _, workers := range []int{0, 3} {
		_, err := collect(context.Background(), traces, workers)
		if !perrors.IsCode(err, perrors.CodeAnalysisFailed) {
			t.Errorf("workers=%d: expected E201, got %v", workers, err)
		}
	}
}
