package eventsource

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/logflow/procinsight/internal/model"
	perrors "github.com/logflow/procinsight/pkg/errors"
)

func TestRead_Array(t *testing.T) {
	doc := `[
  {"case_id": "c1", "concept_name": "Register", "timestamp": "2024-01-01T10:00:00Z", "resource": "ann", "cost": 12.5},
  {"case_id": "c1", "concept_name": "Approve", "timestamp": 1704103200000, "lifecycle_transition": "complete", "priority": 2}
]`
	events, err := Read(context.Background(), strings.NewReader(doc), "array.json")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	e := events[0]
	if e.CaseID != "c1" || e.Activity != "Register" || e.Resource != "ann" {
		t.Errorf("unexpected first event: %+v", e)
	}
	if v, ok := e.Attribute("cost"); !ok || v != 12.5 {
		t.Errorf("cost attribute = %v (%T), want 12.5", v, v)
	}

	e = events[1]
	if e.Timestamp != "1704103200000" {
		t.Errorf("numeric timestamp = %q, want literal digits", e.Timestamp)
	}
	if e.Lifecycle != "complete" {
		t.Errorf("Lifecycle = %q", e.Lifecycle)
	}
	if v, _ := e.Attribute("priority"); v != int64(2) {
		t.Errorf("priority attribute = %v (%T), want int64 2", v, v)
	}
}

func TestRead_JSONL(t *testing.T) {
	doc := "{\"case:concept:name\": \"c9\", \"concept:name\": \"Ship\", \"org:resource\": \"bob\"}\n\n" +
		"{\"case_id\": \"c9\", \"concept_name\": \"Bill\", \"time:timestamp\": \"2024-01-02 09:00:00\"}\n"

	events, err := Read(context.Background(), strings.NewReader(doc), "log.jsonl")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].CaseID != "c9" || events[0].Activity != "Ship" || events[0].Resource != "bob" {
		t.Errorf("XES-style keys not mapped: %+v", events[0])
	}
	if events[1].Timestamp != "2024-01-02 09:00:00" {
		t.Errorf("Timestamp = %q", events[1].Timestamp)
	}
	if events[0].Attributes != nil {
		t.Errorf("no extra keys, Attributes should be nil: %v", events[0].Attributes)
	}
}

func TestRead_Empty(t *testing.T) {
	for _, doc := range []string{"", "  \n\t", "[]"} {
		events, err := Read(context.Background(), strings.NewReader(doc), "empty")
		if err != nil {
			t.Errorf("Read(%q) failed: %v", doc, err)
			continue
		}
		if events == nil || len(events) != 0 {
			t.Errorf("Read(%q) = %v, want empty slice", doc, events)
		}
	}
}

func TestRead_Malformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"scalar", `42`},
		{"truncated array", `[{"case_id": "c1"}`},
		{"array of scalars", `[1, 2]`},
		{"bad line", "{\"case_id\": \"c1\"}\n{not json}\n"},
	}
	for _, tt := range tests {
		_, err := Read(context.Background(), strings.NewReader(tt.doc), tt.name)
		if !perrors.IsCode(err, perrors.CodeInvalidFormat) {
			t.Errorf("%s: expected E103, got %v", tt.name, err)
		}
	}
}

func TestRead_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Read(ctx, strings.NewReader(`[{"case_id": "c1"}]`), "canceled")
	if !perrors.IsCode(err, perrors.CodeContextCanceled) {
		t.Errorf("expected E401, got %v", err)
	}
}

func TestRead_Progress(t *testing.T) {
	doc := `[{"case_id": "c1", "concept_name": "A"}]`
	var seen bytes.Buffer
	if _, err := Read(context.Background(), strings.NewReader(doc), "p", WithProgress(&seen)); err != nil {
		t.Fatal(err)
	}
	if seen.String() != doc {
		t.Errorf("progress writer saw %d bytes, want %d", seen.Len(), len(doc))
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(context.Background(), filepath.Join(dir, "missing.json")); !perrors.IsCode(err, perrors.CodeFileNotFound) {
		t.Errorf("expected E101, got %v", err)
	}

	path := filepath.Join(dir, "events.json")
	if err := os.WriteFile(path, []byte(`[{"case_id": "c1", "concept_name": "A"}]`), 0644); err != nil {
		t.Fatal(err)
	}
	events, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(events) != 1 || events[0].Activity != "A" {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestFromRecord_AliasPriority(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want model.Event
	}{
		{
			name: "underscore key wins",
			doc:  `{"case_id": "A", "case:concept:name": "B", "concept_name": "X", "concept:name": "Y"}`,
			want: model.Event{CaseID: "A", Activity: "X"},
		},
		{
			name: "xes key alone",
			doc:  `{"case:concept:name": "B", "concept:name": "Y", "org:resource": "ann"}`,
			want: model.Event{CaseID: "B", Activity: "Y", Resource: "ann"},
		},
		{
			name: "null falls back to alias",
			doc:  `{"timestamp": null, "time:timestamp": "2024-01-01T00:00:00Z", "lifecycle_transition": "start", "lifecycle:transition": "complete"}`,
			want: model.Event{Timestamp: "2024-01-01T00:00:00Z", Lifecycle: "start"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Map iteration order varies; the result must not.
			for i := 0; i < 50; i++ {
				events, err := Read(context.Background(), strings.NewReader(tt.doc), "aliases.jsonl")
				if err != nil {
					t.Fatalf("Read failed: %v", err)
				}
				if len(events) != 1 {
					t.Fatalf("expected 1 event, got %d", len(events))
				}
				e := events[0]
				if e.CaseID != tt.want.CaseID || e.Activity != tt.want.Activity || e.Timestamp != tt.want.Timestamp ||
					e.Resource != tt.want.Resource || e.Lifecycle != tt.want.Lifecycle {
					t.Fatalf("decode %d = %+v, want %+v", i, e, tt.want)
				}
				if len(e.Attributes) != 0 {
					t.Fatalf("aliases leaked into attributes: %v", e.Attributes)
				}
			}
		})
	}
}
