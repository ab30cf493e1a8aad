package export

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/logflow/procinsight/internal/model"
	"github.com/logflow/procinsight/pkg/analysis"
	perrors "github.com/logflow/procinsight/pkg/errors"
)

func sampleAnalysis(t *testing.T) *analysis.ProcessAnalysis {
	t.Helper()
	events := []model.Event{
		{CaseID: "c1", Activity: "Register", Timestamp: "2024-01-01T10:00:00Z", Resource: "ann"},
		{CaseID: "c1", Activity: "Check", Timestamp: "2024-01-01T10:30:00Z", Resource: "bob"},
		{CaseID: "c1", Activity: "Approve", Timestamp: "2024-01-01T11:00:00Z", Resource: "ann"},
		{CaseID: "c2", Activity: "Register", Timestamp: "2024-01-02T09:00:00Z", Resource: "ann"},
		{CaseID: "c2", Activity: "Approve", Timestamp: "2024-01-02T09:10:00Z", Resource: "cid"},
	}
	res, err := analysis.Analyze(events)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	return res
}

func TestStarSchemaExporter_Export(t *testing.T) {
	dir := t.TempDir()
	exp, err := NewStarSchemaExporter(dir, "snappy", "")
	if err != nil {
		t.Fatalf("NewStarSchemaExporter failed: %v", err)
	}
	defer exp.Close()

	res := sampleAnalysis(t)
	out, err := exp.Export(context.Background(), res)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if out.RunID == "" {
		t.Error("run id should be set")
	}

	for _, f := range out.Files() {
		info, err := os.Stat(f)
		if err != nil {
			t.Errorf("missing output %s: %v", f, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("empty output %s", f)
		}
	}

	counts := map[string]int{
		out.DimActivities:   len(res.MainProcesses),
		out.FactTransitions: len(res.Edges),
		out.FactInsights:    len(res.Insights),
		out.DimVariants:     len(res.Variants),
		out.RunMetrics:      1,
	}
	for path, want := range counts {
		var got int
		row := exp.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM read_parquet('%s')`, quote(path)))
		if err := row.Scan(&got); err != nil {
			t.Errorf("read back %s: %v", path, err)
			continue
		}
		if got != want {
			t.Errorf("%s has %d rows, want %d", path, got, want)
		}
	}

	var cases int
	var runID string
	err = exp.db.QueryRow(fmt.Sprintf(`SELECT run_id, total_cases FROM read_parquet('%s')`, quote(out.RunMetrics))).
		Scan(&runID, &cases)
	if err != nil {
		t.Fatalf("read Run_Metrics: %v", err)
	}
	if runID != out.RunID || cases != 2 {
		t.Errorf("Run_Metrics = (%s, %d), want (%s, 2)", runID, cases, out.RunID)
	}
}

func TestStarSchemaExporter_RunsAreDistinct(t *testing.T) {
	exp, err := NewStarSchemaExporter(t.TempDir(), "none", "")
	if err != nil {
		t.Fatal(err)
	}
	defer exp.Close()

	res := sampleAnalysis(t)
	first, err := exp.Export(context.Background(), res)
	if err != nil {
		t.Fatal(err)
	}
	second, err := exp.Export(context.Background(), res)
	if err != nil {
		t.Fatal(err)
	}
	if first.RunID == second.RunID {
		t.Error("each export should get its own run id")
	}
}

func TestStarSchemaExporter_Nil(t *testing.T) {
	exp, err := NewStarSchemaExporter(t.TempDir(), "zstd", "")
	if err != nil {
		t.Fatal(err)
	}
	defer exp.Close()

	if _, err := exp.Export(context.Background(), nil); !perrors.IsCode(err, perrors.CodeValidationFailed) {
		t.Errorf("expected E203, got %v", err)
	}
}

func TestParquetCompression(t *testing.T) {
	tests := map[string]string{
		"":       "uncompressed",
		"none":   "uncompressed",
		"ZSTD":   "zstd",
		"snappy": "snappy",
	}
	for in, want := range tests {
		if got := parquetCompression(in); got != want {
			t.Errorf("parquetCompression(%q) = %q, want %q", in, got, want)
		}
	}
}
