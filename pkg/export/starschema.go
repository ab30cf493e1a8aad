// Package export writes analysis results as a star schema for BI tools.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/logflow/procinsight/pkg/analysis"
	"github.com/logflow/procinsight/pkg/defaults/metrics"
	perrors "github.com/logflow/procinsight/pkg/errors"
	"github.com/logflow/procinsight/pkg/interfaces"
)

// Table names. Each is written to <name>.parquet in the output directory.
const (
	TableDimActivities   = "Dim_Activities"
	TableFactTransitions = "Fact_Transitions"
	TableFactInsights    = "Fact_Insights"
	TableDimVariants     = "Dim_Variants"
	TableRunMetrics      = "Run_Metrics"
)

// StarSchemaExporter loads a ProcessAnalysis into DuckDB and copies it
// out as Parquet: Dim_Activities, Fact_Transitions, Fact_Insights,
// Dim_Variants and Run_Metrics. Every row carries the run id.
type StarSchemaExporter struct {
	db          *sql.DB
	outputDir   string
	compression string
	metrics     interfaces.MetricsExporter
	now         func() time.Time
}

// Option configures a StarSchemaExporter.
type Option func(*StarSchemaExporter)

// WithMetrics sets the metrics exporter.
func WithMetrics(m interfaces.MetricsExporter) Option {
	return func(e *StarSchemaExporter) { e.metrics = m }
}

// NewStarSchemaExporter creates a new star schema exporter. dsn selects
// the DuckDB database; empty means in-memory.
func NewStarSchemaExporter(outputDir, compression, dsn string, opts ...Option) (*StarSchemaExporter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, perrors.Wrap(err, perrors.CodeWriteFailed, "create output directory").
			WithContext("path", outputDir)
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CodeDuckDBInit, "open duckdb")
	}

	e := &StarSchemaExporter{
		db:          db,
		outputDir:   outputDir,
		compression: parquetCompression(compression),
		metrics:     metrics.NewNoopMetrics(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func parquetCompression(c string) string {
	switch strings.ToLower(c) {
	case "", "none":
		return "uncompressed"
	default:
		return strings.ToLower(c)
	}
}

// StarSchemaResult contains the run id and the paths of the generated files.
type StarSchemaResult struct {
	RunID           string `json:"run_id"`
	OutputDir       string `json:"output_dir"`
	DimActivities   string `json:"dim_activities"`
	FactTransitions string `json:"fact_transitions"`
	FactInsights    string `json:"fact_insights"`
	DimVariants     string `json:"dim_variants"`
	RunMetrics      string `json:"run_metrics"`
}

// Files returns all generated file paths.
func (r *StarSchemaResult) Files() []string {
	return []string{
		r.DimActivities,
		r.FactTransitions,
		r.FactInsights,
		r.DimVariants,
		r.RunMetrics,
	}
}

// Export writes res under a fresh run id.
func (e *StarSchemaExporter) Export(ctx context.Context, res *analysis.ProcessAnalysis) (*StarSchemaResult, error) {
	if res == nil {
		return nil, perrors.New(perrors.CodeValidationFailed, "nothing to export")
	}
	runID := uuid.NewString()
	start := time.Now()

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CodeDuckDBInit, "acquire duckdb connection")
	}
	defer conn.Close()

	if err := e.createTables(ctx, conn); err != nil {
		return nil, err
	}
	if err := e.load(ctx, conn, runID, res); err != nil {
		return nil, err
	}

	result := &StarSchemaResult{RunID: runID, OutputDir: e.outputDir}
	for _, t := range []struct {
		table string
		dst   *string
	}{
		{TableDimActivities, &result.DimActivities},
		{TableFactTransitions, &result.FactTransitions},
		{TableFactInsights, &result.FactInsights},
		{TableDimVariants, &result.DimVariants},
		{TableRunMetrics, &result.RunMetrics},
	} {
		path, err := e.copyTable(ctx, conn, t.table, runID)
		if err != nil {
			return nil, err
		}
		*t.dst = path
	}

	e.metrics.Timer(interfaces.MetricExportDuration, time.Since(start), map[string]string{interfaces.TagRunID: runID})
	return result, nil
}

func (e *StarSchemaExporter) createTables(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE OR REPLACE TABLE Dim_Activities (
			run_id VARCHAR,
			activity_key INTEGER,
			node_id VARCHAR,
			activity_name VARCHAR,
			node_type VARCHAR,
			frequency BIGINT,
			avg_duration_s DOUBLE,
			total_duration_s DOUBLE,
			efficiency DOUBLE,
			bottleneck_score DOUBLE,
			waste_score DOUBLE
		);

		CREATE OR REPLACE TABLE Fact_Transitions (
			run_id VARCHAR,
			transition_key INTEGER,
			source_key INTEGER,
			target_key INTEGER,
			source_node_id VARCHAR,
			target_node_id VARCHAR,
			frequency BIGINT,
			avg_duration_s DOUBLE,
			efficiency DOUBLE,
			bottleneck_score DOUBLE
		);

		CREATE OR REPLACE TABLE Fact_Insights (
			run_id VARCHAR,
			insight_key INTEGER,
			activity_key INTEGER,
			insight_type VARCHAR,
			severity VARCHAR,
			node_id VARCHAR,
			title VARCHAR,
			description VARCHAR,
			impact DOUBLE,
			recommendation VARCHAR
		);

		CREATE OR REPLACE TABLE Dim_Variants (
			run_id VARCHAR,
			variant_key INTEGER,
			sequence VARCHAR,
			case_count BIGINT,
			percentage DOUBLE
		);

		CREATE OR REPLACE TABLE Run_Metrics (
			run_id VARCHAR,
			exported_at TIMESTAMP,
			total_cases BIGINT,
			total_activities BIGINT,
			avg_case_time_s DOUBLE,
			efficiency_score DOUBLE,
			bottleneck_count BIGINT,
			waste_percentage DOUBLE
		);
	`)
	if err != nil {
		return perrors.Wrap(err, perrors.CodeDuckDBQuery, "create star schema tables")
	}
	return nil
}

// load inserts every row in one transaction.
func (e *StarSchemaExporter) load(ctx context.Context, conn *sql.Conn, runID string, res *analysis.ProcessAnalysis) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return perrors.Wrap(err, perrors.CodeDuckDBWrite, "begin transaction")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	keys := make(activityKeys, len(res.MainProcesses))
	for i, n := range res.MainProcesses {
		keys[n.ID] = i + 1
	}

	err = insertRows(ctx, tx, `INSERT INTO Dim_Activities VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(res.MainProcesses), func(i int) []any {
			n := res.MainProcesses[i]
			return []any{runID, keys[n.ID], n.ID, n.Name, string(n.Type), n.Frequency,
				n.AvgDuration, n.TotalDuration, n.Efficiency, n.BottleneckScore, n.WasteScore}
		})
	if err != nil {
		return e.rowsFailed(TableDimActivities, err)
	}
	e.rows(TableDimActivities, len(res.MainProcesses))

	err = insertRows(ctx, tx, `INSERT INTO Fact_Transitions VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(res.Edges), func(i int) []any {
			ed := res.Edges[i]
			return []any{runID, i + 1, keys.ref(ed.Source), keys.ref(ed.Target), ed.Source, ed.Target,
				ed.Frequency, ed.AvgDuration, ed.Efficiency, ed.BottleneckScore}
		})
	if err != nil {
		return e.rowsFailed(TableFactTransitions, err)
	}
	e.rows(TableFactTransitions, len(res.Edges))

	err = insertRows(ctx, tx, `INSERT INTO Fact_Insights VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(res.Insights), func(i int) []any {
			in := res.Insights[i]
			return []any{runID, i + 1, keys.ref(in.NodeID), string(in.Type), string(in.Severity), in.NodeID,
				in.Title, in.Description, in.Impact, in.Recommendation}
		})
	if err != nil {
		return e.rowsFailed(TableFactInsights, err)
	}
	e.rows(TableFactInsights, len(res.Insights))

	err = insertRows(ctx, tx, `INSERT INTO Dim_Variants VALUES (?, ?, ?, ?, ?)`,
		len(res.Variants), func(i int) []any {
			v := res.Variants[i]
			return []any{runID, i + 1, v.Variant, v.Count, v.Percent}
		})
	if err != nil {
		return e.rowsFailed(TableDimVariants, err)
	}
	e.rows(TableDimVariants, len(res.Variants))

	m := res.Metrics
	_, err = tx.ExecContext(ctx, `INSERT INTO Run_Metrics VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, e.now().UTC(), m.TotalCases, m.TotalActivities, m.AvgCaseTime,
		m.EfficiencyScore, m.BottleneckCount, m.WastePercentage)
	if err != nil {
		return e.rowsFailed(TableRunMetrics, err)
	}
	e.rows(TableRunMetrics, 1)

	if err = tx.Commit(); err != nil {
		return perrors.Wrap(err, perrors.CodeDuckDBWrite, "commit star schema")
	}
	return nil
}

// activityKeys maps node ids to Dim_Activities surrogate keys.
type activityKeys map[string]int

// ref returns the key for id, or nil when the edge endpoint or insight
// node fell outside the capped node list.
func (k activityKeys) ref(id string) any {
	if key, ok := k[id]; ok {
		return key
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, query string, n int, row func(int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

func (e *StarSchemaExporter) rows(table string, n int) {
	e.metrics.Counter(interfaces.MetricExportRows, int64(n), map[string]string{interfaces.TagTable: table})
}

func (e *StarSchemaExporter) rowsFailed(table string, err error) error {
	return perrors.Wrapf(err, perrors.CodeDuckDBWrite, "insert %s rows", table).WithContext("table", table)
}

// copyTable writes one table of the given run to Parquet.
func (e *StarSchemaExporter) copyTable(ctx context.Context, conn *sql.Conn, table, runID string) (string, error) {
	path := filepath.Join(e.outputDir, table+".parquet")
	query := fmt.Sprintf(`
		COPY (
			SELECT * FROM %s WHERE run_id = '%s'
		) TO '%s' (FORMAT PARQUET, COMPRESSION '%s')
	`, table, runID, quote(path), e.compression)

	if _, err := conn.ExecContext(ctx, query); err != nil {
		return "", perrors.Wrap(err, perrors.CodeDuckDBWrite, "copy table to parquet").
			WithContext("table", table).
			WithContext("path", path)
	}
	return path, nil
}

// quote escapes a string for a single-quoted SQL literal.
func quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Close releases resources.
func (e *StarSchemaExporter) Close() error {
	return e.db.Close()
}
