// procinsight - process mining analytics for event logs.
// Reads a JSON or JSONL event list and reports the discovered process
// model, its bottlenecks, waste and efficiency.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	perrors "github.com/logflow/procinsight/pkg/errors"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	configFile   string
	verbose      bool
	otlpEndpoint string

	inputFile   string
	outputFile  string
	workers     int
	exportDir   string
	xlsxFile    string
	compression string
	database    string
	jsonOutput  bool
	quiet       bool
	maxNodes    int
	debounce    time.Duration
	forceInit   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		reportError(os.Stderr, err, verbose)
		os.Exit(1)
	}
}

// reportError prints err, plus where it was raised when verbose.
func reportError(w io.Writer, err error, withStack bool) {
	fmt.Fprintln(w, err)

	var pErr *perrors.Error
	if withStack && errors.As(err, &pErr) {
		fmt.Fprint(w, pErr.FormatStack())
	}
}

var rootCmd = &cobra.Command{
	Use:   "procinsight",
	Short: "procinsight - process mining analytics for event logs",
	Long: `procinsight groups events into cases, aggregates activity and transition
statistics, scores every activity and reports bottlenecks, waste and
efficient steps.

Input is a JSON array of events or JSONL with one event per line:
  {"case_id": "...", "concept_name": "...", "timestamp": "...", "resource": "..."}`,
	Version:       fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze an event log",
	Long: `Analyze an event log and print a report.

Examples:
  procinsight analyze -i events.json
  procinsight analyze -i events.jsonl -o analysis.json --workers 8
  procinsight analyze -i events.json --json | jq .metrics
  cat events.jsonl | procinsight analyze -i -
  procinsight analyze -i events.json --export ./warehouse
  procinsight analyze -i events.json --xlsx report.xlsx`,
	RunE: runAnalyze,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-analyze an event log whenever it changes",
	Long: `Analyze an event log, then watch it and re-run the analysis on every change.

Examples:
  procinsight watch -i events.json
  procinsight watch -i events.json -o analysis.json --debounce 2s`,
	RunE: runWatch,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export an analysis as a Parquet star schema",
	Long: `Analyze an event log and write the result as Parquet files via DuckDB:
Dim_Activities, Fact_Transitions, Fact_Insights, Dim_Variants, Run_Metrics.

Examples:
  procinsight export -i events.json -d ./warehouse
  procinsight export -i events.json -d ./warehouse --compression zstd`,
	RunE: runExport,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration (default ~/.procinsight/config.yaml)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "procinsight %s (%s)\n", version, commit)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (in addition to the standard locations)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output and metrics logging")
	rootCmd.PersistentFlags().StringVar(&otlpEndpoint, "otlp", "", "Export traces to this OTLP gRPC endpoint")

	// Analyze command flags
	analyzeCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input file path (use '-' for stdin)")
	analyzeCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the analysis as JSON to this file")
	analyzeCmd.Flags().IntVarP(&workers, "workers", "w", -1, "Aggregation goroutines (default from config)")
	analyzeCmd.Flags().StringVar(&exportDir, "export", "", "Also write a Parquet star schema to this directory")
	analyzeCmd.Flags().StringVar(&xlsxFile, "xlsx", "", "Also write an Excel report to this file")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the analysis as JSON instead of a report")
	analyzeCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "No progress bar or report")
	analyzeCmd.Flags().IntVar(&maxNodes, "max-nodes", 0, "Limit the activity table in the report")
	analyzeCmd.MarkFlagRequired("input")

	// Watch command flags
	watchCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input file path (required)")
	watchCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Rewrite the analysis JSON to this file on every change")
	watchCmd.Flags().IntVarP(&workers, "workers", "w", -1, "Aggregation goroutines (default from config)")
	watchCmd.Flags().DurationVar(&debounce, "debounce", 0, "Quiet period before re-analysis (default from config)")
	watchCmd.Flags().StringVar(&exportDir, "export", "", "Rewrite a Parquet star schema to this directory on every change")
	watchCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "No report on change")
	watchCmd.MarkFlagRequired("input")

	// Export command flags
	exportCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input file path (use '-' for stdin)")
	exportCmd.Flags().StringVarP(&exportDir, "dir", "d", "", "Output directory (default from config)")
	exportCmd.Flags().StringVar(&compression, "compression", "", "Parquet compression (none, snappy, gzip, zstd)")
	exportCmd.Flags().StringVar(&database, "database", "", "DuckDB database file (default in-memory)")
	exportCmd.Flags().StringVar(&xlsxFile, "xlsx", "", "Also write an Excel report to this file")
	exportCmd.Flags().IntVarP(&workers, "workers", "w", -1, "Aggregation goroutines (default from config)")
	exportCmd.MarkFlagRequired("input")

	// Config command flags
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	// Add commands
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
