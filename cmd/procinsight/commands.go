package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/procinsight/internal/model"
	"github.com/logflow/procinsight/pkg/analysis"
	"github.com/logflow/procinsight/pkg/config"
	"github.com/logflow/procinsight/pkg/defaults/metrics"
	perrors "github.com/logflow/procinsight/pkg/errors"
	"github.com/logflow/procinsight/pkg/eventsource"
	"github.com/logflow/procinsight/pkg/export"
	"github.com/logflow/procinsight/pkg/interfaces"
	"github.com/logflow/procinsight/pkg/telemetry"
	"github.com/logflow/procinsight/pkg/tui"
	"github.com/logflow/procinsight/pkg/watch"
)

// app bundles what every analysis command needs.
type app struct {
	cfg      *config.Config
	metrics  interfaces.MetricsExporter
	analyzer *analysis.Analyzer
	logger   *log.Logger
	shutdown func(context.Context) error
}

func newApp(ctx context.Context) (*app, error) {
	m := config.NewManager()
	if err := m.Load(configFile); err != nil {
		return nil, err
	}
	cfg := m.Get()
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		metrics:  metrics.NewNoopMetrics(),
		logger:   log.New(io.Discard, "[analysis] ", log.LstdFlags),
		shutdown: func(context.Context) error { return nil },
	}
	if verbose {
		a.logger.SetOutput(os.Stderr)
		a.metrics = metrics.NewLogMetrics()
		for _, p := range m.GetPaths() {
			a.logger.Printf("config: %s", p)
		}
	}

	if cfg.Telemetry.Enabled {
		oc := telemetry.DefaultOTLPConfig(cfg.Telemetry.ServiceName)
		oc.Endpoint = cfg.Telemetry.Endpoint
		oc.ServiceVersion = version
		oc.InsecureTLS = cfg.Telemetry.Insecure
		oc.SamplingRatio = cfg.Telemetry.SamplingRatio

		shutdown, err := telemetry.InitOTLP(ctx, oc)
		if err != nil {
			// Tracing is optional; run without it.
			a.logger.Printf("telemetry disabled: %v", err)
		} else {
			a.shutdown = shutdown
			a.logger.Printf("exporting traces to %s", oc.Endpoint)
		}
	}

	analyzer, err := analysis.New(
		analysis.WithPolicy(cfg.Analysis.Policy),
		analysis.WithWorkers(cfg.Analysis.Workers),
		analysis.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, err
	}
	a.analyzer = analyzer
	return a, nil
}

// applyFlags lets explicit flags override file and env configuration.
func applyFlags(cfg *config.Config) {
	if workers >= 0 {
		cfg.Analysis.Workers = workers
	}
	if otlpEndpoint != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.Endpoint = otlpEndpoint
	}
	if compression != "" {
		cfg.Export.Compression = compression
	}
	if database != "" {
		cfg.Export.Database = database
	}
	if debounce > 0 {
		cfg.Watch.Debounce = debounce
	}
}

func (a *app) close() {
	a.metrics.Flush()
	a.metrics.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		a.logger.Printf("telemetry shutdown: %v", err)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// loadEvents reads the input, drawing a progress bar for files unless
// output is machine-readable or quiet.
func loadEvents(ctx context.Context, path string, showProgress bool) ([]model.Event, error) {
	if path == "-" {
		return eventsource.Read(ctx, os.Stdin, "stdin")
	}

	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perrors.FileNotFound(path)
		}
		return nil, err
	}
	if !showProgress {
		return eventsource.Load(ctx, path)
	}

	bar := tui.ShowProgress(os.Stderr, stat.Size(), "  loading "+filepath.Base(path))
	events, err := eventsource.Load(ctx, path, eventsource.WithProgress(bar))
	bar.Finish()
	return events, err
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	events, err := loadEvents(ctx, inputFile, !quiet && !jsonOutput)
	if err != nil {
		return err
	}
	a.logger.Printf("loaded %d events from %s", len(events), inputFile)

	start := time.Now()
	res, err := a.analyzer.Analyze(ctx, events)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	elapsed := time.Since(start)
	a.logger.Printf("analyzed %d cases in %v", res.Metrics.TotalCases, elapsed)

	if outputFile != "" {
		if err := writeJSON(outputFile, res); err != nil {
			return err
		}
		a.logger.Printf("wrote %s", outputFile)
	}

	switch {
	case jsonOutput:
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	case !quiet:
		out := cmd.OutOrStdout()
		fmt.Fprint(out, tui.Header(version))
		tui.PrintReport(out, res, tui.ReportOptions{
			Source:   inputFile,
			Events:   len(events),
			Elapsed:  elapsed,
			MaxNodes: maxNodes,
		})
	}

	if xlsxFile != "" {
		if err := export.WriteWorkbook(xlsxFile, res); err != nil {
			return err
		}
		a.logger.Printf("wrote %s", xlsxFile)
	}

	if exportDir != "" {
		result, err := exportStarSchema(ctx, a, res, exportDir)
		if err != nil {
			return err
		}
		if !quiet && !jsonOutput {
			printExport(cmd.OutOrStdout(), result)
		}
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	onResult := func(path string, res *analysis.ProcessAnalysis) error {
		if outputFile != "" {
			if err := writeJSON(outputFile, res); err != nil {
				return err
			}
		}
		if exportDir != "" {
			if _, err := exportStarSchema(ctx, a, res, exportDir); err != nil {
				return err
			}
		}
		if !quiet {
			tui.PrintReport(out, res, tui.ReportOptions{Source: path})
		}
		return nil
	}

	watchLogger := log.New(os.Stderr, "[watch] ", log.LstdFlags)
	r := watch.NewReanalyzer(inputFile, a.analyzer, analysis.NewTraceCache(a.metrics), onResult,
		watch.WithLogger(watchLogger))

	if !quiet {
		fmt.Fprint(out, tui.Header(version))
	}
	err = r.Run(ctx, a.cfg.Watch.Debounce)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	events, err := loadEvents(ctx, inputFile, true)
	if err != nil {
		return err
	}
	res, err := a.analyzer.Analyze(ctx, events)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	dir := exportDir
	if dir == "" {
		dir = a.cfg.Export.OutputDir
	}
	result, err := exportStarSchema(ctx, a, res, dir)
	if err != nil {
		return err
	}
	printExport(cmd.OutOrStdout(), result)

	if xlsxFile != "" {
		if err := export.WriteWorkbook(xlsxFile, res); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", xlsxFile)
	}
	return nil
}

func exportStarSchema(ctx context.Context, a *app, res *analysis.ProcessAnalysis, dir string) (*export.StarSchemaResult, error) {
	exp, err := export.NewStarSchemaExporter(dir, a.cfg.Export.Compression, a.cfg.Export.Database,
		export.WithMetrics(a.metrics))
	if err != nil {
		return nil, err
	}
	defer exp.Close()

	result, err := exp.Export(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("export failed: %w", err)
	}
	a.logger.Printf("exported run %s to %s", result.RunID, dir)
	return result, nil
}

func printExport(w io.Writer, result *export.StarSchemaResult) {
	fmt.Fprintf(w, "\n  Star schema (run %s):\n", result.RunID)
	for _, f := range result.Files() {
		size := int64(0)
		if stat, err := os.Stat(f); err == nil {
			size = stat.Size()
		}
		fmt.Fprintf(w, "    %s  %s\n", f, tui.FormatBytes(size))
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return perrors.Wrap(err, perrors.CodeWriteFailed, "encode analysis")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return perrors.Wrap(err, perrors.CodeWriteFailed, "create output directory").WithContext("path", dir)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return perrors.Wrap(err, perrors.CodeWriteFailed, "write analysis").WithContext("path", path)
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	m := config.NewManager()
	if err := m.Load(configFile); err != nil {
		return err
	}
	applyFlags(m.Get())

	out := cmd.OutOrStdout()
	for _, p := range m.GetPaths() {
		fmt.Fprintf(out, "# loaded: %s\n", p)
	}
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		p, err := config.UserConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.NewManager().Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
