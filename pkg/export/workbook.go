package export

import (
	"github.com/xuri/excelize/v2"

	"github.com/logflow/procinsight/pkg/analysis"
	perrors "github.com/logflow/procinsight/pkg/errors"
)

// Workbook sheet names.
const (
	SheetSummary     = "Summary"
	SheetActivities  = "Activities"
	SheetTransitions = "Transitions"
	SheetInsights    = "Insights"
	SheetVariants    = "Variants"
)

// WriteWorkbook writes res as an XLSX report with one sheet per section.
func WriteWorkbook(path string, res *analysis.ProcessAnalysis) error {
	if res == nil {
		return perrors.New(perrors.CodeValidationFailed, "nothing to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return perrors.Wrap(err, perrors.CodeWriteFailed, "create header style")
	}

	m := res.Metrics
	sheets := []struct {
		name   string
		header []any
		rows   [][]any
	}{
		{SheetSummary, []any{"Metric", "Value"}, [][]any{
			{"Total cases", m.TotalCases},
			{"Total activities", m.TotalActivities},
			{"Avg case time (s)", m.AvgCaseTime},
			{"Efficiency score", m.EfficiencyScore},
			{"Bottlenecks", m.BottleneckCount},
			{"Waste (%)", m.WastePercentage},
		}},
		{SheetActivities, []any{"ID", "Activity", "Frequency", "Avg duration (s)", "Total duration (s)", "Efficiency", "Bottleneck", "Waste"}, nodeRows(res.MainProcesses)},
		{SheetTransitions, []any{"Source", "Target", "Frequency", "Avg duration (s)", "Efficiency", "Bottleneck"}, edgeRows(res.Edges)},
		{SheetInsights, []any{"Type", "Severity", "Activity", "Title", "Description", "Impact", "Recommendation"}, insightRows(res.Insights)},
		{SheetVariants, []any{"Variant", "Cases", "Percent"}, variantRows(res.Variants)},
	}

	for i, s := range sheets {
		if i == 0 {
			// NewFile starts with one sheet; rename instead of adding.
			if err := f.SetSheetName(f.GetSheetName(0), s.name); err != nil {
				return perrors.Wrap(err, perrors.CodeWriteFailed, "rename sheet")
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return perrors.Wrap(err, perrors.CodeWriteFailed, "create sheet").WithContext("sheet", s.name)
		}

		if err := writeRow(f, s.name, 1, s.header); err != nil {
			return err
		}
		last, _ := excelize.CoordinatesToCellName(len(s.header), 1)
		if err := f.SetCellStyle(s.name, "A1", last, header); err != nil {
			return perrors.Wrap(err, perrors.CodeWriteFailed, "style header")
		}
		for r, row := range s.rows {
			if err := writeRow(f, s.name, r+2, row); err != nil {
				return err
			}
		}
	}
	f.SetActiveSheet(0)

	if err := f.SaveAs(path); err != nil {
		return perrors.Wrap(err, perrors.CodeWriteFailed, "save workbook").WithContext("path", path)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return perrors.Wrap(err, perrors.CodeWriteFailed, "cell name")
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return perrors.Wrap(err, perrors.CodeWriteFailed, "write row").
			WithContext("sheet", sheet).
			WithContext("row", row)
	}
	return nil
}

func nodeRows(nodes []analysis.ProcessNode) [][]any {
	rows := make([][]any, len(nodes))
	for i, n := range nodes {
		rows[i] = []any{n.ID, n.Name, n.Frequency, n.AvgDuration, n.TotalDuration, n.Efficiency, n.BottleneckScore, n.WasteScore}
	}
	return rows
}

func edgeRows(edges []analysis.ProcessEdge) [][]any {
	rows := make([][]any, len(edges))
	for i, e := range edges {
		rows[i] = []any{e.Source, e.Target, e.Frequency, e.AvgDuration, e.Efficiency, e.BottleneckScore}
	}
	return rows
}

func insightRows(insights []analysis.ProcessInsight) [][]any {
	rows := make([][]any, len(insights))
	for i, in := range insights {
		rows[i] = []any{string(in.Type), string(in.Severity), in.NodeID, in.Title, in.Description, in.Impact, in.Recommendation}
	}
	return rows
}

func variantRows(variants []analysis.Variant) [][]any {
	rows := make([][]any, len(variants))
	for i, v := range variants {
		rows[i] = []any{v.Variant, v.Count, v.Percent}
	}
	return rows
}
