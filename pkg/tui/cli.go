// Package tui renders analysis results for the terminal.
// Simple, streaming output: a header, a progress bar while loading and a
// styled report.
package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/schollz/progressbar/v3"

	"github.com/logflow/procinsight/pkg/analysis"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	warn    = lipgloss.Color("#FFAA00")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(warn).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
)

const rule = "  ─────────────────────────────────────"

// Header returns the banner line.
func Header(version string) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(titleStyle.Render("  PROCINSIGHT") + mutedStyle.Render(" "+version) + "\n")
	b.WriteString(mutedStyle.Render("  Process mining analytics for event logs") + "\n")
	return b.String()
}

// ReportOptions controls RenderReport.
type ReportOptions struct {
	Source   string
	Events   int
	Elapsed  time.Duration
	MaxNodes int // 0 = all
}

// RenderReport formats an analysis as a terminal report.
func RenderReport(res *analysis.ProcessAnalysis, opts ReportOptions) string {
	var b strings.Builder
	m := res.Metrics

	b.WriteString("\n")
	b.WriteString(successStyle.Render("  ✓ ANALYSIS COMPLETE") + "\n\n")
	if opts.Source != "" {
		fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render("Input:"), codeStyle.Render(opts.Source))
	}
	if opts.Events > 0 {
		fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render("Events:"), titleStyle.Render(formatNumber(int64(opts.Events))))
	}
	fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render("Cases:"), titleStyle.Render(formatNumber(int64(m.TotalCases))))
	fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render("Activities:"), titleStyle.Render(fmt.Sprintf("%d", m.TotalActivities)))
	fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render("Avg case time:"),
		titleStyle.Render(formatDuration(time.Duration(m.AvgCaseTime*float64(time.Second)))))
	fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render("Efficiency:"), scoreStyle(m.EfficiencyScore).Render(formatPercent(m.EfficiencyScore)))
	fmt.Fprintf(&b, "  %s %s  %s %s\n",
		mutedStyle.Render("Bottlenecks:"), titleStyle.Render(fmt.Sprintf("%d", m.BottleneckCount)),
		mutedStyle.Render("Waste:"), titleStyle.Render(fmt.Sprintf("%.1f%%", m.WastePercentage)))
	if opts.Elapsed > 0 {
		fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(opts.Elapsed)))
	}

	if len(res.MainProcesses) > 0 {
		b.WriteString("\n" + accentStyle.Render("▸ ACTIVITIES") + "\n")
		b.WriteString(renderNodes(res.MainProcesses, opts.MaxNodes) + "\n")
	}

	if len(res.Insights) > 0 {
		b.WriteString("\n" + accentStyle.Render("▸ INSIGHTS") + "\n")
		for _, in := range res.Insights {
			fmt.Fprintf(&b, "  %s %s\n", severityStyle(in.Severity).Render(strings.ToUpper(string(in.Severity))), titleStyle.Render(in.Title))
			fmt.Fprintf(&b, "    %s\n", in.Description)
			fmt.Fprintf(&b, "    %s\n", mutedStyle.Render("→ "+in.Recommendation))
		}
	}

	if len(res.Variants) > 0 {
		b.WriteString("\n" + accentStyle.Render("▸ VARIANTS") + "\n")
		for _, v := range res.Variants {
			fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("%5.1f%% %6d", v.Percent, v.Count)), v.Variant)
		}
	}
	b.WriteString(mutedStyle.Render(rule) + "\n")
	return b.String()
}

// PrintReport writes RenderReport to w.
func PrintReport(w io.Writer, res *analysis.ProcessAnalysis, opts ReportOptions) {
	fmt.Fprint(w, RenderReport(res, opts))
}

func renderNodes(nodes []analysis.ProcessNode, limit int) string {
	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}
	rows := make([][]string, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, []string{
			n.Name,
			formatNumber(int64(n.Frequency)),
			formatDuration(time.Duration(n.AvgDuration * float64(time.Second))),
			formatPercent(n.Efficiency),
			formatPercent(n.BottleneckScore),
			formatPercent(n.WasteScore),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("ACTIVITY", "FREQ", "AVG", "EFF", "BOTTLENECK", "WASTE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Bold(true)
			}
			if col > 0 {
				return s.Align(lipgloss.Right)
			}
			return s
		}).
		String()
}

func severityStyle(s analysis.Severity) lipgloss.Style {
	switch s {
	case analysis.SeverityCritical, analysis.SeverityHigh:
		return accentStyle
	case analysis.SeverityMedium:
		return warnStyle
	default:
		return successStyle
	}
}

func scoreStyle(v float64) lipgloss.Style {
	switch {
	case v >= 0.7:
		return successStyle
	case v >= 0.4:
		return warnStyle
	default:
		return accentStyle
	}
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
	}
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// FormatBytes formats a byte count with a binary unit.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// ShowProgress creates a byte progress bar for loading input. It writes to
// w and is an io.Writer itself, so it can be handed to
// eventsource.WithProgress.
func ShowProgress(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// ClearLine clears the current line.
func ClearLine(w io.Writer) {
	fmt.Fprint(w, "\r\033[K")
}
