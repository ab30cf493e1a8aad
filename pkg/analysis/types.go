// Package analysis turns a flat event log into a statistical process model:
// per-activity nodes, per-transition edges, ranked insights and log-wide
// metrics.
//
// The pipeline is a pure function of its input:
//  1. group events into time-ordered traces
//  2. aggregate activity and transition statistics (optionally in parallel)
//  3. score, rank and cap nodes and edges
//  4. derive insights, metrics and variants from the capped node list
package analysis

// NodeType tags a process node.
type NodeType string

// NodeTypeActivity is the only node type produced by this package.
const NodeTypeActivity NodeType = "activity"

// Position is a layout placeholder filled in by presentation layers.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ProcessNode is one activity of the discovered process.
// Durations are in seconds.
type ProcessNode struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Frequency       int      `json:"frequency"`
	AvgDuration     float64  `json:"avgDuration"`
	TotalDuration   float64  `json:"totalDuration"`
	Efficiency      float64  `json:"efficiency"`
	BottleneckScore float64  `json:"bottleneckScore"`
	WasteScore      float64  `json:"wasteScore"`
	Type            NodeType `json:"type"`
	Position        Position `json:"position"`
}

// ProcessEdge is a directly-follows transition between two activities.
type ProcessEdge struct {
	Source          string  `json:"source"`
	Target          string  `json:"target"`
	Frequency       int     `json:"frequency"`
	AvgDuration     float64 `json:"avgDuration"`
	Efficiency      float64 `json:"efficiency"`
	BottleneckScore float64 `json:"bottleneckScore"`
}

// InsightType classifies an insight.
type InsightType string

const (
	InsightBottleneck InsightType = "bottleneck"
	InsightWaste      InsightType = "waste"
	InsightEfficiency InsightType = "efficiency"
)

// Severity ranks an insight.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ProcessInsight is a human-readable finding derived from node scores.
type ProcessInsight struct {
	Type           InsightType `json:"type"`
	Severity       Severity    `json:"severity"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Impact         float64     `json:"impact"`
	Recommendation string      `json:"recommendation"`
	NodeID         string      `json:"nodeId,omitempty"`
}

// Metrics summarizes the whole log. AvgCaseTime is in seconds.
type Metrics struct {
	TotalCases      int     `json:"totalCases"`
	AvgCaseTime     float64 `json:"avgCaseTime"`
	TotalActivities int     `json:"totalActivities"`
	EfficiencyScore float64 `json:"efficiencyScore"`
	BottleneckCount int     `json:"bottleneckCount"`
	WastePercentage float64 `json:"wastePercentage"`
}

// Variant is a distinct activity sequence shared by one or more cases.
type Variant struct {
	Variant string  `json:"variant"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// ProcessAnalysis is the result of one analysis run. It holds no
// references into the input events.
type ProcessAnalysis struct {
	MainProcesses []ProcessNode    `json:"mainProcesses"`
	Edges         []ProcessEdge    `json:"edges"`
	Insights      []ProcessInsight `json:"insights"`
	Metrics       Metrics          `json:"metrics"`
	Variants      []Variant        `json:"variants,omitempty"`
}
