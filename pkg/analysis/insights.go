package analysis

import (
	"fmt"
	"sort"
)

// Fixed recommendations per insight type.
const (
	RecommendBottleneck = "Consider resource allocation optimization or process automation"
	RecommendWaste      = "Review process necessity and optimize resource utilization"
	RecommendEfficiency = "Use as best practice template for other processes"
)

// GenerateInsights scans the capped node list for bottlenecks, waste and
// highly efficient activities. Groups are emitted in that order, each
// sorted by its own score descending; there is no global re-sort.
func GenerateInsights(nodes []ProcessNode, p Policy) []ProcessInsight {
	insights := make([]ProcessInsight, 0)
	insights = append(insights, bottleneckInsights(nodes, p)...)
	insights = append(insights, wasteInsights(nodes, p)...)
	insights = append(insights, efficiencyInsights(nodes, p)...)
	return insights
}

func bottleneckInsights(nodes []ProcessNode, p Policy) []ProcessInsight {
	hits := rank(nodes,
		func(n *ProcessNode) bool { return n.BottleneckScore > p.BottleneckThreshold },
		func(n *ProcessNode) float64 { return n.BottleneckScore })

	out := make([]ProcessInsight, 0, len(hits))
	for _, n := range hits {
		severity := SeverityHigh
		if n.BottleneckScore > p.CriticalThreshold {
			severity = SeverityCritical
		}
		out = append(out, ProcessInsight{
			Type:     InsightBottleneck,
			Severity: severity,
			Title:    "Bottleneck Detected: " + n.Name,
			Description: fmt.Sprintf("This activity has high duration (%.1fs avg) and frequency (%d occurrences)",
				n.AvgDuration, n.Frequency),
			Impact:         n.BottleneckScore * 100,
			Recommendation: RecommendBottleneck,
			NodeID:         n.ID,
		})
	}
	return out
}

func wasteInsights(nodes []ProcessNode, p Policy) []ProcessInsight {
	hits := rank(nodes,
		func(n *ProcessNode) bool { return n.WasteScore > p.WasteThreshold },
		func(n *ProcessNode) float64 { return n.WasteScore })

	out := make([]ProcessInsight, 0, len(hits))
	for _, n := range hits {
		severity := SeverityMedium
		if n.WasteScore > p.HighWasteThreshold {
			severity = SeverityHigh
		}
		out = append(out, ProcessInsight{
			Type:           InsightWaste,
			Severity:       severity,
			Title:          "Waste Identified: " + n.Name,
			Description:    fmt.Sprintf("Low efficiency (%.1f%%) with high resource consumption", n.Efficiency*100),
			Impact:         n.WasteScore * 100,
			Recommendation: RecommendWaste,
			NodeID:         n.ID,
		})
	}
	return out
}

func efficiencyInsights(nodes []ProcessNode, p Policy) []ProcessInsight {
	hits := rank(nodes,
		func(n *ProcessNode) bool {
			return n.Efficiency > p.EfficiencyThreshold && n.Frequency > p.EfficiencyMinFrequency
		},
		func(n *ProcessNode) float64 { return n.Efficiency })
	if len(hits) > p.TopEfficient {
		hits = hits[:p.TopEfficient]
	}

	out := make([]ProcessInsight, 0, len(hits))
	for _, n := range hits {
		out = append(out, ProcessInsight{
			Type:           InsightEfficiency,
			Severity:       SeverityLow,
			Title:          "High Efficiency: " + n.Name,
			Description:    fmt.Sprintf("Excellent performance with %.1f%% efficiency", n.Efficiency*100),
			Impact:         n.Efficiency * 100,
			Recommendation: RecommendEfficiency,
			NodeID:         n.ID,
		})
	}
	return out
}

// rank filters nodes and sorts the survivors by score descending, keeping
// node-list order among equal scores.
func rank(nodes []ProcessNode, keep func(*ProcessNode) bool, score func(*ProcessNode) float64) []*ProcessNode {
	var hits []*ProcessNode
	for i := range nodes {
		if keep(&nodes[i]) {
			hits = append(hits, &nodes[i])
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return score(hits[i]) > score(hits[j]) })
	return hits
}
