package analysis

// ComputeMetrics summarizes the log from its traces and the capped node list.
//
// TotalActivities counts the capped node list, not every distinct activity.
// AvgCaseTime divides by every case, including cases with fewer than two
// events that contribute nothing to the sum.
func ComputeMetrics(log *TraceLog, nodes []ProcessNode, p Policy) Metrics {
	m := Metrics{
		TotalCases:      log.Len(),
		TotalActivities: len(nodes),
	}

	if m.TotalCases > 0 {
		var sumMs int64
		for _, tr := range log.Traces {
			if tr.Len() < 2 {
				continue
			}
			sumMs += tr.Events[tr.Len()-1].At() - tr.Events[0].At()
		}
		m.AvgCaseTime = float64(sumMs) / float64(m.TotalCases) / 1000
	}

	if len(nodes) == 0 {
		return m
	}

	var efficiencySum float64
	wasteful := 0
	for _, n := range nodes {
		efficiencySum += n.Efficiency
		if n.BottleneckScore > p.BottleneckThreshold {
			m.BottleneckCount++
		}
		if n.WasteScore > p.WasteThreshold {
			wasteful++
		}
	}
	m.EfficiencyScore = efficiencySum / float64(len(nodes))
	m.WastePercentage = 100 * float64(wasteful) / float64(m.TotalActivities)
	return m
}
