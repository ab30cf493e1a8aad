package analysis

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// NodeID derives a node id from an activity name: whitespace runs become
// underscores and the result is lower-cased. Leading and trailing runs are
// kept as an underscore.
func NodeID(activity string) string {
	var b strings.Builder
	b.Grow(len(activity))
	inSpace := false
	for _, r := range activity {
		if isSpace(r) {
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// isSpace reports Unicode White_Space other than NEL (U+0085), plus the
// byte order mark.
func isSpace(r rune) bool {
	if r == '\uFEFF' {
		return true
	}
	return r != '\u0085' && unicode.IsSpace(r)
}

// assignIDs maps every activity name to a unique node id. Names that
// normalize to an id already taken get a numeric suffix, in first-seen
// order.
func assignIDs(activities []*ActivityAggregate) map[string]string {
	ids := make(map[string]string, len(activities))
	taken := make(map[string]bool, len(activities))
	for _, a := range activities {
		base := NodeID(a.Name)
		id := base
		for n := 2; taken[id]; n++ {
			id = fmt.Sprintf("%s_%d", base, n)
		}
		taken[id] = true
		ids[a.Name] = id
	}
	return ids
}

// buildNodes scores every activity, ranks nodes by frequency (stable on
// first-seen order) and keeps the policy's node cap.
func buildNodes(activities []*ActivityAggregate, ids map[string]string, p Policy) []ProcessNode {
	nodes := make([]ProcessNode, 0, len(activities))
	for _, a := range activities {
		avgMs := a.Durations.MeanMs()
		efficiency := p.Efficiency(a.Frequency, avgMs, a.ResourceCount())

		nodes = append(nodes, ProcessNode{
			ID:              ids[a.Name],
			Name:            a.Name,
			Frequency:       a.Frequency,
			AvgDuration:     avgMs / 1000,
			TotalDuration:   float64(a.Durations.SumMs) / 1000,
			Efficiency:      efficiency,
			BottleneckScore: p.BottleneckScore(avgMs, a.Frequency),
			WasteScore:      p.WasteScore(avgMs, efficiency),
			Type:            NodeTypeActivity,
		})
	}

	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Frequency > nodes[j].Frequency })
	if len(nodes) > p.NodeCap {
		nodes = nodes[:p.NodeCap]
	}
	return nodes
}

// buildEdges scores every transition and ranks edges by frequency. Edges
// are not capped.
func buildEdges(transitions []*TransitionAggregate, ids map[string]string, p Policy) []ProcessEdge {
	edges := make([]ProcessEdge, 0, len(transitions))
	for _, t := range transitions {
		avgMs := t.Durations.MeanMs()
		edges = append(edges, ProcessEdge{
			Source:          edgeEndpoint(ids, t.Source),
			Target:          edgeEndpoint(ids, t.Target),
			Frequency:       t.Frequency,
			AvgDuration:     avgMs / 1000,
			Efficiency:      p.TransitionEfficiency(t.Frequency, avgMs),
			BottleneckScore: p.BottleneckScore(avgMs, t.Frequency),
		})
	}

	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Frequency > edges[j].Frequency })
	return edges
}

func edgeEndpoint(ids map[string]string, activity string) string {
	if id, ok := ids[activity]; ok {
		return id
	}
	return NodeID(activity)
}
