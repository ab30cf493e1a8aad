package analysis

import (
	"sort"
	"strings"
)

const variantSeparator = " -> "

// CollectVariants groups cases by their activity sequence and returns the
// top most frequent sequences, ties broken by first encounter.
func CollectVariants(log *TraceLog, top int) []Variant {
	if log.Len() == 0 || top <= 0 {
		return nil
	}

	counts := make(map[string]int)
	var order []string
	for _, tr := range log.Traces {
		names := make([]string, tr.Len())
		for i := range tr.Events {
			names[i] = tr.Events[i].Event.ActivityName()
		}
		key := strings.Join(names, variantSeparator)
		if _, ok := counts[key]; !ok {
			order = append(order, key)
		}
		counts[key]++
	}

	variants := make([]Variant, 0, len(order))
	for _, key := range order {
		variants = append(variants, Variant{
			Variant: key,
			Count:   counts[key],
			Percent: float64(counts[key]) * 100 / float64(log.Len()),
		})
	}
	sort.SliceStable(variants, func(i, j int) bool { return variants[i].Count > variants[j].Count })
	if len(variants) > top {
		variants = variants[:top]
	}
	return variants
}
