package pipeline

import (
	"sort"

	"categorizer/internal/domain"
	"categorizer/internal/taxonomy"
)

// Summarize computes label statistics. An empty result set yields zeros.
func Summarize(results []domain.CategorizedQuestion, tax *taxonomy.Taxonomy) domain.RunStatistics {
	stats := domain.RunStatistics{Total: len(results)}

	counts := make(map[string]int)
	totalLabels := 0
	for _, r := range results {
		n := len(r.AssignedLabels)
		if n == 0 {
			stats.Unlabeled++
		}
		if n > stats.MaxLabels {
			stats.MaxLabels = n
		}
		totalLabels += n
		for _, label := range r.AssignedLabels {
			counts[label]++
		}
	}
	if stats.Total > 0 {
		stats.UnlabeledFraction = float64(stats.Unlabeled) / float64(stats.Total)
		stats.MeanLabels = float64(totalLabels) / float64(stats.Total)
	}

	seen := make(map[string]bool, len(counts))
	if tax != nil {
		for _, label := range tax.Labels {
			stats.LabelCounts = append(stats.LabelCounts, domain.LabelCount{Label: label, Count: counts[label]})
			seen[label] = true
		}
	}
	var extra []string
	for label := range counts {
		if !seen[label] {
			extra = append(extra, label)
		}
	}
	sort.Strings(extra)
	for _, label := range extra {
		stats.LabelCounts = append(stats.LabelCounts, domain.LabelCount{Label: label, Count: counts[label]})
	}
	return stats
}
