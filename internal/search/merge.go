package search

import (
	"sort"

	"github.com/Khandelwalgov/AskPro/internal/models"
)

// MergeResults concatenates per-index result lists in the given order, sorts
// by ascending score and keeps the first k. The sort is stable, so equal
// scores keep index enumeration order and then per-index rank.
func MergeResults(lists [][]*models.SearchResult, k int) []*models.SearchResult {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	merged := make([]*models.SearchResult, 0, total)
	for _, l := range lists {
		merged = append(merged, l...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score < merged[j].Score
	})
	if k >= 0 && len(merged) > k {
		merged = merged[:k]
	}
	return merged
}
