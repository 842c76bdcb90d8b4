// Package search turns raw similarity matches into ranked, enriched recommendations.
package search

import (
	"sort"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/pkg/utils"
)

// Reconcile deduplicates raw matches by id keeping the best score (the first one seen
// on ties), sorts them by score descending with a stable sort, and truncates to k.
// Non-finite scores count as 0. An empty input or k <= 0 yields an empty, non-nil slice.
func Reconcile(raw []models.Match, k int) []models.Match {
	if len(raw) == 0 || k <= 0 {
		return []models.Match{}
	}

	byID := make(map[string]int, len(raw))
	out := make([]models.Match, 0, len(raw))
	for _, m := range raw {
		m.Score = utils.FiniteOr(m.Score, 0)
		if i, ok := byID[m.ID]; ok {
			if m.Score > out[i].Score {
				out[i] = m
			}
			continue
		}
		byID[m.ID] = len(out)
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}
