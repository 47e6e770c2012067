// Package rank orders scored leads for export.
package rank

import (
	"sort"

	"github.com/bioleads/lead-enrichment-pipeline/internal/lead"
)

// ByScore returns the leads sorted by score, highest first. The sort is
// stable so ties keep their input order and exports stay reproducible.
func ByScore(leads []lead.Scored) []lead.Scored {
	out := append([]lead.Scored(nil), leads...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score.Total > out[j].Score.Total
	})
	return out
}

// FilterMin drops leads scoring below min.
func FilterMin(leads []lead.Scored, min int) []lead.Scored {
	out := make([]lead.Scored, 0, len(leads))
	for _, l := range leads {
		if l.Score.Total >= min {
			out = append(out, l)
		}
	}
	return out
}

// Top returns the n best leads by score.
func Top(leads []lead.Scored, n int) []lead.Scored {
	ranked := ByScore(leads)
	if n < 0 {
		n = 0
	}
	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}
