package search

import (
	"github.com/poiesic/ragstore/core"
)

// exactTolerance is how far a score may sit from the minimum distance and
// still count as an exact match.
const exactTolerance = 1e-6

// IsExactMatch reports whether score is the minimum distance of strategy.
func IsExactMatch(score float32, strategy core.DistanceStrategy) bool {
	d := score - strategy.MinDistance()
	return d <= exactTolerance && d >= -exactTolerance
}

// FilterByScore keeps exact matches and hits scoring below threshold. If
// no hit is an exact match it keeps hits below threshold or above 1.0
// instead. Order is preserved.
func FilterByScore(hits []core.SearchHit, threshold float32, strategy core.DistanceStrategy) []core.SearchHit {
	exact := false
	for _, h := range hits {
		if IsExactMatch(h.Score, strategy) {
			exact = true
			break
		}
	}

	kept := make([]core.SearchHit, 0, len(hits))
	for _, h := range hits {
		var keep bool
		if exact {
			keep = IsExactMatch(h.Score, strategy) || h.Score < threshold
		} else {
			keep = h.Score < threshold || h.Score > 1.0
		}
		if keep {
			kept = append(kept, h)
		}
	}
	return kept
}
