package retrieval

import (
	"math"
	"sort"

	"github.com/dshills/modality-router/internal/storage"
	"github.com/dshills/modality-router/pkg/types"
)

// quantile returns the p-quantile of values using linear interpolation
// between closest ranks. values need not be sorted.
func quantile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	p = math.Max(0, math.Min(1, p))
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// adaptiveCutoff is max(floor, quantile(pool, p))
func adaptiveCutoff(hits []storage.VectorResult, floor, p float64) float64 {
	sims := make([]float64, len(hits))
	for i, h := range hits {
		sims[i] = h.Similarity
	}
	return math.Max(floor, quantile(sims, p))
}

// applyCutoff drops dense hits below the per-query cutoff, or below the
// floor for their modality when that is higher. If nothing survives, the
// minKeep most similar hits with any signal at all are kept. hits must be
// sorted by descending similarity.
func applyCutoff(hits []storage.VectorResult, cutoff float64, modalityFloors map[types.Modality]float64, minKeep int) ([]storage.VectorResult, bool) {
	kept := make([]storage.VectorResult, 0, len(hits))
	for _, h := range hits {
		limit := cutoff
		if f, ok := modalityFloors[h.Modality]; ok && f > limit {
			limit = f
		}
		if h.Similarity >= limit {
			kept = append(kept, h)
		}
	}
	if len(kept) > 0 {
		return kept, false
	}

	for _, h := range hits {
		if len(kept) >= minKeep {
			break
		}
		if h.Similarity > 0 {
			kept = append(kept, h)
		}
	}
	return kept, len(kept) > 0
}
