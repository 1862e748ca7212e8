package similarity

import (
	"slices"

	"vismatch/metric"
	"vismatch/types"
)

// Rank computes the distance from query to every entry and sorts ascending.
// Entries at equal distance keep their list order. A length mismatch between
// query and any entry fails the whole ranking
func Rank(m metric.BoundedMetric, query types.BitVector, entries types.ProjectHashList) ([]types.DistEntry, error) {
	out := make([]types.DistEntry, len(entries))
	for i, e := range entries {
		d, err := m.Dist(query, e.Hash)
		if err != nil {
			return nil, err
		}
		score, err := m.Normalize(d)
		if err != nil {
			return nil, err
		}
		out[i] = types.DistEntry{Image: e.Image, Distance: d, Score: score}
	}
	SortStable(out)
	return out, nil
}

// SortStable sorts entries by distance, preserving the order of ties
func SortStable(entries []types.DistEntry) {
	slices.SortStableFunc(entries, types.CompareDist)
}

// TopK returns the k closest entries of an already ranked sequence
func TopK(ranked []types.DistEntry, k int) ([]types.DistEntry, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	return slices.Clone(ranked[:min(k, len(ranked))]), nil
}

// Within returns the prefix of ranked whose normalized score is at most threshold
func Within(ranked []types.DistEntry, threshold float64) []types.DistEntry {
	i := 0
	for i < len(ranked) && ranked[i].Score <= threshold {
		i++
	}
	return slices.Clone(ranked[:i])
}
