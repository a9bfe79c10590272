package signal

import "sort"

// Ranker filters and orders trade candidates. Candidates below the confidence
// or reward/risk floor are excluded outright rather than down-ranked.
type Ranker struct {
	minConfidence float64
	minRRRatio    float64
}

// NewRanker creates a ranker with exclusion floors
func NewRanker(minConfidence, minRRRatio float64) *Ranker {
	return &Ranker{
		minConfidence: minConfidence,
		minRRRatio:    minRRRatio,
	}
}

// Rank drops candidates under the floors and sorts the rest by confidence
// descending, then reward/risk descending, then symbol ascending. The full
// key makes the order total, so equal-confidence candidates always come back
// in the same sequence. When limit is positive only the top candidates are
// returned.
func (r *Ranker) Rank(signals []Signal, limit int) []Signal {
	ranked := make([]Signal, 0, len(signals))
	for _, s := range signals {
		if s.Confidence < r.minConfidence {
			continue
		}
		if s.RRRatio < r.minRRRatio {
			continue
		}
		ranked = append(ranked, s)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		if ranked[i].RRRatio != ranked[j].RRRatio {
			return ranked[i].RRRatio > ranked[j].RRRatio
		}
		return ranked[i].Symbol < ranked[j].Symbol
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
