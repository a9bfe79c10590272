package signal

import (
	"fmt"

	"fvg-liquidity-bot/config"
	"fvg-liquidity-bot/internal/analysis"
	"fvg-liquidity-bot/internal/confluence"
)

// rrCap bounds the reward/risk contribution; anything past 4:1 scores the same.
const rrCap = 4.0

// Scorer computes signal confidence from four weighted components: setup
// quality, freshness, price location and reward/risk. Weights must sum to 1.
type Scorer struct {
	qualityWeight   float64
	freshnessWeight float64
	locationWeight  float64
	rrWeight        float64
	maxAgeBars      int
	proximityRatio  float64
}

// NewScorer creates a scorer from scoring configuration
func NewScorer(cfg config.ScoringConfig, maxAgeBars int, proximityRatio float64) (*Scorer, error) {
	total := cfg.QualityWeight + cfg.FreshnessWeight + cfg.LocationWeight + cfg.RRWeight
	if total < 0.99 || total > 1.01 {
		return nil, fmt.Errorf("scoring weights must sum to 1.0, got %.2f", total)
	}
	if maxAgeBars <= 0 {
		maxAgeBars = 30
	}
	return &Scorer{
		qualityWeight:   cfg.QualityWeight,
		freshnessWeight: cfg.FreshnessWeight,
		locationWeight:  cfg.LocationWeight,
		rrWeight:        cfg.RRWeight,
		maxAgeBars:      maxAgeBars,
		proximityRatio:  proximityRatio,
	}, nil
}

// ScoreFVG scores a gap signal. Quality scales with gap size, a 1% gap is
// full quality.
func (sc *Scorer) ScoreFVG(sig *Signal, fvg *analysis.FVG, anchor *analysis.TimeframeAnalysis, result *confluence.Result) float64 {
	quality := clamp01(fvg.SizeRatio() / 0.01)
	freshness := sc.freshness(anchor.CurrentIndex - fvg.FormedAtIndex)
	location := sc.location(anchor.CurrentPrice, sig.EntryPrice)
	return sc.combine(quality, freshness, location, sig.RRRatio)
}

// ScoreSweep scores a sweep-reversal signal. Quality is the swept zone's
// accumulated strength.
func (sc *Scorer) ScoreSweep(sig *Signal, sweep *analysis.SweepEvent, anchor *analysis.TimeframeAnalysis, result *confluence.Result) float64 {
	quality := clamp01(sweep.Zone.Strength)
	freshness := sc.freshness(anchor.CurrentIndex - sweep.CandleIndex)
	location := sc.location(anchor.CurrentPrice, sig.EntryPrice)
	return sc.combine(quality, freshness, location, sig.RRRatio)
}

func (sc *Scorer) combine(quality, freshness, location, rr float64) float64 {
	if rr > rrCap {
		rr = rrCap
	}
	rrScore := rr / rrCap

	score := sc.qualityWeight*quality +
		sc.freshnessWeight*freshness +
		sc.locationWeight*location +
		sc.rrWeight*rrScore
	return clamp01(score)
}

// freshness decays linearly with age; a setup at the age limit scores 0.
func (sc *Scorer) freshness(ageBars int) float64 {
	if ageBars < 0 {
		ageBars = 0
	}
	return clamp01(1 - float64(ageBars)/float64(sc.maxAgeBars))
}

// location is 1 at the entry and decays to 0 at the proximity bound.
func (sc *Scorer) location(price, entry float64) float64 {
	if price <= 0 || sc.proximityRatio <= 0 {
		return 0
	}
	diff := price - entry
	if diff < 0 {
		diff = -diff
	}
	return clamp01(1 - diff/(price*sc.proximityRatio))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
