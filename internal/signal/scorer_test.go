package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fvg-liquidity-bot/config"
	"fvg-liquidity-bot/internal/analysis"
	"fvg-liquidity-bot/internal/confluence"
)

func scoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		QualityWeight:   0.30,
		FreshnessWeight: 0.25,
		LocationWeight:  0.25,
		RRWeight:        0.20,
		MinConfidence:   0.60,
		MinRRRatio:      2.0,
		SLATRRatio:      1.5,
		TPRRRatio:       2.5,
	}
}

func TestNewScorerRejectsBadWeights(t *testing.T) {
	cfg := scoringConfig()
	cfg.RRWeight = 0.50
	_, err := NewScorer(cfg, 30, 0.01)
	assert.Error(t, err)
}

func TestScoreFVGPerfectSetup(t *testing.T) {
	scorer, err := NewScorer(scoringConfig(), 30, 0.01)
	require.NoError(t, err)

	// 1% gap, fresh, price at entry, 4:1 reward/risk: every component maxed.
	fvg := &analysis.FVG{UpperBound: 101, LowerBound: 100, FormedAtIndex: 50}
	anchor := &analysis.TimeframeAnalysis{CurrentPrice: 101, CurrentIndex: 50}
	sig := &Signal{EntryPrice: 101, RRRatio: 4.0}

	score := scorer.ScoreFVG(sig, fvg, anchor, &confluence.Result{})
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestScoreFVGComponentWeights(t *testing.T) {
	scorer, err := NewScorer(scoringConfig(), 30, 0.01)
	require.NoError(t, err)

	// Same setup but reward/risk of 2: only the RR component halves.
	fvg := &analysis.FVG{UpperBound: 101, LowerBound: 100, FormedAtIndex: 50}
	anchor := &analysis.TimeframeAnalysis{CurrentPrice: 101, CurrentIndex: 50}
	sig := &Signal{EntryPrice: 101, RRRatio: 2.0}

	score := scorer.ScoreFVG(sig, fvg, anchor, &confluence.Result{})
	assert.InDelta(t, 0.90, score, 1e-9)
}

func TestScoreFreshnessDecay(t *testing.T) {
	scorer, err := NewScorer(scoringConfig(), 30, 0.01)
	require.NoError(t, err)

	fvg := &analysis.FVG{UpperBound: 101, LowerBound: 100, FormedAtIndex: 20}
	// 30 bars old: the freshness component is fully decayed.
	anchor := &analysis.TimeframeAnalysis{CurrentPrice: 101, CurrentIndex: 50}
	sig := &Signal{EntryPrice: 101, RRRatio: 4.0}

	score := scorer.ScoreFVG(sig, fvg, anchor, &confluence.Result{})
	assert.InDelta(t, 0.75, score, 1e-9)
}

func TestScoreRRCappedAtFour(t *testing.T) {
	scorer, err := NewScorer(scoringConfig(), 30, 0.01)
	require.NoError(t, err)

	fvg := &analysis.FVG{UpperBound: 101, LowerBound: 100, FormedAtIndex: 50}
	anchor := &analysis.TimeframeAnalysis{CurrentPrice: 101, CurrentIndex: 50}

	at4 := scorer.ScoreFVG(&Signal{EntryPrice: 101, RRRatio: 4.0}, fvg, anchor, &confluence.Result{})
	at9 := scorer.ScoreFVG(&Signal{EntryPrice: 101, RRRatio: 9.0}, fvg, anchor, &confluence.Result{})
	assert.Equal(t, at4, at9)
}

func TestScoreSweepUsesZoneStrength(t *testing.T) {
	scorer, err := NewScorer(scoringConfig(), 30, 0.01)
	require.NoError(t, err)

	sweep := &analysis.SweepEvent{
		Zone:        analysis.LiquidityZone{Strength: 0.5},
		CandleIndex: 50,
	}
	anchor := &analysis.TimeframeAnalysis{CurrentPrice: 100, CurrentIndex: 50}
	sig := &Signal{EntryPrice: 100, RRRatio: 4.0}

	// quality 0.5 x 0.30 + freshness 1 x 0.25 + location 1 x 0.25 + rr 1 x 0.20
	score := scorer.ScoreSweep(sig, sweep, anchor, &confluence.Result{})
	assert.InDelta(t, 0.85, score, 1e-9)
}
