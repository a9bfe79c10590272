package confluence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fvg-liquidity-bot/internal/analysis"
)

func bullishAnalysis(tf analysis.Timeframe, price float64) *analysis.TimeframeAnalysis {
	return &analysis.TimeframeAnalysis{
		Symbol:       "BTCUSDT",
		Timeframe:    tf,
		CurrentPrice: price,
		CurrentIndex: 50,
		ATR:          1.0,
		FVGs: []analysis.FVG{{
			ID:            "gap-" + string(tf),
			Symbol:        "BTCUSDT",
			Timeframe:     string(tf),
			Direction:     analysis.BullishFVG,
			UpperBound:    price + 0.2,
			LowerBound:    price - 0.2,
			FormedAtIndex: 45,
		}},
	}
}

func bearishAnalysis(tf analysis.Timeframe, price float64) *analysis.TimeframeAnalysis {
	return &analysis.TimeframeAnalysis{
		Symbol:       "BTCUSDT",
		Timeframe:    tf,
		CurrentPrice: price,
		CurrentIndex: 50,
		ATR:          1.0,
		SellSideZones: []analysis.LiquidityZone{{
			Side:       analysis.SellSide,
			PriceLevel: price + 0.3,
			Strength:   0.7,
			TouchCount: 2,
		}},
	}
}

func neutralAnalysis(tf analysis.Timeframe, price float64) *analysis.TimeframeAnalysis {
	return &analysis.TimeframeAnalysis{
		Symbol:       "BTCUSDT",
		Timeframe:    tf,
		CurrentPrice: price,
		CurrentIndex: 50,
		ATR:          1.0,
	}
}

func defaultWeights() map[string]float64 {
	return map[string]float64{"5m": 1.0, "15m": 2.0, "1h": 3.0}
}

func TestConfluenceBelowThresholdIsNeutral(t *testing.T) {
	// Two fast timeframes vote buy (weight 1+2), the slow one is neutral:
	// weighted score 3/6 = 0.5 stays under the 0.6 threshold.
	engine := NewEngine(defaultWeights(), 2, 0.6, 0.01)

	result := engine.FindConfluence("BTCUSDT", map[analysis.Timeframe]*analysis.TimeframeAnalysis{
		analysis.TF5m:  bullishAnalysis(analysis.TF5m, 100),
		analysis.TF15m: bullishAnalysis(analysis.TF15m, 100),
		analysis.TF1h:  neutralAnalysis(analysis.TF1h, 100),
	})

	assert.Equal(t, VerdictNeutral, result.Verdict)
	assert.InDelta(t, 0.5, result.ConfluenceScore, 1e-9)
	assert.Len(t, result.ContributingTimeframes, 2)
}

func TestConfluenceBuyVerdict(t *testing.T) {
	// The two heavy timeframes vote buy: score 5/6 with 2 agreeing.
	engine := NewEngine(defaultWeights(), 2, 0.6, 0.01)

	result := engine.FindConfluence("BTCUSDT", map[analysis.Timeframe]*analysis.TimeframeAnalysis{
		analysis.TF5m:  neutralAnalysis(analysis.TF5m, 100),
		analysis.TF15m: bullishAnalysis(analysis.TF15m, 100),
		analysis.TF1h:  bullishAnalysis(analysis.TF1h, 100),
	})

	require.Equal(t, VerdictBuy, result.Verdict)
	assert.InDelta(t, 5.0/6.0, result.ConfluenceScore, 1e-9)
	assert.Equal(t, []analysis.Timeframe{analysis.TF15m, analysis.TF1h}, result.ContributingTimeframes)

	// Supporting evidence comes from the longest contributing timeframe
	require.NotNil(t, result.PrimarySupportingFVG)
	assert.Equal(t, "gap-1h", result.PrimarySupportingFVG.ID)
}

func TestConfluenceTieIsNeutral(t *testing.T) {
	weights := map[string]float64{"5m": 2.0, "15m": 2.0}
	engine := NewEngine(weights, 1, 0.4, 0.01)

	result := engine.FindConfluence("BTCUSDT", map[analysis.Timeframe]*analysis.TimeframeAnalysis{
		analysis.TF5m:  bullishAnalysis(analysis.TF5m, 100),
		analysis.TF15m: bearishAnalysis(analysis.TF15m, 100),
	})

	assert.Equal(t, VerdictNeutral, result.Verdict)
}

func TestConfluenceMinCountGate(t *testing.T) {
	// Only one timeframe agrees; even a perfect score cannot pass min count 2.
	engine := NewEngine(map[string]float64{"1h": 3.0}, 2, 0.6, 0.01)

	result := engine.FindConfluence("BTCUSDT", map[analysis.Timeframe]*analysis.TimeframeAnalysis{
		analysis.TF1h: bullishAnalysis(analysis.TF1h, 100),
	})

	assert.Equal(t, VerdictNeutral, result.Verdict)
	assert.InDelta(t, 1.0, result.ConfluenceScore, 1e-9)
}

func TestConfluenceIgnoresFarEvidence(t *testing.T) {
	engine := NewEngine(defaultWeights(), 1, 0.4, 0.01)

	// Gap sits 5% away from price; with 1% proximity it casts no vote.
	far := bullishAnalysis(analysis.TF1h, 100)
	far.FVGs[0].UpperBound = 105.2
	far.FVGs[0].LowerBound = 104.8

	result := engine.FindConfluence("BTCUSDT", map[analysis.Timeframe]*analysis.TimeframeAnalysis{
		analysis.TF1h: far,
	})

	assert.Equal(t, VerdictNeutral, result.Verdict)
}

func TestConfluenceSweptZonesCastNoVote(t *testing.T) {
	engine := NewEngine(defaultWeights(), 1, 0.4, 0.01)

	swept := bearishAnalysis(analysis.TF1h, 100)
	swept.SellSideZones[0].Swept = true

	result := engine.FindConfluence("BTCUSDT", map[analysis.Timeframe]*analysis.TimeframeAnalysis{
		analysis.TF1h: swept,
	})

	assert.Equal(t, VerdictNeutral, result.Verdict)
}

func TestConfluenceDeterministicAcrossCalls(t *testing.T) {
	engine := NewEngine(defaultWeights(), 2, 0.6, 0.01)
	analyses := map[analysis.Timeframe]*analysis.TimeframeAnalysis{
		analysis.TF5m:  bullishAnalysis(analysis.TF5m, 100),
		analysis.TF15m: bullishAnalysis(analysis.TF15m, 100),
		analysis.TF1h:  bullishAnalysis(analysis.TF1h, 100),
	}

	first := engine.FindConfluence("BTCUSDT", analyses)
	for i := 0; i < 20; i++ {
		again := engine.FindConfluence("BTCUSDT", analyses)
		require.Equal(t, first.Verdict, again.Verdict)
		require.Equal(t, first.ConfluenceScore, again.ConfluenceScore)
		require.Equal(t, first.ContributingTimeframes, again.ContributingTimeframes)
	}
}

func TestConfluenceEmptyInput(t *testing.T) {
	engine := NewEngine(defaultWeights(), 2, 0.6, 0.01)
	result := engine.FindConfluence("BTCUSDT", nil)
	assert.Equal(t, VerdictNeutral, result.Verdict)
	assert.Zero(t, result.ConfluenceScore)
}
