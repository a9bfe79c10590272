package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fvg-liquidity-bot/internal/analysis"
	"fvg-liquidity-bot/internal/confluence"
)

func testBuilder(t *testing.T) *Builder {
	t.Helper()
	scorer, err := NewScorer(scoringConfig(), 30, 0.01)
	require.NoError(t, err)
	return NewBuilder(scoringConfig(), 0.01, scorer)
}

func buyResult(fvg *analysis.FVG) *confluence.Result {
	return &confluence.Result{
		Symbol:                 "BTCUSDT",
		Verdict:                confluence.VerdictBuy,
		ConfluenceScore:        0.8,
		ContributingTimeframes: []analysis.Timeframe{analysis.TF15m, analysis.TF1h},
		PrimarySupportingFVG:   fvg,
	}
}

func TestBuildFVGBuySignal(t *testing.T) {
	builder := testBuilder(t)

	fvg := &analysis.FVG{
		ID:            "gap",
		Symbol:        "BTCUSDT",
		Timeframe:     "1h",
		Direction:     analysis.BullishFVG,
		UpperBound:    100.5,
		LowerBound:    99.5,
		FormedAtIndex: 48,
	}
	anchor := &analysis.TimeframeAnalysis{
		Symbol:       "BTCUSDT",
		Timeframe:    analysis.TF1h,
		CurrentPrice: 100.5,
		CurrentIndex: 50,
		ATR:          1.0,
		FVGs:         []analysis.FVG{*fvg},
	}

	signals := builder.Build(buyResult(fvg), anchor)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, DirectionBuy, sig.Direction)
	assert.Equal(t, SourceFVG, sig.Source)
	assert.Equal(t, 100.5, sig.EntryPrice)
	// Stop sits below the far boundary padded by 1.5 ATR
	assert.InDelta(t, 98.0, sig.StopLoss, 1e-9)
	// Target is 2.5x the risk above entry
	assert.InDelta(t, 100.5+2.5*2.5, sig.TakeProfit, 1e-9)
	assert.NoError(t, sig.Validate())
	assert.InDelta(t, 2.5, sig.RRRatio, 1e-9)
	assert.NotEmpty(t, sig.ID)
}

func TestBuildSkipsFarEntry(t *testing.T) {
	builder := testBuilder(t)

	fvg := &analysis.FVG{
		Direction:  analysis.BullishFVG,
		UpperBound: 95,
		LowerBound: 94,
	}
	// Price is 5% above the entry boundary: outside the 1% proximity band
	anchor := &analysis.TimeframeAnalysis{
		CurrentPrice: 100,
		CurrentIndex: 50,
		ATR:          1.0,
	}

	signals := builder.Build(buyResult(fvg), anchor)
	assert.Empty(t, signals)
}

func TestBuildNeutralVerdictYieldsNothing(t *testing.T) {
	builder := testBuilder(t)

	result := &confluence.Result{Symbol: "BTCUSDT", Verdict: confluence.VerdictNeutral}
	anchor := &analysis.TimeframeAnalysis{CurrentPrice: 100, ATR: 1.0}

	assert.Empty(t, builder.Build(result, anchor))
}

func TestBuildSweepSellSignal(t *testing.T) {
	builder := testBuilder(t)

	result := &confluence.Result{
		Symbol:                 "BTCUSDT",
		Verdict:                confluence.VerdictSell,
		ContributingTimeframes: []analysis.Timeframe{analysis.TF1h},
	}
	anchor := &analysis.TimeframeAnalysis{
		CurrentPrice: 99.6,
		CurrentIndex: 50,
		ATR:          1.0,
		Sweeps: []analysis.SweepEvent{{
			Zone:         analysis.LiquidityZone{Side: analysis.SellSide, PriceLevel: 100, Strength: 0.7},
			CandleIndex:  49,
			ExtremePrice: 100.4,
			ClosePrice:   99.6,
		}},
	}

	signals := builder.Build(result, anchor)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, DirectionSell, sig.Direction)
	assert.Equal(t, SourceSweep, sig.Source)
	assert.Equal(t, 99.6, sig.EntryPrice)
	// Stop above the sweep extreme, target 2 ATR below entry
	assert.InDelta(t, 100.4+1.5, sig.StopLoss, 1e-9)
	assert.InDelta(t, 99.6-2.0, sig.TakeProfit, 1e-9)
	assert.NoError(t, sig.Validate())
}

func TestBuildRequiresATR(t *testing.T) {
	builder := testBuilder(t)

	fvg := &analysis.FVG{Direction: analysis.BullishFVG, UpperBound: 100.5, LowerBound: 99.5}
	anchor := &analysis.TimeframeAnalysis{CurrentPrice: 100.5, CurrentIndex: 50, ATR: 0}

	assert.Empty(t, builder.Build(buyResult(fvg), anchor))
}

func TestSignalValidateOrdering(t *testing.T) {
	buy := Signal{ID: "b", Direction: DirectionBuy, EntryPrice: 100, StopLoss: 98, TakeProfit: 105}
	assert.NoError(t, buy.Validate())

	buy.StopLoss = 101
	assert.Error(t, buy.Validate())

	sell := Signal{ID: "s", Direction: DirectionSell, EntryPrice: 100, StopLoss: 102, TakeProfit: 95}
	assert.NoError(t, sell.Validate())

	sell.TakeProfit = 103
	assert.Error(t, sell.Validate())
}
