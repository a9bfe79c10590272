package analysis

import (
	"time"

	"fvg-liquidity-bot/internal/market"
)

// Timeframe represents different chart timeframes
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// Duration returns the bar length of a timeframe. Unknown timeframes sort
// last via a large duration.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return 365 * 24 * time.Hour
	}
}

// TimeframeAnalysis packages one cycle's detections for a single
// (symbol, timeframe) pair. It is rebuilt wholesale every cycle from the
// retained candle window; nothing carries over between cycles.
type TimeframeAnalysis struct {
	Symbol        string
	Timeframe     Timeframe
	FVGs          []FVG
	BuySideZones  []LiquidityZone
	SellSideZones []LiquidityZone
	Sweeps        []SweepEvent
	CurrentPrice  float64
	CurrentIndex  int
	ATR           float64
}

// Analyzer composes the FVG and liquidity detectors for one timeframe. It is
// stateless across cycles and carries no cross-timeframe knowledge.
type Analyzer struct {
	fvg       *FVGDetector
	liquidity *LiquidityDetector
	atrPeriod int
}

// NewAnalyzer creates a per-timeframe analyzer
func NewAnalyzer(fvg *FVGDetector, liquidity *LiquidityDetector) *Analyzer {
	return &Analyzer{
		fvg:       fvg,
		liquidity: liquidity,
		atrPeriod: 14,
	}
}

// Analyze runs both detectors over a candle window and packages the result.
// Short windows are tolerated; detectors simply return nothing.
func (a *Analyzer) Analyze(symbol string, timeframe Timeframe, candles []market.Candle) (*TimeframeAnalysis, error) {
	if err := market.ValidateSequence(candles); err != nil {
		return nil, err
	}

	analysis := &TimeframeAnalysis{
		Symbol:    symbol,
		Timeframe: timeframe,
	}
	if len(candles) == 0 {
		return analysis, nil
	}

	analysis.CurrentIndex = len(candles) - 1
	analysis.CurrentPrice = candles[len(candles)-1].Close
	analysis.ATR = ATR(candles, a.atrPeriod)

	analysis.FVGs = a.fvg.DetectFVGs(symbol, string(timeframe), candles)

	swings := a.liquidity.IdentifySwings(candles)
	buySide, sellSide := a.liquidity.IdentifyZones(swings)
	buySide = a.liquidity.ActiveZones(buySide, analysis.CurrentIndex)
	sellSide = a.liquidity.ActiveZones(sellSide, analysis.CurrentIndex)
	buySide = a.liquidity.TouchZones(candles, buySide)
	sellSide = a.liquidity.TouchZones(candles, sellSide)

	for i := range buySide {
		if ev, ok := a.liquidity.DetectSweep(candles, &buySide[i]); ok {
			analysis.Sweeps = append(analysis.Sweeps, ev)
		}
	}
	for i := range sellSide {
		if ev, ok := a.liquidity.DetectSweep(candles, &sellSide[i]); ok {
			analysis.Sweeps = append(analysis.Sweeps, ev)
		}
	}

	analysis.BuySideZones = buySide
	analysis.SellSideZones = sellSide
	return analysis, nil
}

// UnfilledFVGs returns the analysis' gaps matching a direction.
func (ta *TimeframeAnalysis) UnfilledFVGs(dir FVGDirection) []FVG {
	var out []FVG
	for _, f := range ta.FVGs {
		if !f.Filled && f.Direction == dir {
			out = append(out, f)
		}
	}
	return out
}

// ATR computes the average true range over the trailing period. Returns 0
// when the window is too short.
func ATR(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	start := len(candles) - period
	var sum float64
	for i := start; i < len(candles); i++ {
		c := candles[i]
		prevClose := candles[i-1].Close

		tr := c.High - c.Low
		if hc := abs(c.High - prevClose); hc > tr {
			tr = hc
		}
		if lc := abs(c.Low - prevClose); lc > tr {
			tr = lc
		}
		sum += tr
	}
	return sum / float64(period)
}
