package analysis

import (
	"fmt"

	"fvg-liquidity-bot/internal/market"
)

// FVGDirection represents the direction of a Fair Value Gap
type FVGDirection string

const (
	BullishFVG FVGDirection = "bullish"
	BearishFVG FVGDirection = "bearish"
)

// FVG represents a Fair Value Gap in price action. UpperBound is always
// strictly above LowerBound regardless of direction.
type FVG struct {
	ID            string
	Symbol        string
	Timeframe     string
	Direction     FVGDirection
	UpperBound    float64
	LowerBound    float64
	FormedAtIndex int
	FormedAtTime  int64
	Filled        bool
	FilledAt      int64
}

// Size returns the gap height in price units.
func (f FVG) Size() float64 {
	return f.UpperBound - f.LowerBound
}

// SizeRatio returns the gap height as a fraction of the lower bound.
func (f FVG) SizeRatio() float64 {
	if f.LowerBound <= 0 {
		return 0
	}
	return f.Size() / f.LowerBound
}

// Midpoint returns the center of the gap.
func (f FVG) Midpoint() float64 {
	return (f.UpperBound + f.LowerBound) / 2
}

// FVGDetector detects Fair Value Gaps in candlestick data
type FVGDetector struct {
	minGapRatio        float64 // Minimum gap size as fraction of price
	maxAgeBars         int     // Gaps older than this are excluded
	requirePartialFill bool    // Entry requires a re-test into the gap
}

// NewFVGDetector creates a new FVG detector
func NewFVGDetector(minGapRatio float64, maxAgeBars int, requirePartialFill bool) *FVGDetector {
	if minGapRatio <= 0 {
		minGapRatio = 0.001
	}
	if maxAgeBars <= 0 {
		maxAgeBars = 30
	}
	return &FVGDetector{
		minGapRatio:        minGapRatio,
		maxAgeBars:         maxAgeBars,
		requirePartialFill: requirePartialFill,
	}
}

// DetectFVGs identifies the active Fair Value Gaps in the given candles.
// A gap forms on a 3-candle pattern: bullish when the third candle's low sits
// above the first candle's high, bearish when the third candle's high sits
// below the first candle's low. Gaps filled by a later candle fully covering
// their range, or older than maxAgeBars, are excluded from the result.
// Output order follows formation index; identical input and configuration
// always produce identical output.
func (fd *FVGDetector) DetectFVGs(symbol, timeframe string, candles []market.Candle) []FVG {
	if len(candles) < 3 {
		return nil
	}

	lastIndex := len(candles) - 1
	var fvgs []FVG

	for i := 0; i < len(candles)-2; i++ {
		c1 := candles[i]
		c2 := candles[i+1] // middle candle creates the imbalance
		c3 := candles[i+2]

		formedAt := i + 1
		if lastIndex-formedAt > fd.maxAgeBars {
			continue
		}

		// Bullish: gap between c1.High and c3.Low
		if c3.Low > c1.High {
			fvg := FVG{
				Symbol:        symbol,
				Timeframe:     timeframe,
				Direction:     BullishFVG,
				UpperBound:    c3.Low,
				LowerBound:    c1.High,
				FormedAtIndex: formedAt,
				FormedAtTime:  c2.CloseTime,
			}
			if fvg.SizeRatio() >= fd.minGapRatio {
				fvg.ID = fvgID(symbol, timeframe, formedAt, fvg.Direction)
				markFill(&fvg, candles[i+3:])
				if !fvg.Filled {
					fvgs = append(fvgs, fvg)
				}
			}
		}

		// Bearish: gap between c3.High and c1.Low
		if c3.High < c1.Low {
			fvg := FVG{
				Symbol:        symbol,
				Timeframe:     timeframe,
				Direction:     BearishFVG,
				UpperBound:    c1.Low,
				LowerBound:    c3.High,
				FormedAtIndex: formedAt,
				FormedAtTime:  c2.CloseTime,
			}
			if fvg.SizeRatio() >= fd.minGapRatio {
				fvg.ID = fvgID(symbol, timeframe, formedAt, fvg.Direction)
				markFill(&fvg, candles[i+3:])
				if !fvg.Filled {
					fvgs = append(fvgs, fvg)
				}
			}
		}
	}

	return fvgs
}

// markFill flags the gap filled once any subsequent candle's range fully
// covers it. The flag is one-way.
func markFill(fvg *FVG, later []market.Candle) {
	for _, c := range later {
		if c.Low <= fvg.LowerBound && c.High >= fvg.UpperBound {
			fvg.Filled = true
			fvg.FilledAt = c.CloseTime
			return
		}
	}
}

// ValidateFVG reports whether a gap is still a tradeable target at the
// current price. Filled and aged-out gaps are invalid; a gap the price has
// already traded through is invalid; with requirePartialFill set, a gap the
// price has not yet re-tested is also invalid.
func (fd *FVGDetector) ValidateFVG(fvg FVG, currentPrice float64, currentIndex int) bool {
	if fvg.Filled {
		return false
	}
	if currentIndex-fvg.FormedAtIndex > fd.maxAgeBars {
		return false
	}

	switch fvg.Direction {
	case BullishFVG:
		if currentPrice < fvg.LowerBound {
			return false // traded through the gap
		}
		if fd.requirePartialFill && currentPrice > fvg.UpperBound {
			return false // awaiting a re-test into the gap
		}
	case BearishFVG:
		if currentPrice > fvg.UpperBound {
			return false
		}
		if fd.requirePartialFill && currentPrice < fvg.LowerBound {
			return false
		}
	}
	return true
}

// IsPriceInFVG checks if current price is within the gap bounds.
func (fd *FVGDetector) IsPriceInFVG(price float64, fvg FVG) bool {
	return price >= fvg.LowerBound && price <= fvg.UpperBound
}

// IsPriceNearFVG checks if price is within proximityRatio of the gap.
func (fd *FVGDetector) IsPriceNearFVG(price float64, fvg FVG, proximityRatio float64) bool {
	if fd.IsPriceInFVG(price, fvg) {
		return true
	}
	threshold := fvg.Midpoint() * proximityRatio
	return abs(price-fvg.UpperBound) <= threshold || abs(price-fvg.LowerBound) <= threshold
}

func fvgID(symbol, timeframe string, index int, dir FVGDirection) string {
	return fmt.Sprintf("%s_%s_%d_%s", symbol, timeframe, index, dir)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
