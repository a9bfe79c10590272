package analysis

import (
	"fvg-liquidity-bot/internal/market"
)

// SwingKind distinguishes swing highs from swing lows
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingPoint is a local price extremum over a symmetric candle window.
type SwingPoint struct {
	Kind  SwingKind
	Price float64
	Time  int64
	Index int
}

// ZoneSide identifies which side of price a liquidity zone sits on.
// Buy-side zones form at swing lows (resting stops below price); sell-side
// zones form at swing highs.
type ZoneSide string

const (
	BuySide  ZoneSide = "buy-side"
	SellSide ZoneSide = "sell-side"
)

// LiquidityZone is a price level where resting stop orders are inferred to
// cluster. Swept is a terminal, one-way flag.
type LiquidityZone struct {
	Side         ZoneSide
	PriceLevel   float64
	Strength     float64 // 0..1
	TouchCount   int
	Swept        bool
	SweptAt      int64
	CreatedAt    int64
	CreatedIndex int
}

// SweepEvent records a confirmed stop-hunt through a liquidity zone.
type SweepEvent struct {
	Zone        LiquidityZone
	CandleIndex int
	Time        int64
	// ExtremePrice is the intrabar breach extreme (low for buy-side,
	// high for sell-side).
	ExtremePrice float64
	ClosePrice   float64
}

// LiquidityDetector identifies swing points, liquidity zones and sweep
// events in candlestick data
type LiquidityDetector struct {
	swingLookback    int     // Extremum window, bars per side
	minSwingsBetween int     // Swings required between same-side zones
	zoneWidthRatio   float64 // Cluster width as fraction of the level
	sweepThreshold   float64 // Intrabar breach beyond the level
	sweepRetreat     float64 // Close back across the level
	maxSweepAge      int     // Bars scanned for a confirming close
	maxZoneAge       int     // Bars before an unswept zone ages out (0 = window length)
}

// NewLiquidityDetector creates a new liquidity detector
func NewLiquidityDetector(swingLookback, minSwingsBetween int, zoneWidthRatio, sweepThreshold, sweepRetreat float64, maxSweepAge, maxZoneAge int) *LiquidityDetector {
	if swingLookback <= 0 {
		swingLookback = 2
	}
	if maxSweepAge <= 0 {
		maxSweepAge = 10
	}
	return &LiquidityDetector{
		swingLookback:    swingLookback,
		minSwingsBetween: minSwingsBetween,
		zoneWidthRatio:   zoneWidthRatio,
		sweepThreshold:   sweepThreshold,
		sweepRetreat:     sweepRetreat,
		maxSweepAge:      maxSweepAge,
		maxZoneAge:       maxZoneAge,
	}
}

// IdentifySwings returns the swing highs and lows of the window, ordered by
// candle index. A swing is a strict extremum against swingLookback bars on
// each side.
func (ld *LiquidityDetector) IdentifySwings(candles []market.Candle) []SwingPoint {
	n := ld.swingLookback
	if len(candles) < 2*n+1 {
		return nil
	}

	var swings []SwingPoint
	for i := n; i < len(candles)-n; i++ {
		c := candles[i]

		isHigh, isLow := true, true
		for j := i - n; j <= i+n; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= c.High {
				isHigh = false
			}
			if candles[j].Low <= c.Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}

		if isHigh {
			swings = append(swings, SwingPoint{Kind: SwingHigh, Price: c.High, Time: c.CloseTime, Index: i})
		}
		if isLow {
			swings = append(swings, SwingPoint{Kind: SwingLow, Price: c.Low, Time: c.CloseTime, Index: i})
		}
	}
	return swings
}

// IdentifyZones builds buy-side and sell-side liquidity zones from swing
// points. Swings at levels within zoneWidthRatio of an existing zone of the
// same side merge into it, raising its touch count and strength. A fresh
// zone is only opened once minSwingsBetween swings have passed since the
// last zone of that side, which keeps near-duplicate levels from clustering.
func (ld *LiquidityDetector) IdentifyZones(swings []SwingPoint) (buySide, sellSide []LiquidityZone) {
	lastZoneSwing := map[ZoneSide]int{BuySide: -1, SellSide: -1}

	for seq, swing := range swings {
		side := BuySide
		if swing.Kind == SwingHigh {
			side = SellSide
		}

		zones := &buySide
		if side == SellSide {
			zones = &sellSide
		}

		// Merge into an existing level if close enough.
		merged := false
		for i := range *zones {
			z := &(*zones)[i]
			if abs(z.PriceLevel-swing.Price) <= z.PriceLevel*ld.zoneWidthRatio {
				z.TouchCount++
				z.Strength = zoneStrength(z.TouchCount)
				merged = true
				break
			}
		}
		if merged {
			continue
		}

		if last := lastZoneSwing[side]; last >= 0 && seq-last < ld.minSwingsBetween {
			continue
		}

		*zones = append(*zones, LiquidityZone{
			Side:         side,
			PriceLevel:   swing.Price,
			Strength:     zoneStrength(1),
			TouchCount:   1,
			CreatedAt:    swing.Time,
			CreatedIndex: swing.Index,
		})
		lastZoneSwing[side] = seq
	}

	return buySide, sellSide
}

// ActiveZones filters out zones older than the configured zone age. Unswept
// zones inside the bound stay eligible indefinitely; that persistence is the
// intended liquidity-tracking behavior, bounded only by maxZoneAge.
func (ld *LiquidityDetector) ActiveZones(zones []LiquidityZone, currentIndex int) []LiquidityZone {
	maxAge := ld.maxZoneAge
	if maxAge <= 0 {
		return zones
	}

	var active []LiquidityZone
	for _, z := range zones {
		if currentIndex-z.CreatedIndex <= maxAge {
			active = append(active, z)
		}
	}
	return active
}

// DetectSweep checks whether a zone has been swept within the last
// maxSweepAge bars: the bar breaches the level by at least sweepThreshold
// intrabar and closes back across the level by at least sweepRetreat. On
// confirmation the zone's Swept flag is set (terminal) and the event is
// returned. A zone whose level is breached but never reclaimed stays
// eligible; it only drops out once it ages past the candle window.
func (ld *LiquidityDetector) DetectSweep(candles []market.Candle, zone *LiquidityZone) (SweepEvent, bool) {
	if zone.Swept || len(candles) == 0 {
		return SweepEvent{}, false
	}

	start := len(candles) - ld.maxSweepAge
	if start < 0 {
		start = 0
	}
	if zone.CreatedIndex+1 > start {
		start = zone.CreatedIndex + 1
	}

	level := zone.PriceLevel
	for i := start; i < len(candles); i++ {
		c := candles[i]

		if zone.Side == BuySide {
			breached := c.Low <= level*(1-ld.sweepThreshold)
			reclaimed := c.Close >= level*(1+ld.sweepRetreat)
			if breached && reclaimed {
				zone.Swept = true
				zone.SweptAt = c.CloseTime
				return SweepEvent{Zone: *zone, CandleIndex: i, Time: c.CloseTime, ExtremePrice: c.Low, ClosePrice: c.Close}, true
			}
		} else {
			breached := c.High >= level*(1+ld.sweepThreshold)
			reclaimed := c.Close <= level*(1-ld.sweepRetreat)
			if breached && reclaimed {
				zone.Swept = true
				zone.SweptAt = c.CloseTime
				return SweepEvent{Zone: *zone, CandleIndex: i, Time: c.CloseTime, ExtremePrice: c.High, ClosePrice: c.Close}, true
			}
		}
	}
	return SweepEvent{}, false
}

// TouchZones increments the touch count of zones the price has revisited
// without sweeping, working on the most recent bar only.
func (ld *LiquidityDetector) TouchZones(candles []market.Candle, zones []LiquidityZone) []LiquidityZone {
	if len(candles) == 0 {
		return zones
	}
	last := candles[len(candles)-1]

	for i := range zones {
		z := &zones[i]
		if z.Swept {
			continue
		}
		width := z.PriceLevel * ld.zoneWidthRatio
		if last.Low <= z.PriceLevel+width && last.High >= z.PriceLevel-width {
			z.TouchCount++
			z.Strength = zoneStrength(z.TouchCount)
		}
	}
	return zones
}

// zoneStrength maps repeated visits of a level into a bounded strength.
func zoneStrength(touches int) float64 {
	s := 0.3 + 0.2*float64(touches)
	if s > 1.0 {
		s = 1.0
	}
	return s
}
