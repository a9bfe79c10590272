package confluence

import (
	"fmt"
	"sort"

	"fvg-liquidity-bot/internal/analysis"
)

// Verdict is the fused directional call across timeframes
type Verdict string

const (
	VerdictBuy     Verdict = "buy"
	VerdictSell    Verdict = "sell"
	VerdictNeutral Verdict = "neutral"
)

// Result represents the fused multi-timeframe view of one symbol. It is
// recomputed every cycle and carries no persisted identity.
type Result struct {
	Symbol                 string
	Verdict                Verdict
	ConfluenceScore        float64 // 0..1
	ContributingTimeframes []analysis.Timeframe
	PrimarySupportingFVG   *analysis.FVG
	PrimarySupportingZone  *analysis.LiquidityZone
	Reasoning              []string
}

// Engine fuses per-timeframe analyses into a single weighted verdict
type Engine struct {
	weights            map[string]float64
	minConfluenceCount int
	threshold          float64
	proximityRatio     float64
}

// NewEngine creates a confluence engine with the given timeframe weights
func NewEngine(weights map[string]float64, minConfluenceCount int, threshold, proximityRatio float64) *Engine {
	if threshold <= 0 {
		threshold = 0.6
	}
	if minConfluenceCount <= 0 {
		minConfluenceCount = 2
	}
	return &Engine{
		weights:            weights,
		minConfluenceCount: minConfluenceCount,
		threshold:          threshold,
		proximityRatio:     proximityRatio,
	}
}

// FindConfluence derives a directional vote per timeframe and fuses the votes
// into a weighted verdict. Aggregation always walks timeframes sorted by
// ascending duration, so the map's iteration order never influences the
// outcome. An exact tie between buy and sell weight resolves to neutral.
func (e *Engine) FindConfluence(symbol string, analyses map[analysis.Timeframe]*analysis.TimeframeAnalysis) *Result {
	result := &Result{
		Symbol:  symbol,
		Verdict: VerdictNeutral,
	}
	if len(analyses) == 0 {
		return result
	}

	timeframes := make([]analysis.Timeframe, 0, len(analyses))
	for tf := range analyses {
		timeframes = append(timeframes, tf)
	}
	sort.Slice(timeframes, func(i, j int) bool {
		di, dj := timeframes[i].Duration(), timeframes[j].Duration()
		if di != dj {
			return di < dj
		}
		return timeframes[i] < timeframes[j]
	})

	var totalWeight, buyWeight, sellWeight float64
	votes := make(map[analysis.Timeframe]Verdict, len(timeframes))

	for _, tf := range timeframes {
		ta := analyses[tf]
		if ta == nil {
			continue
		}
		weight := e.weightFor(tf)
		totalWeight += weight

		vote := e.vote(ta)
		votes[tf] = vote
		switch vote {
		case VerdictBuy:
			buyWeight += weight
		case VerdictSell:
			sellWeight += weight
		}
	}

	if totalWeight == 0 || buyWeight == sellWeight {
		return result
	}

	majority := VerdictBuy
	majorityWeight := buyWeight
	if sellWeight > buyWeight {
		majority = VerdictSell
		majorityWeight = sellWeight
	}

	var contributing []analysis.Timeframe
	for _, tf := range timeframes {
		if votes[tf] == majority {
			contributing = append(contributing, tf)
		}
	}

	score := majorityWeight / totalWeight
	result.ConfluenceScore = score
	result.ContributingTimeframes = contributing

	if len(contributing) < e.minConfluenceCount || score < e.threshold {
		result.Reasoning = append(result.Reasoning,
			fmt.Sprintf("insufficient confluence: %d timeframes agree, weighted score %.2f", len(contributing), score))
		return result
	}

	result.Verdict = majority
	result.Reasoning = append(result.Reasoning,
		fmt.Sprintf("%d timeframes vote %s, weighted score %.2f", len(contributing), majority, score))

	// Supporting evidence is taken from the longest contributing timeframe:
	// the slowest chart anchors the setup.
	anchor := analyses[contributing[len(contributing)-1]]
	result.PrimarySupportingFVG = e.primaryFVG(anchor, majority)
	result.PrimarySupportingZone = e.primaryZone(anchor, majority)

	return result
}

// vote derives one timeframe's directional opinion. Bullish evidence is an
// unfilled bullish FVG or an unswept buy-side zone near the current price;
// bearish evidence mirrors it. The richer side wins, equal evidence is
// neutral.
func (e *Engine) vote(ta *analysis.TimeframeAnalysis) Verdict {
	price := ta.CurrentPrice
	if price <= 0 {
		return VerdictNeutral
	}

	var bullish, bearish int
	for _, f := range ta.FVGs {
		if f.Filled || !e.nearPrice(price, f.Midpoint()) {
			continue
		}
		if f.Direction == analysis.BullishFVG {
			bullish++
		} else {
			bearish++
		}
	}
	for _, z := range ta.BuySideZones {
		if !z.Swept && e.nearPrice(price, z.PriceLevel) {
			bullish++
		}
	}
	for _, z := range ta.SellSideZones {
		if !z.Swept && e.nearPrice(price, z.PriceLevel) {
			bearish++
		}
	}

	switch {
	case bullish > bearish:
		return VerdictBuy
	case bearish > bullish:
		return VerdictSell
	default:
		return VerdictNeutral
	}
}

func (e *Engine) nearPrice(price, level float64) bool {
	if price <= 0 {
		return false
	}
	diff := price - level
	if diff < 0 {
		diff = -diff
	}
	return diff <= price*e.proximityRatio
}

// primaryFVG picks the anchor timeframe's largest matching gap.
func (e *Engine) primaryFVG(ta *analysis.TimeframeAnalysis, v Verdict) *analysis.FVG {
	dir := analysis.BullishFVG
	if v == VerdictSell {
		dir = analysis.BearishFVG
	}

	var best *analysis.FVG
	for i := range ta.FVGs {
		f := &ta.FVGs[i]
		if f.Filled || f.Direction != dir {
			continue
		}
		if best == nil || f.Size() > best.Size() {
			best = f
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// primaryZone picks the anchor timeframe's strongest unswept zone on the
// verdict's side.
func (e *Engine) primaryZone(ta *analysis.TimeframeAnalysis, v Verdict) *analysis.LiquidityZone {
	zones := ta.BuySideZones
	if v == VerdictSell {
		zones = ta.SellSideZones
	}

	var best *analysis.LiquidityZone
	for i := range zones {
		z := &zones[i]
		if z.Swept {
			continue
		}
		if best == nil || z.Strength > best.Strength {
			best = z
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

func (e *Engine) weightFor(tf analysis.Timeframe) float64 {
	if w, ok := e.weights[string(tf)]; ok {
		return w
	}
	return 1.0
}
