package signal

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"fvg-liquidity-bot/config"
	"fvg-liquidity-bot/internal/analysis"
	"fvg-liquidity-bot/internal/confluence"
)

// Builder turns confluence results into fully-priced trade candidates. Stop
// and target geometry is anchored on market structure and padded by ATR, so
// the same setup yields wider stops in volatile conditions.
type Builder struct {
	slATRRatio     float64
	tpRRRatio      float64
	sweepTPATR     float64
	proximityRatio float64
	scorer         *Scorer
}

// NewBuilder creates a signal builder from scoring configuration
func NewBuilder(cfg config.ScoringConfig, proximityRatio float64, scorer *Scorer) *Builder {
	return &Builder{
		slATRRatio:     cfg.SLATRRatio,
		tpRRRatio:      cfg.TPRRRatio,
		sweepTPATR:     2.0,
		proximityRatio: proximityRatio,
		scorer:         scorer,
	}
}

// Build produces the signals a confluence result supports: one from its
// primary gap when price sits close enough to the entry boundary, and one
// from a fresh sweep in the verdict's direction. A neutral verdict yields
// nothing. Every returned signal passes Validate.
func (b *Builder) Build(result *confluence.Result, anchor *analysis.TimeframeAnalysis) []Signal {
	if result == nil || result.Verdict == confluence.VerdictNeutral || anchor == nil {
		return nil
	}
	if anchor.ATR <= 0 || anchor.CurrentPrice <= 0 {
		return nil
	}

	var signals []Signal
	if sig, ok := b.fromFVG(result, anchor); ok {
		signals = append(signals, sig)
	}
	if sig, ok := b.fromSweep(result, anchor); ok {
		signals = append(signals, sig)
	}
	return signals
}

// fromFVG prices an entry at the gap boundary facing current price, a stop
// beyond the far boundary padded by ATR, and a target at a fixed multiple of
// the risk.
func (b *Builder) fromFVG(result *confluence.Result, anchor *analysis.TimeframeAnalysis) (Signal, bool) {
	fvg := result.PrimarySupportingFVG
	if fvg == nil || fvg.Filled {
		return Signal{}, false
	}

	price := anchor.CurrentPrice
	atr := anchor.ATR

	var entry, stop, target float64
	var dir Direction
	if result.Verdict == confluence.VerdictBuy {
		if fvg.Direction != analysis.BullishFVG {
			return Signal{}, false
		}
		dir = DirectionBuy
		entry = fvg.UpperBound
		stop = fvg.LowerBound - atr*b.slATRRatio
		target = entry + (entry-stop)*b.tpRRRatio
	} else {
		if fvg.Direction != analysis.BearishFVG {
			return Signal{}, false
		}
		dir = DirectionSell
		entry = fvg.LowerBound
		stop = fvg.UpperBound + atr*b.slATRRatio
		target = entry - (stop-entry)*b.tpRRRatio
	}

	if !withinRatio(price, entry, b.proximityRatio) {
		return Signal{}, false
	}
	if target <= 0 || stop <= 0 {
		return Signal{}, false
	}

	sig := Signal{
		ID:         uuid.New().String(),
		Symbol:     result.Symbol,
		Direction:  dir,
		Source:     SourceFVG,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
		Timeframes: result.ContributingTimeframes,
		CreatedAt:  time.Now().UnixMilli(),
		Reasoning: append([]string{
			fmt.Sprintf("%s gap %.8f-%.8f on %s", fvg.Direction, fvg.LowerBound, fvg.UpperBound, fvg.Timeframe),
		}, result.Reasoning...),
	}
	sig.RRRatio = rrRatio(&sig)
	sig.Confidence = b.scorer.ScoreFVG(&sig, fvg, anchor, result)

	if err := sig.Validate(); err != nil {
		return Signal{}, false
	}
	return sig, true
}

// fromSweep prices a reversal off the most recent sweep in the verdict's
// direction: entry at the reclaim close, stop beyond the sweep extreme, and
// an ATR-multiple target. A swept buy-side zone implies a long.
func (b *Builder) fromSweep(result *confluence.Result, anchor *analysis.TimeframeAnalysis) (Signal, bool) {
	wantSide := analysis.BuySide
	if result.Verdict == confluence.VerdictSell {
		wantSide = analysis.SellSide
	}

	var sweep *analysis.SweepEvent
	for i := range anchor.Sweeps {
		ev := &anchor.Sweeps[i]
		if ev.Zone.Side != wantSide {
			continue
		}
		if sweep == nil || ev.CandleIndex > sweep.CandleIndex {
			sweep = ev
		}
	}
	if sweep == nil {
		return Signal{}, false
	}

	atr := anchor.ATR
	var entry, stop, target float64
	var dir Direction
	if result.Verdict == confluence.VerdictBuy {
		dir = DirectionBuy
		entry = sweep.ClosePrice
		stop = sweep.ExtremePrice - atr*b.slATRRatio
		target = entry + atr*b.sweepTPATR
	} else {
		dir = DirectionSell
		entry = sweep.ClosePrice
		stop = sweep.ExtremePrice + atr*b.slATRRatio
		target = entry - atr*b.sweepTPATR
	}
	if target <= 0 || stop <= 0 {
		return Signal{}, false
	}

	sig := Signal{
		ID:         uuid.New().String(),
		Symbol:     result.Symbol,
		Direction:  dir,
		Source:     SourceSweep,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
		Timeframes: result.ContributingTimeframes,
		CreatedAt:  time.Now().UnixMilli(),
		Reasoning: append([]string{
			fmt.Sprintf("%s liquidity sweep at %.8f reclaimed to %.8f", sweep.Zone.Side, sweep.ExtremePrice, sweep.ClosePrice),
		}, result.Reasoning...),
	}
	sig.RRRatio = rrRatio(&sig)
	sig.Confidence = b.scorer.ScoreSweep(&sig, sweep, anchor, result)

	if err := sig.Validate(); err != nil {
		return Signal{}, false
	}
	return sig, true
}

func rrRatio(s *Signal) float64 {
	risk := s.Risk()
	if risk <= 0 {
		return 0
	}
	return s.Reward() / risk
}

func withinRatio(price, level, ratio float64) bool {
	if price <= 0 {
		return false
	}
	diff := price - level
	if diff < 0 {
		diff = -diff
	}
	return diff <= price*ratio
}
