package signal

import (
	"fmt"

	"fvg-liquidity-bot/internal/analysis"
)

// Direction of a trade signal
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// SourceKind identifies which detection produced a signal
type SourceKind string

const (
	SourceFVG   SourceKind = "fvg"
	SourceSweep SourceKind = "sweep"
)

// Signal is a fully-specified trade candidate. Entry, stop and target always
// satisfy the directional ordering: stop < entry < target for buys and
// target < entry < stop for sells.
type Signal struct {
	ID         string               `json:"id"`
	Symbol     string               `json:"symbol"`
	Direction  Direction            `json:"direction"`
	Source     SourceKind           `json:"source"`
	EntryPrice float64              `json:"entry_price"`
	StopLoss   float64              `json:"stop_loss"`
	TakeProfit float64              `json:"take_profit"`
	Confidence float64              `json:"confidence"` // 0..1
	RRRatio    float64              `json:"rr_ratio"`
	Timeframes []analysis.Timeframe `json:"timeframes"`
	CreatedAt  int64                `json:"created_at"` // Milliseconds since epoch
	Reasoning  []string             `json:"reasoning"`
}

// Risk returns the per-unit distance between entry and stop.
func (s *Signal) Risk() float64 {
	r := s.EntryPrice - s.StopLoss
	if r < 0 {
		r = -r
	}
	return r
}

// Reward returns the per-unit distance between entry and target.
func (s *Signal) Reward() float64 {
	r := s.TakeProfit - s.EntryPrice
	if r < 0 {
		r = -r
	}
	return r
}

// Validate checks the directional price ordering.
func (s *Signal) Validate() error {
	switch s.Direction {
	case DirectionBuy:
		if !(s.StopLoss < s.EntryPrice && s.EntryPrice < s.TakeProfit) {
			return fmt.Errorf("buy signal %s violates stop < entry < target: %.8f / %.8f / %.8f",
				s.ID, s.StopLoss, s.EntryPrice, s.TakeProfit)
		}
	case DirectionSell:
		if !(s.TakeProfit < s.EntryPrice && s.EntryPrice < s.StopLoss) {
			return fmt.Errorf("sell signal %s violates target < entry < stop: %.8f / %.8f / %.8f",
				s.ID, s.TakeProfit, s.EntryPrice, s.StopLoss)
		}
	default:
		return fmt.Errorf("signal %s has unknown direction %q", s.ID, s.Direction)
	}
	return nil
}
