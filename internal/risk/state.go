package risk

// Snapshot is a point-in-time copy of the gate's account state, safe to hand
// to the API and the audit log.
type Snapshot struct {
	State              State   `json:"state"`
	Equity             float64 `json:"equity"`
	PeakEquity         float64 `json:"peak_equity"`
	DrawdownFromPeak   float64 `json:"drawdown_from_peak"` // Percent
	DailyPnL           float64 `json:"daily_pnl"`
	ConsecutiveLosses  int     `json:"consecutive_losses"`
	Wins               int     `json:"wins"`
	Losses             int     `json:"losses"`
	TotalTrades        int     `json:"total_trades"`
	WinRate            float64 `json:"win_rate"`
	OpenPositions      int     `json:"open_positions"`
	TradingDay         string  `json:"trading_day"`
	TripReason         string  `json:"trip_reason,omitempty"`
	TrippedAt          int64   `json:"tripped_at,omitempty"` // Milliseconds since epoch
	ApprovedToday      int     `json:"approved_today"`
	RejectedToday      int     `json:"rejected_today"`
	LastApprovalMillis int64   `json:"last_approval_millis,omitempty"`
}

// drawdownPercent computes drawdown from peak as a percentage. A zero peak
// means no trades yet.
func drawdownPercent(equity, peak float64) float64 {
	if peak <= 0 || equity >= peak {
		return 0
	}
	return (peak - equity) / peak * 100
}
