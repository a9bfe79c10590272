package database

import (
	"context"
	"time"

	"fvg-liquidity-bot/internal/risk"
)

// SaveDecision writes one gate decision to the audit log.
func (db *DB) SaveDecision(ctx context.Context, d risk.Decision) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO gate_decisions
			(id, signal_id, symbol, approved, reason, requested_size, adjusted_size, gate_state, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.SignalID, d.Symbol, d.Approved, d.Reason,
		d.RequestedSize, d.AdjustedSize, string(d.GateState), time.UnixMilli(d.Timestamp).UTC(),
	)
	if err != nil {
		db.log.Error().Err(err).Str("decision_id", d.ID).Msg("failed to persist gate decision")
	}
	return err
}

// TradeRecord is one executed (or simulated) trade row.
type TradeRecord struct {
	SignalID   string
	Symbol     string
	Side       string
	EntryPrice float64
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
	DryRun     bool
	OpenedAt   time.Time
}

// SaveTrade inserts an open trade and returns its row id.
func (db *DB) SaveTrade(ctx context.Context, t TradeRecord) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO trades
			(signal_id, symbol, side, entry_price, quantity, stop_loss, take_profit, dry_run, status, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'OPEN', $9)
		RETURNING id`,
		t.SignalID, t.Symbol, t.Side, t.EntryPrice, t.Quantity,
		t.StopLoss, t.TakeProfit, t.DryRun, t.OpenedAt.UTC(),
	).Scan(&id)
	if err != nil {
		db.log.Error().Err(err).Str("symbol", t.Symbol).Msg("failed to persist trade")
	}
	return id, err
}

// CloseTrade settles a trade row with its exit price and PnL.
func (db *DB) CloseTrade(ctx context.Context, id int64, exitPrice, pnl float64, closedAt time.Time) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE trades
		SET exit_price = $2, pnl = $3, status = 'CLOSED', closed_at = $4
		WHERE id = $1`,
		id, exitPrice, pnl, closedAt.UTC(),
	)
	if err != nil {
		db.log.Error().Err(err).Int64("trade_id", id).Msg("failed to close trade")
	}
	return err
}

// SaveRiskSnapshot captures the gate's account state.
func (db *DB) SaveRiskSnapshot(ctx context.Context, s risk.Snapshot) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO risk_snapshots
			(state, equity, peak_equity, drawdown_from_peak, daily_pnl, consecutive_losses, open_positions, trip_reason, trading_day)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(s.State), s.Equity, s.PeakEquity, s.DrawdownFromPeak, s.DailyPnL,
		s.ConsecutiveLosses, s.OpenPositions, s.TripReason, s.TradingDay,
	)
	if err != nil {
		db.log.Error().Err(err).Msg("failed to persist risk snapshot")
	}
	return err
}
