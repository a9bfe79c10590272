package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fvg-liquidity-bot/internal/binance"
	"fvg-liquidity-bot/internal/database"
	"fvg-liquidity-bot/internal/events"
	"fvg-liquidity-bot/internal/logging"
	"fvg-liquidity-bot/internal/risk"
	"fvg-liquidity-bot/internal/signal"
)

// TradeStore persists trade rows. Satisfied by *database.DB; nil-able.
type TradeStore interface {
	SaveTrade(ctx context.Context, t database.TradeRecord) (int64, error)
	CloseTrade(ctx context.Context, id int64, exitPrice, pnl float64, closedAt time.Time) error
}

// Position is one open trade the executor is watching.
type Position struct {
	TradeID    int64            `json:"trade_id"`
	SignalID   string           `json:"signal_id"`
	OrderID    string           `json:"order_id"`
	Symbol     string           `json:"symbol"`
	Direction  signal.Direction `json:"direction"`
	EntryPrice float64          `json:"entry_price"`
	Quantity   float64          `json:"quantity"`
	StopLoss   float64          `json:"stop_loss"`
	TakeProfit float64          `json:"take_profit"`
	OpenedAt   int64            `json:"opened_at"` // Milliseconds since epoch
	DryRun     bool             `json:"dry_run"`
}

// ClosedTrade is a settled position kept in the in-memory history.
type ClosedTrade struct {
	Position
	ExitPrice float64 `json:"exit_price"`
	PnL       float64 `json:"pnl"`
	ClosedAt  int64   `json:"closed_at"`
	ExitKind  string  `json:"exit_kind"` // stop-loss or take-profit
}

const historyCap = 200

// Executor turns approved gate decisions into orders and watches the
// resulting positions until stop or target is hit. In dry-run mode orders are
// simulated at the signal's entry price and never reach the exchange. Trade
// outcomes are settled into the gate, which owns the account state.
type Executor struct {
	exchange binance.Exchange
	gate     *risk.Gate
	bus      *events.EventBus
	store    TradeStore
	log      *logging.Logger

	mu        sync.Mutex
	dryRun    bool
	positions map[string]*Position // signal ID -> position
	history   []ClosedTrade
	now       func() time.Time
}

// NewExecutor creates an executor. store may be nil; persistence is then
// skipped.
func NewExecutor(exchange binance.Exchange, gate *risk.Gate, bus *events.EventBus, store TradeStore, log *logging.Logger, dryRun bool) *Executor {
	return &Executor{
		exchange:  exchange,
		gate:      gate,
		bus:       bus,
		store:     store,
		log:       log.WithComponent("executor"),
		dryRun:    dryRun,
		positions: make(map[string]*Position),
		now:       time.Now,
	}
}

// SetClock overrides the executor's clock. Test hook.
func (e *Executor) SetClock(now func() time.Time) {
	e.now = now
}

// SetDryRun switches simulation mode. The engine applies the configured value
// at each cycle boundary; open positions keep the mode they were opened in.
func (e *Executor) SetDryRun(dryRun bool) {
	e.mu.Lock()
	e.dryRun = dryRun
	e.mu.Unlock()
}

func (e *Executor) isDryRun() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dryRun
}

// Execute submits one approved candidate. The size comes from the gate's
// decision, never from the signal. Execution failures are terminal for the
// attempt and the position is released back to the gate as a flat outcome.
func (e *Executor) Execute(ctx context.Context, sig signal.Signal, size float64) (*Position, error) {
	side := "BUY"
	if sig.Direction == signal.DirectionSell {
		side = "SELL"
	}
	dryRun := e.isDryRun()

	var fillPrice float64
	var orderID string

	if dryRun {
		fillPrice = sig.EntryPrice
		orderID = fmt.Sprintf("dry-%s", sig.ID[:8])
	} else {
		result, err := e.exchange.PlaceOrder(ctx, binance.OrderRequest{
			Symbol:     sig.Symbol,
			Side:       side,
			Quantity:   size,
			StopLoss:   sig.StopLoss,
			TakeProfit: sig.TakeProfit,
		})
		if err != nil {
			// The gate counted an open position on approval; release it.
			e.gate.RecordOutcome(0)
			e.log.Error("order submission failed", "symbol", sig.Symbol, "error", err)
			return nil, err
		}
		fillPrice = result.Price
		if fillPrice == 0 {
			fillPrice = sig.EntryPrice
		}
		orderID = result.OrderID
	}

	pos := &Position{
		SignalID:   sig.ID,
		OrderID:    orderID,
		Symbol:     sig.Symbol,
		Direction:  sig.Direction,
		EntryPrice: fillPrice,
		Quantity:   size,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		OpenedAt:   e.now().UnixMilli(),
		DryRun:     dryRun,
	}

	if e.store != nil {
		id, err := e.store.SaveTrade(ctx, database.TradeRecord{
			SignalID:   sig.ID,
			Symbol:     sig.Symbol,
			Side:       side,
			EntryPrice: fillPrice,
			Quantity:   size,
			StopLoss:   sig.StopLoss,
			TakeProfit: sig.TakeProfit,
			DryRun:     dryRun,
			OpenedAt:   e.now(),
		})
		if err == nil {
			pos.TradeID = id
		}
	}

	e.mu.Lock()
	e.positions[sig.ID] = pos
	e.mu.Unlock()

	e.bus.PublishOrderSubmitted(orderID, sig.Symbol, side, fillPrice, size, dryRun)
	e.log.Info("position opened",
		"symbol", sig.Symbol, "side", side, "price", fillPrice, "size", size, "dry_run", dryRun)
	return pos, nil
}

// CheckExits closes positions whose stop or target the current price has
// crossed, settling the PnL into the gate. Called once per cycle.
func (e *Executor) CheckExits(ctx context.Context) {
	e.mu.Lock()
	open := make([]*Position, 0, len(e.positions))
	for _, p := range e.positions {
		open = append(open, p)
	}
	e.mu.Unlock()

	for _, pos := range open {
		price, err := e.exchange.GetPrice(ctx, pos.Symbol)
		if err != nil {
			e.log.Warn("exit check skipped", "symbol", pos.Symbol, "error", err)
			continue
		}

		exitKind, exitPrice := exitHit(pos, price)
		if exitKind == "" {
			continue
		}
		e.closePosition(ctx, pos, exitPrice, exitKind)
	}
}

// exitHit reports which exit the price crossed, if any. Stop-loss wins when
// both could match.
func exitHit(pos *Position, price float64) (kind string, exitPrice float64) {
	if pos.Direction == signal.DirectionBuy {
		if price <= pos.StopLoss {
			return "stop-loss", pos.StopLoss
		}
		if price >= pos.TakeProfit {
			return "take-profit", pos.TakeProfit
		}
	} else {
		if price >= pos.StopLoss {
			return "stop-loss", pos.StopLoss
		}
		if price <= pos.TakeProfit {
			return "take-profit", pos.TakeProfit
		}
	}
	return "", 0
}

func (e *Executor) closePosition(ctx context.Context, pos *Position, exitPrice float64, exitKind string) {
	pnl := (exitPrice - pos.EntryPrice) * pos.Quantity
	if pos.Direction == signal.DirectionSell {
		pnl = -pnl
	}

	e.mu.Lock()
	delete(e.positions, pos.SignalID)
	closed := ClosedTrade{
		Position:  *pos,
		ExitPrice: exitPrice,
		PnL:       pnl,
		ClosedAt:  e.now().UnixMilli(),
		ExitKind:  exitKind,
	}
	e.history = append(e.history, closed)
	if len(e.history) > historyCap {
		e.history = e.history[len(e.history)-historyCap:]
	}
	e.mu.Unlock()

	e.gate.RecordOutcome(pnl)

	if e.store != nil && pos.TradeID > 0 {
		_ = e.store.CloseTrade(ctx, pos.TradeID, exitPrice, pnl, e.now())
	}

	e.bus.PublishTradeClosed(pos.Symbol, pos.EntryPrice, exitPrice, pos.Quantity, pnl)
	e.log.Info("position closed",
		"symbol", pos.Symbol, "exit", exitKind, "price", exitPrice, "pnl", pnl)
}

// OpenPositions returns a copy of the currently open positions.
func (e *Executor) OpenPositions() []Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	return out
}

// History returns the settled trades, oldest first.
func (e *Executor) History() []ClosedTrade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ClosedTrade(nil), e.history...)
}

// HasPosition reports whether a symbol already has an open position.
func (e *Executor) HasPosition(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.positions {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}
