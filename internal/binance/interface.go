package binance

import (
	"context"
	"errors"

	"fvg-liquidity-bot/internal/market"
)

// ErrDataUnavailable is returned when candle data cannot be fetched: network
// failure, API error, or an open request breaker. The engine skips the symbol
// for the cycle and retries on the next one.
var ErrDataUnavailable = errors.New("market data unavailable")

// ErrExecutionRejected is returned when the exchange refuses an order. The
// failure is terminal for the attempt; no retry is made within the cycle.
var ErrExecutionRejected = errors.New("order execution rejected")

// OrderRequest describes a market order to submit.
type OrderRequest struct {
	Symbol     string
	Side       string // BUY or SELL
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
}

// OrderResult is the exchange's (or the simulator's) fill acknowledgment.
type OrderResult struct {
	OrderID   string
	Symbol    string
	Side      string
	Price     float64
	Quantity  float64
	Status    string
	FilledAt  int64 // Milliseconds since epoch
	Simulated bool
}

// MarketDataClient provides candle and price data for the analysis loop.
type MarketDataClient interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
	Ping(ctx context.Context) error
}

// OrderClient submits orders.
type OrderClient interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
}

// Exchange is the full client contract the engine wires against.
type Exchange interface {
	MarketDataClient
	OrderClient
}

// Compile-time interface checks
var (
	_ Exchange = (*Client)(nil)
	_ Exchange = (*MockClient)(nil)
)
