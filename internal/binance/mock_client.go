package binance

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync/atomic"
	"time"

	"fvg-liquidity-bot/internal/market"
)

// MockClient serves synthetic market data for development and tests. Candles
// are generated deterministically from the symbol and bar index, so repeated
// calls for the same window return identical data and the analysis pipeline
// behaves reproducibly.
type MockClient struct {
	orderSeq atomic.Int64
	now      func() time.Time
}

// NewMockClient creates a mock client
func NewMockClient() *MockClient {
	return &MockClient{now: time.Now}
}

// SetClock overrides the mock's clock. Test hook.
func (m *MockClient) SetClock(now func() time.Time) {
	m.now = now
}

// GetKlines generates limit synthetic candles ending at the current bar.
func (m *MockClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	barMs := intervalMillis(interval)
	if barMs <= 0 {
		return nil, fmt.Errorf("%w: unknown interval %s", ErrDataUnavailable, interval)
	}

	base := basePrice(symbol)
	end := m.now().UnixMilli() / barMs * barMs

	candles := make([]market.Candle, limit)
	for i := 0; i < limit; i++ {
		barIndex := end/barMs - int64(limit-1-i)
		openTime := barIndex * barMs

		// Two superimposed waves give the series swings on different scales;
		// the per-bar hash term adds irregular wicks.
		t := float64(barIndex)
		trend := math.Sin(t/40) * 0.04
		wave := math.Sin(t/7) * 0.015
		noise := (float64(barHash(symbol, barIndex)%1000)/1000 - 0.5) * 0.006

		mid := base * (1 + trend + wave)
		open := mid * (1 + noise)
		close := mid * (1 - noise)
		high := math.Max(open, close) * (1 + 0.002 + math.Abs(noise))
		low := math.Min(open, close) * (1 - 0.002 - math.Abs(noise))

		candles[i] = market.Candle{
			OpenTime:  openTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000 + float64(barHash(symbol, barIndex)%5000),
			CloseTime: openTime + barMs - 1,
		}
	}
	return candles, nil
}

// GetPrice returns the close of the current synthetic bar.
func (m *MockClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	candles, err := m.GetKlines(ctx, symbol, "1m", 1)
	if err != nil {
		return 0, err
	}
	return candles[0].Close, nil
}

// Ping always succeeds
func (m *MockClient) Ping(ctx context.Context) error {
	return ctx.Err()
}

// PlaceOrder simulates an immediate fill at the current synthetic price.
func (m *MockClient) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	price, err := m.GetPrice(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutionRejected, err)
	}
	return &OrderResult{
		OrderID:   fmt.Sprintf("mock-%d", m.orderSeq.Add(1)),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Price:     price,
		Quantity:  req.Quantity,
		Status:    "FILLED",
		FilledAt:  m.now().UnixMilli(),
		Simulated: true,
	}, nil
}

// basePrice anchors each symbol at a stable synthetic level.
func basePrice(symbol string) float64 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return 100 + float64(h.Sum32()%90000)
}

func barHash(symbol string, barIndex int64) uint32 {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s:%d", symbol, barIndex)
	return h.Sum32()
}

func intervalMillis(interval string) int64 {
	switch interval {
	case "1m":
		return 60_000
	case "5m":
		return 300_000
	case "15m":
		return 900_000
	case "1h":
		return 3_600_000
	case "4h":
		return 14_400_000
	case "1d":
		return 86_400_000
	default:
		return 0
	}
}
