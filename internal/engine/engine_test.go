package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fvg-liquidity-bot/config"
	"fvg-liquidity-bot/internal/binance"
	"fvg-liquidity-bot/internal/events"
	"fvg-liquidity-bot/internal/execution"
	"fvg-liquidity-bot/internal/logging"
	"fvg-liquidity-bot/internal/market"
	"fvg-liquidity-bot/internal/risk"
)

// failingExchange always reports the data feed down.
type failingExchange struct{}

func (failingExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	return nil, binance.ErrDataUnavailable
}

func (failingExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return 0, binance.ErrDataUnavailable
}

func (failingExchange) Ping(ctx context.Context) error { return nil }

func (failingExchange) PlaceOrder(ctx context.Context, req binance.OrderRequest) (*binance.OrderResult, error) {
	return nil, binance.ErrExecutionRejected
}

func newTestEngine(t *testing.T, exchange binance.Exchange) (*Engine, *events.EventBus) {
	t.Helper()

	cfg := config.Default()
	cfg.EngineConfig.LoopIntervalSeconds = 3600 // only the immediate first cycle runs
	manager := config.NewManager(cfg)

	log := logging.New(&logging.Config{Level: "ERROR"})
	bus := events.NewEventBus()
	gate := risk.NewGate(cfg.RiskConfig, 1000)
	executor := execution.NewExecutor(exchange, gate, bus, nil, log, true)
	store := market.NewStore(cfg.EngineConfig.CandleLimit * 2)

	return New(manager, store, exchange, gate, executor, bus, nil, nil, log), bus
}

func TestNewPipelineFromDefaults(t *testing.T) {
	pipe, err := newPipeline(config.Default())
	require.NoError(t, err)
	assert.NotNil(t, pipe.analyzer)
	assert.NotNil(t, pipe.confluence)
	assert.NotNil(t, pipe.builder)
	assert.NotNil(t, pipe.ranker)
}

func TestNewPipelineRejectsBadScoring(t *testing.T) {
	cfg := config.Default()
	cfg.ScoringConfig.RRWeight = 0.9

	_, err := newPipeline(cfg)
	assert.Error(t, err)
}

func TestRunCycleWithMockData(t *testing.T) {
	mock := binance.NewMockClient()
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.SetClock(func() time.Time { return fixed })

	eng, bus := newTestEngine(t, mock)

	completed := make(chan events.Event, 1)
	bus.Subscribe(events.EventCycleCompleted, func(ev events.Event) {
		select {
		case completed <- ev:
		default:
		}
	})

	eng.runCycle(context.Background())

	assert.Equal(t, int64(1), eng.Cycle())
	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		t.Fatal("Cycle completion event never published")
	}
}

func TestRunCycleIsolatesSymbolFailures(t *testing.T) {
	eng, bus := newTestEngine(t, failingExchange{})

	var mu sync.Mutex
	skipped := map[string]bool{}
	bus.Subscribe(events.EventSymbolSkipped, func(ev events.Event) {
		mu.Lock()
		skipped[ev.Data["symbol"].(string)] = true
		mu.Unlock()
	})

	eng.runCycle(context.Background())

	// Every symbol failed, yet the cycle itself completed
	assert.Equal(t, int64(1), eng.Cycle())
	assert.NotEqual(t, StateError, eng.State())

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(skipped)
		mu.Unlock()
		if n == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, skipped["BTCUSDT"])
	assert.True(t, skipped["ETHUSDT"])
}

func TestRefreshTickerFollowsConfigUpdate(t *testing.T) {
	eng, _ := newTestEngine(t, failingExchange{})

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	// Snapshot says 3600s: the hour-long ticker stays as is
	interval := eng.refreshTicker(ticker, 3600*time.Second)
	assert.Equal(t, 3600*time.Second, interval)

	// A live update to the loop interval re-arms the ticker
	require.NoError(t, eng.manager.Apply([]byte(`{"engine": {"loop_interval_seconds": 30}}`)))
	interval = eng.refreshTicker(ticker, interval)
	assert.Equal(t, 30*time.Second, interval)

	// Unchanged config leaves the interval alone
	interval = eng.refreshTicker(ticker, interval)
	assert.Equal(t, 30*time.Second, interval)
}

func TestStopEndsRunLoop(t *testing.T) {
	eng, _ := newTestEngine(t, failingExchange{})

	done := make(chan error, 1)
	go func() {
		done <- eng.Run(context.Background())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for eng.State() != StateRunning && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, StateRunning, eng.State())

	eng.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, StateStopped, eng.State())
}

func TestContextCancelEndsRunLoop(t *testing.T) {
	eng, _ := newTestEngine(t, failingExchange{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- eng.Run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for eng.State() != StateRunning && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateStopped, eng.State())
}
