package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fvg-liquidity-bot/config"
	"fvg-liquidity-bot/internal/analysis"
	"fvg-liquidity-bot/internal/binance"
	"fvg-liquidity-bot/internal/cache"
	"fvg-liquidity-bot/internal/confluence"
	"fvg-liquidity-bot/internal/database"
	"fvg-liquidity-bot/internal/events"
	"fvg-liquidity-bot/internal/execution"
	"fvg-liquidity-bot/internal/logging"
	"fvg-liquidity-bot/internal/market"
	"fvg-liquidity-bot/internal/risk"
	"fvg-liquidity-bot/internal/signal"
)

// State of the orchestrator loop.
type State string

const (
	StateRunning State = "RUNNING"
	StatePaused  State = "PAUSED"
	StateStopped State = "STOPPED"
	StateError   State = "ERROR"
)

// Engine drives the cycle: fetch candles, analyze per timeframe, fuse
// confluence, build and rank signals, and walk the ranked candidates through
// the gate one at a time. Pause and stop take effect at cycle boundaries;
// a cycle that has started always completes.
type Engine struct {
	manager  *config.Manager
	store    *market.Store
	exchange binance.Exchange
	gate     *risk.Gate
	executor *execution.Executor
	bus      *events.EventBus
	candles  *cache.CandleCache // optional
	db       *database.DB       // optional
	log      *logging.Logger

	mu          sync.RWMutex
	state       State
	cycle       int64
	lastSignals []signal.Signal
	lastErr     error

	pauseCh  chan bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates an engine. candleCache and db may be nil.
func New(manager *config.Manager, store *market.Store, exchange binance.Exchange, gate *risk.Gate,
	executor *execution.Executor, bus *events.EventBus, candleCache *cache.CandleCache, db *database.DB,
	log *logging.Logger) *Engine {
	return &Engine{
		manager:  manager,
		store:    store,
		exchange: exchange,
		gate:     gate,
		executor: executor,
		bus:      bus,
		candles:  candleCache,
		db:       db,
		log:      log.WithComponent("engine"),
		state:    StateStopped,
		pauseCh:  make(chan bool, 1),
		stopCh:   make(chan struct{}),
	}
}

// Run executes the cycle loop until the context is cancelled or Stop is
// called. The first cycle runs immediately; subsequent cycles follow the
// configured interval.
func (e *Engine) Run(ctx context.Context) error {
	cfg := e.manager.Snapshot()
	e.setState(StateRunning)
	e.log.Info("engine started",
		"symbols", len(cfg.EngineConfig.Symbols),
		"interval_seconds", cfg.EngineConfig.LoopIntervalSeconds,
		"dry_run", cfg.EngineConfig.DryRun)

	interval := time.Duration(cfg.EngineConfig.LoopIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.runCycle(ctx)
	interval = e.refreshTicker(ticker, interval)

	for {
		select {
		case <-ctx.Done():
			e.setState(StateStopped)
			return ctx.Err()
		case <-e.stopCh:
			e.setState(StateStopped)
			return nil
		case paused := <-e.pauseCh:
			if paused {
				e.setState(StatePaused)
			} else {
				e.setState(StateRunning)
			}
		case <-ticker.C:
			if e.State() != StateRunning {
				continue
			}
			e.runCycle(ctx)
			if e.State() == StateError {
				return e.lastError()
			}
			interval = e.refreshTicker(ticker, interval)
		}
	}
}

// refreshTicker re-arms the ticker when a live config update changed the loop
// interval. Applied at cycle boundaries like every other parameter.
func (e *Engine) refreshTicker(ticker *time.Ticker, current time.Duration) time.Duration {
	next := time.Duration(e.manager.Snapshot().EngineConfig.LoopIntervalSeconds) * time.Second
	if next > 0 && next != current {
		ticker.Reset(next)
		e.log.Info("loop interval updated", "interval", next.String())
		return next
	}
	return current
}

// Pause suspends cycle execution at the next boundary.
func (e *Engine) Pause() {
	select {
	case e.pauseCh <- true:
	default:
	}
}

// Resume restarts cycle execution.
func (e *Engine) Resume() {
	select {
	case e.pauseCh <- false:
	default:
	}
}

// Stop terminates the loop at the next boundary.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// State returns the engine state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Cycle returns the completed cycle count.
func (e *Engine) Cycle() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cycle
}

// LastSignals returns the most recent cycle's ranked candidates.
func (e *Engine) LastSignals() []signal.Signal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]signal.Signal(nil), e.lastSignals...)
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	e.mu.Unlock()
	if prev != s {
		e.bus.PublishEngineState(string(prev), string(s))
		e.log.Info("state changed", "from", string(prev), "to", string(s))
	}
}

func (e *Engine) lastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// symbolResult carries one worker's output.
type symbolResult struct {
	symbol  string
	signals []signal.Signal
	err     error
}

// runCycle executes one full pipeline pass. The configuration is snapshotted
// once; a mid-cycle update applies from the next cycle.
func (e *Engine) runCycle(ctx context.Context) {
	start := time.Now()
	cfg := e.manager.Snapshot()

	pipe, err := newPipeline(cfg)
	if err != nil {
		e.log.Error("pipeline construction failed", "error", err)
		e.bus.PublishError("engine", "pipeline construction failed", err)
		return
	}

	e.executor.SetDryRun(cfg.EngineConfig.DryRun)
	stateBefore := e.gate.Snapshot()

	// Per-symbol analysis fans out to workers; symbols fail independently.
	symbolCh := make(chan string, len(cfg.EngineConfig.Symbols))
	resultCh := make(chan symbolResult, len(cfg.EngineConfig.Symbols))

	var wg sync.WaitGroup
	workers := cfg.EngineConfig.WorkerCount
	if workers > len(cfg.EngineConfig.Symbols) {
		workers = len(cfg.EngineConfig.Symbols)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range symbolCh {
				signals, err := e.processSymbol(ctx, cfg, pipe, symbol)
				resultCh <- symbolResult{symbol: symbol, signals: signals, err: err}
			}
		}()
	}
	for _, symbol := range cfg.EngineConfig.Symbols {
		symbolCh <- symbol
	}
	close(symbolCh)
	wg.Wait()
	close(resultCh)

	var allSignals []signal.Signal
	for res := range resultCh {
		if res.err != nil {
			e.log.Warn("symbol skipped", "symbol", res.symbol, "error", res.err)
			e.bus.PublishSymbolSkipped(res.symbol, res.err.Error())
			continue
		}
		allSignals = append(allSignals, res.signals...)
	}

	ranked := pipe.ranker.Rank(allSignals, cfg.EngineConfig.MaxCandidates)
	for _, sig := range ranked {
		e.bus.PublishSignal(sig.ID, sig.Symbol, string(sig.Direction), string(sig.Source), sig.Confidence, sig.RRRatio)
	}

	approved := e.admitCandidates(ctx, cfg, ranked)
	if e.State() == StateError {
		return
	}

	e.executor.CheckExits(ctx)
	e.publishCircuitTransitions(stateBefore)

	if cfg.RiskConfig.PersistRiskState && e.db != nil {
		_ = e.db.SaveRiskSnapshot(ctx, e.gate.Snapshot())
	}

	e.mu.Lock()
	e.cycle++
	cycle := e.cycle
	e.lastSignals = ranked
	e.mu.Unlock()

	e.bus.PublishCycleCompleted(cycle, len(cfg.EngineConfig.Symbols), len(ranked), approved, time.Since(start))
}

// processSymbol runs the pure analysis pipeline for one symbol: fetch each
// timeframe's window, analyze, fuse, build candidates.
func (e *Engine) processSymbol(ctx context.Context, cfg *config.Config, pipe *pipeline, symbol string) ([]signal.Signal, error) {
	analyses := make(map[analysis.Timeframe]*analysis.TimeframeAnalysis, len(cfg.ConfluenceConfig.Timeframes))

	for _, tf := range cfg.ConfluenceConfig.Timeframes {
		candles, err := e.fetchWindow(ctx, symbol, tf, cfg.EngineConfig.CandleLimit)
		if err != nil {
			return nil, err
		}
		if err := e.store.Replace(symbol, tf, candles); err != nil {
			return nil, err
		}

		ta, err := pipe.analyzer.Analyze(symbol, analysis.Timeframe(tf), e.store.Window(symbol, tf))
		if err != nil {
			return nil, err
		}
		analyses[analysis.Timeframe(tf)] = ta
	}

	result := pipe.confluence.FindConfluence(symbol, analyses)
	if result.Verdict == confluence.VerdictNeutral {
		return nil, nil
	}

	anchorTF := result.ContributingTimeframes[len(result.ContributingTimeframes)-1]
	return pipe.builder.Build(result, analyses[anchorTF]), nil
}

// fetchWindow pulls candles from the exchange, falling back to the cache when
// the fetch fails and refreshing the cache when it succeeds.
func (e *Engine) fetchWindow(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	candles, err := e.exchange.GetKlines(ctx, symbol, interval, limit)
	if err != nil {
		if e.candles != nil {
			if cached := e.candles.Get(ctx, symbol, interval); len(cached) > 0 {
				e.log.Debug("serving cached candles", "symbol", symbol, "interval", interval)
				return cached, nil
			}
		}
		return nil, err
	}
	if e.candles != nil {
		e.candles.Put(ctx, symbol, interval, candles)
	}
	return candles, nil
}

// admitCandidates walks the ranked candidates through the gate in order.
// Admission is strictly sequential so interval and position limits see every
// earlier approval. An approval carried out while the circuit reports OPEN
// can only mean corrupted gate state; the engine halts rather than trade
// through it.
func (e *Engine) admitCandidates(ctx context.Context, cfg *config.Config, ranked []signal.Signal) int {
	approved := 0
	for i := range ranked {
		sig := ranked[i]
		if e.executor.HasPosition(sig.Symbol) {
			continue
		}

		snap := e.gate.Snapshot()
		requested := 0.0
		if sig.EntryPrice > 0 {
			requested = snap.Equity * cfg.RiskConfig.MaxPositionSize * cfg.RiskConfig.Leverage / sig.EntryPrice
		}

		decision := e.gate.Admit(&sig, requested)
		e.bus.PublishGateDecision(decision.ID, sig.ID, sig.Symbol, decision.Approved, decision.Reason, decision.AdjustedSize)

		if cfg.RiskConfig.PersistDecisions && e.db != nil {
			_ = e.db.SaveDecision(ctx, decision)
		}

		if !decision.Approved {
			continue
		}
		if decision.GateState == risk.StateOpen {
			err := fmt.Errorf("gate approved %s while circuit open", sig.ID)
			e.mu.Lock()
			e.lastErr = err
			e.mu.Unlock()
			e.log.Error("gate invariant violated, halting", "signal_id", sig.ID)
			e.bus.PublishError("engine", "gate invariant violated", err)
			e.setState(StateError)
			return approved
		}

		if _, err := e.executor.Execute(ctx, sig, decision.AdjustedSize); err != nil {
			e.log.Error("execution failed", "symbol", sig.Symbol, "error", err)
			continue
		}
		approved++
	}
	return approved
}

// publishCircuitTransitions emits events when the circuit state changed
// during the cycle.
func (e *Engine) publishCircuitTransitions(before risk.Snapshot) {
	after := e.gate.Snapshot()
	if before.State == after.State {
		return
	}
	if after.State == risk.StateOpen {
		e.log.Warn("circuit tripped",
			"reason", after.TripReason,
			"drawdown", after.DrawdownFromPeak,
			"daily_pnl", after.DailyPnL,
			"consecutive_losses", after.ConsecutiveLosses)
		e.bus.PublishCircuitTripped(after.TripReason, after.DrawdownFromPeak, after.DailyPnL, after.ConsecutiveLosses)
	} else {
		e.bus.PublishCircuitReset("day-rollover")
	}
}

// pipeline bundles the per-cycle analysis components, rebuilt from each
// cycle's config snapshot so parameter updates apply cleanly.
type pipeline struct {
	analyzer   *analysis.Analyzer
	confluence *confluence.Engine
	builder    *signal.Builder
	ranker     *signal.Ranker
}

func newPipeline(cfg *config.Config) (*pipeline, error) {
	fvgDetector := analysis.NewFVGDetector(
		cfg.FVGConfig.MinGapRatio,
		cfg.FVGConfig.MaxAgeBars,
		cfg.FVGConfig.RequirePartialFill,
	)
	liqDetector := analysis.NewLiquidityDetector(
		cfg.LiquidityConfig.SwingLookback,
		cfg.LiquidityConfig.MinSwingsBetween,
		cfg.LiquidityConfig.ZoneWidthRatio,
		cfg.LiquidityConfig.SweepThreshold,
		cfg.LiquidityConfig.SweepRetreat,
		cfg.LiquidityConfig.MaxSweepAge,
		cfg.LiquidityConfig.MaxZoneAge,
	)

	scorer, err := signal.NewScorer(cfg.ScoringConfig, cfg.FVGConfig.MaxAgeBars, cfg.FVGConfig.ProximityRatio)
	if err != nil {
		return nil, err
	}

	return &pipeline{
		analyzer: analysis.NewAnalyzer(fvgDetector, liqDetector),
		confluence: confluence.NewEngine(
			cfg.ConfluenceConfig.TimeframeWeights,
			cfg.ConfluenceConfig.MinConfluenceCount,
			cfg.ConfluenceConfig.Threshold,
			cfg.ConfluenceConfig.ProximityRatio,
		),
		builder: signal.NewBuilder(cfg.ScoringConfig, cfg.FVGConfig.ProximityRatio, scorer),
		ranker:  signal.NewRanker(cfg.ScoringConfig.MinConfidence, cfg.ScoringConfig.MinRRRatio),
	}, nil
}
