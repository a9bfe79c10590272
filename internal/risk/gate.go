package risk

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"fvg-liquidity-bot/config"
	"fvg-liquidity-bot/internal/signal"
)

// State of the admission gate. There are exactly two: a CLOSED circuit admits
// trades, an OPEN circuit rejects everything. There is no intermediate
// probing state; once open, the circuit stays open until the trading day
// rolls over or an operator resets it.
type State string

const (
	StateClosed State = "CLOSED"
	StateOpen   State = "OPEN"
)

// Reject reasons. ReasonCircuitOpen is the only reason emitted while the
// circuit is open, regardless of what else would have failed.
const (
	ReasonCircuitOpen      = "circuit-open"
	ReasonTradeInterval    = "trade-interval"
	ReasonMaxOpenPositions = "max-open-positions"
	ReasonZeroSize         = "zero-size"
)

// Trip reasons recorded when the circuit opens.
const (
	TripDrawdown          = "max-drawdown"
	TripConsecutiveLosses = "consecutive-losses"
	TripDailyLoss         = "daily-loss-limit"
)

// Decision is the gate's verdict on one candidate, written to the audit log.
type Decision struct {
	ID            string  `json:"id"`
	SignalID      string  `json:"signal_id"`
	Symbol        string  `json:"symbol"`
	Approved      bool    `json:"approved"`
	Reason        string  `json:"reason,omitempty"`
	RequestedSize float64 `json:"requested_size"`
	AdjustedSize  float64 `json:"adjusted_size"`
	GateState     State   `json:"gate_state"`
	Timestamp     int64   `json:"timestamp"` // Milliseconds since epoch
}

const decisionLogCap = 200

// Gate is the single admission point between signal generation and order
// execution. It owns the account risk state exclusively; nothing else mutates
// equity, PnL or the circuit. All methods are safe for concurrent use, but
// the engine calls Admit sequentially in rank order so interval and position
// limits apply deterministically.
type Gate struct {
	mu  sync.Mutex
	cfg config.RiskConfig

	state      State
	tripReason string
	trippedAt  time.Time

	equity     float64
	peakEquity float64
	dailyPnL   float64

	consecutiveLosses int
	wins              int
	losses            int

	openPositions int
	lastApproval  time.Time
	tradingDay    string
	approvedToday int
	rejectedToday int

	decisions []Decision

	now func() time.Time
}

// NewGate creates a closed gate with the given starting equity
func NewGate(cfg config.RiskConfig, initialEquity float64) *Gate {
	g := &Gate{
		cfg:        cfg,
		state:      StateClosed,
		equity:     initialEquity,
		peakEquity: initialEquity,
		now:        time.Now,
	}
	g.tradingDay = g.now().UTC().Format("2006-01-02")
	return g
}

// SetClock overrides the gate's clock. Test hook.
func (g *Gate) SetClock(now func() time.Time) {
	g.mu.Lock()
	g.now = now
	g.mu.Unlock()
}

// Admit evaluates one candidate and returns the decision. requestedSize is
// the desired position size in base units. An approval may carry an
// AdjustedSize smaller than requested: the size is clipped to the tightest of
// the notional bound and the per-trade risk bound. The circuit is checked
// first; while open every candidate is rejected with ReasonCircuitOpen.
func (g *Gate) Admit(sig *signal.Signal, requestedSize float64) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDayLocked()

	d := Decision{
		ID:            uuid.New().String(),
		SignalID:      sig.ID,
		Symbol:        sig.Symbol,
		RequestedSize: requestedSize,
		GateState:     g.state,
		Timestamp:     g.now().UnixMilli(),
	}

	if g.state == StateOpen {
		return g.rejectLocked(d, ReasonCircuitOpen)
	}
	if g.cfg.MaxOpenPositions > 0 && g.openPositions >= g.cfg.MaxOpenPositions {
		return g.rejectLocked(d, ReasonMaxOpenPositions)
	}
	if g.cfg.MinTradeIntervalSecs > 0 && !g.lastApproval.IsZero() {
		elapsed := g.now().Sub(g.lastApproval)
		if elapsed < time.Duration(g.cfg.MinTradeIntervalSecs)*time.Second {
			return g.rejectLocked(d, ReasonTradeInterval)
		}
	}

	adjusted := g.clipSizeLocked(sig, requestedSize)
	if adjusted <= 0 {
		return g.rejectLocked(d, ReasonZeroSize)
	}

	d.Approved = true
	d.AdjustedSize = adjusted
	g.openPositions++
	g.lastApproval = g.now()
	g.approvedToday++
	g.recordDecisionLocked(d)
	return d
}

// clipSizeLocked bounds the size by max notional (equity fraction times
// leverage) and by per-trade risk (stop distance may lose at most
// risk_per_trade of equity).
func (g *Gate) clipSizeLocked(sig *signal.Signal, requested float64) float64 {
	if requested <= 0 || sig.EntryPrice <= 0 {
		return 0
	}
	adjusted := requested

	maxNotional := g.equity * g.cfg.MaxPositionSize * g.cfg.Leverage
	if bound := maxNotional / sig.EntryPrice; bound < adjusted {
		adjusted = bound
	}

	if riskPerUnit := sig.Risk(); riskPerUnit > 0 {
		if bound := g.equity * g.cfg.RiskPerTrade / riskPerUnit; bound < adjusted {
			adjusted = bound
		}
	}
	return adjusted
}

// RecordOutcome settles one closed trade against the account state and
// re-evaluates the trip conditions. Each loss increments the consecutive-loss
// streak; a win resets it. A zero outcome only releases the position slot: it
// counts as neither win nor loss and leaves the streak untouched, so a failed
// submission cannot launder away accumulated losses.
func (g *Gate) RecordOutcome(pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDayLocked()

	g.equity += pnl
	g.dailyPnL += pnl
	if g.openPositions > 0 {
		g.openPositions--
	}

	switch {
	case pnl < 0:
		g.losses++
		g.consecutiveLosses++
	case pnl > 0:
		g.wins++
		g.consecutiveLosses = 0
	}
	if g.equity > g.peakEquity {
		g.peakEquity = g.equity
	}

	g.evaluateTripsLocked()
}

// evaluateTripsLocked opens the circuit when any limit is breached. The first
// matching reason is recorded.
func (g *Gate) evaluateTripsLocked() {
	if g.state == StateOpen {
		return
	}
	switch {
	case drawdownPercent(g.equity, g.peakEquity) >= g.cfg.MaxDrawdownPercent:
		g.tripLocked(TripDrawdown)
	case g.consecutiveLosses >= g.cfg.MaxConsecutiveLosses:
		g.tripLocked(TripConsecutiveLosses)
	case g.dailyPnL <= -g.cfg.DailyLossLimit:
		g.tripLocked(TripDailyLoss)
	}
}

func (g *Gate) tripLocked(reason string) {
	g.state = StateOpen
	g.tripReason = reason
	g.trippedAt = g.now()
}

// rollDayLocked resets daily counters and closes the circuit when the UTC
// date has advanced. Day rollover and ManualReset are the only transitions
// out of OPEN.
func (g *Gate) rollDayLocked() {
	day := g.now().UTC().Format("2006-01-02")
	if day == g.tradingDay {
		return
	}
	g.tradingDay = day
	g.dailyPnL = 0
	g.approvedToday = 0
	g.rejectedToday = 0
	g.state = StateClosed
	g.tripReason = ""
	g.trippedAt = time.Time{}
}

// ManualReset closes the circuit and clears the loss streak. Operator action
// via the control API.
func (g *Gate) ManualReset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = StateClosed
	g.tripReason = ""
	g.trippedAt = time.Time{}
	g.consecutiveLosses = 0
}

// State returns the current circuit state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Snapshot returns a copy of the account state.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	total := g.wins + g.losses
	winRate := 0.0
	if total > 0 {
		winRate = float64(g.wins) / float64(total)
	}

	snap := Snapshot{
		State:             g.state,
		Equity:            g.equity,
		PeakEquity:        g.peakEquity,
		DrawdownFromPeak:  drawdownPercent(g.equity, g.peakEquity),
		DailyPnL:          g.dailyPnL,
		ConsecutiveLosses: g.consecutiveLosses,
		Wins:              g.wins,
		Losses:            g.losses,
		TotalTrades:       total,
		WinRate:           winRate,
		OpenPositions:     g.openPositions,
		TradingDay:        g.tradingDay,
		TripReason:        g.tripReason,
		ApprovedToday:     g.approvedToday,
		RejectedToday:     g.rejectedToday,
	}
	if !g.trippedAt.IsZero() {
		snap.TrippedAt = g.trippedAt.UnixMilli()
	}
	if !g.lastApproval.IsZero() {
		snap.LastApprovalMillis = g.lastApproval.UnixMilli()
	}
	return snap
}

// Decisions returns the most recent gate decisions, newest last.
func (g *Gate) Decisions() []Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Decision(nil), g.decisions...)
}

func (g *Gate) rejectLocked(d Decision, reason string) Decision {
	d.Approved = false
	d.Reason = reason
	g.rejectedToday++
	g.recordDecisionLocked(d)
	return d
}

func (g *Gate) recordDecisionLocked(d Decision) {
	g.decisions = append(g.decisions, d)
	if len(g.decisions) > decisionLogCap {
		g.decisions = g.decisions[len(g.decisions)-decisionLogCap:]
	}
}
