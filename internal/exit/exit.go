// Package exit implements the Stealth Trailing / Exit Engine (C8): the
// single writer of every open Position's stop, take-profit, and substate.
// It evaluates a strict-priority ladder of exit triggers on every monitor
// tick and serializes all resulting order submissions through one
// close-intent queue so a position is never closed twice.
package exit

import (
	"context"
	"sync"
	"time"

	"github.com/steinwealth/easyorb/internal/alert"
	"github.com/steinwealth/easyorb/internal/broker"
	"github.com/steinwealth/easyorb/internal/clock"
	"github.com/steinwealth/easyorb/internal/compound"
	"github.com/steinwealth/easyorb/internal/logger"
	"github.com/steinwealth/easyorb/internal/model"
)

// Tick is one monitor pass's market input for a position.
type Tick struct {
	Price        float64
	VWAP         float64
	BidAskSpread float64 // current ask-bid, used to floor the trailing distance
	Stale        bool    // true if the quote is older than the engine's staleness budget
	Now          time.Time
}

// Reason labels why a close or partial fired, used for logging and
// persistence; never surfaced to the broker.
type Reason string

const (
	ReasonFailSafe     Reason = "fail_safe_stale_data"
	ReasonGapRisk      Reason = "gap_risk"
	ReasonHardStop     Reason = "hard_stop"
	ReasonInvalidation Reason = "invalidation_stop"
	ReasonTimeStop     Reason = "time_stop"
	ReasonPartial      Reason = "profit_target_partial"
	ReasonRunner       Reason = "runner_trail_stop"
	ReasonEOD          Reason = "eod_flatten"
)

const gapThresholdPct = 0.03 // single-tick move beyond this is treated as a gap, not a trail

// Time-stop gate: a position that hasn't moved favorably by this much
// within timeStopMinutes of entry is going nowhere and gets flattened.
const (
	timeStopMinutes    = 25
	timeStopFavorable  = 0.05
)

// Profit-target ladder for equities and debit spreads, flat across every
// trailing mode: +3% closes half, +7% closes another quarter of the
// original size, and the remainder rides as the runner.
const (
	partialTier1Pct      = 0.03
	partialTier1Fraction = 0.5
	partialTier2Pct      = 0.07
	partialTier2Fraction = 0.25
)

// tracked wraps a Position with its own lock so one position's monitor
// tick never blocks another's, while still serializing concurrent ticks
// against the same position (e.g. a late-arriving quote racing a fresh
// one).
type tracked struct {
	mu             sync.Mutex
	pos            model.Position
	closeRequested bool
	lastPrice      float64
}

// CloseIntent is a single close or partial-close order to submit, drained
// serially by RunCloseWorker so a position can never be double-submitted.
type CloseIntent struct {
	PositionID string
	Symbol     string
	Side       model.Side
	Quantity   float64
	Reason     Reason
	Full       bool
}

// Engine is the Stealth Trailing / Exit Engine.
type Engine struct {
	mu        sync.RWMutex
	positions map[string]*tracked
	clock     *clock.Clock
	broker    broker.Broker
	compound  *compound.Engine
	closeCh   chan CloseIntent
	log       *logger.Logger
	alerts    alert.Sink
}

// New creates an Engine. compoundEngine may be nil if the caller frees
// capital another way (e.g. in a test harness).
func New(clk *clock.Clock, b broker.Broker, compoundEngine *compound.Engine) *Engine {
	return &Engine{
		positions: make(map[string]*tracked),
		clock:     clk,
		broker:    b,
		compound:  compoundEngine,
		closeCh:   make(chan CloseIntent, 64),
		log:       logger.For("exit"),
		alerts:    alert.NewLogSink(),
	}
}

// SetAlertSink wires where invariant-violation alerts are delivered.
func (e *Engine) SetAlertSink(sink alert.Sink) { e.alerts = sink }

// Register begins tracking a newly opened position.
func (e *Engine) Register(pos model.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions[pos.PositionID] = &tracked{pos: pos, lastPrice: pos.EntryPrice}
}

// Position returns a snapshot of the tracked position, or ok=false if not
// tracked (e.g. already closed and reaped).
func (e *Engine) Position(id string) (model.Position, bool) {
	e.mu.RLock()
	t, ok := e.positions[id]
	e.mu.RUnlock()
	if !ok {
		return model.Position{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos, true
}

// Open returns PositionIDs for every currently tracked (non-closed)
// position, for the caller's monitor loop to iterate.
func (e *Engine) Open() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.positions))
	for id, t := range e.positions {
		t.mu.Lock()
		closed := t.pos.Status == model.StatusClosed
		t.mu.Unlock()
		if !closed {
			ids = append(ids, id)
		}
	}
	return ids
}

// MonitorTick evaluates one position against tick and mutates its stop,
// substate, and watermarks in place. If the evaluation decides to close or
// partially close, it enqueues a CloseIntent and returns it; the caller
// does not need to act further, RunCloseWorker handles submission.
func (e *Engine) MonitorTick(id string, tick Tick) *CloseIntent {
	e.mu.RLock()
	t, ok := e.positions[id]
	e.mu.RUnlock()
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pos.Status == model.StatusClosed || t.closeRequested {
		return nil
	}

	intent := e.evaluate(t, tick)
	if intent != nil {
		t.closeRequested = true
		select {
		case e.closeCh <- *intent:
		default:
			e.log.Warnf("close-intent queue full, dropping enqueue for %s (will retry next tick)", id)
			t.closeRequested = false
			return nil
		}
	}
	return intent
}

// evaluate runs the strict-priority trigger ladder against t's current
// position, mutating stop/substate/watermarks, and returns a CloseIntent
// if any tier fires. Callers must hold t.mu.
func (e *Engine) evaluate(t *tracked, tick Tick) *CloseIntent {
	pos := &t.pos
	pos.CurrentPrice = tick.Price
	pos.LastMonitorTS = tick.Now
	if pos.Side == model.Long {
		if tick.Price > pos.HighestPrice {
			pos.HighestPrice = tick.Price
		}
	} else {
		if pos.LowestPrice == 0 || tick.Price < pos.LowestPrice {
			pos.LowestPrice = tick.Price
		}
	}
	pnlPct := SideAwarePnLPct(*pos, tick.Price)
	if pnlPct > pos.PeakUnrealizedPct {
		pos.PeakUnrealizedPct = pnlPct
	}

	// Tier 1: fail-safe. Stale data means every downstream computation
	// (stop distance, invalidation, trailing) is untrustworthy; flatten now.
	if tick.Stale {
		return e.closeIntent(pos, ReasonFailSafe, 1.0)
	}

	// Tier 1b: gap risk. A single-tick move past the gap threshold can jump
	// clean through a resting stop; treat it as a fail-safe rather than
	// trusting the stop level to have caught it.
	if t.lastPrice > 0 {
		move := absFloat(tick.Price-t.lastPrice) / t.lastPrice
		if move >= gapThresholdPct {
			t.lastPrice = tick.Price
			return e.closeIntent(pos, ReasonGapRisk, 1.0)
		}
	}
	t.lastPrice = tick.Price

	profile := profileFor(pos.Mode)

	// Tier 2: hard stop.
	if pos.CurrentStopLoss > 0 {
		breached := (pos.Side == model.Long && tick.Price <= pos.CurrentStopLoss) ||
			(pos.Side == model.Short && tick.Price >= pos.CurrentStopLoss)
		if breached {
			return e.closeIntent(pos, ReasonHardStop, 1.0)
		}
	}

	// Tier 3: invalidation stop (structural), only before the position has
	// armed. Once armed the hard stop and trailing logic below take over.
	if !pos.TrailingActivated && (pnlPct <= -profile.InvalidationPct || structurallyInvalidated(pos, tick)) {
		return e.closeIntent(pos, ReasonInvalidation, 1.0)
	}

	// Tier 4: time stop. A position that hasn't moved favorably by
	// timeStopFavorable within timeStopMinutes of entry is flattened; one
	// that already has is left alone even past the window.
	if tick.Now.Sub(pos.EntryTime) >= timeStopMinutes*time.Minute && pos.PeakUnrealizedPct < timeStopFavorable {
		return e.closeIntent(pos, ReasonTimeStop, 1.0)
	}

	// Arm / breakeven / trail state progression. Stops only ever move in
	// the profitable direction (monotonic tightening), never loosen.
	prevStop := pos.CurrentStopLoss
	e.advanceSubstate(pos, profile, pnlPct, tick)
	if e.stopMovedAgainstSide(pos, prevStop) {
		return e.invariantViolation(pos, "stop moved against side", prevStop)
	}

	// Tier 5: profit-target ladder. Two rungs against the original size:
	// +3% closes 50%, +7% closes another 25%, the rest becomes the runner.
	if pos.PartialsTaken == 0 && pnlPct >= partialTier1Pct {
		pos.PartialsTaken = 1
		pos.Substate = model.SubstatePartial
		qty := pos.OriginalQuantity * partialTier1Fraction
		pos.Quantity -= qty
		return &CloseIntent{PositionID: pos.PositionID, Symbol: pos.Symbol, Side: pos.Side, Quantity: qty, Reason: ReasonPartial, Full: false}
	}
	if pos.PartialsTaken == 1 && pnlPct >= partialTier2Pct {
		pos.PartialsTaken = 2
		qty := pos.OriginalQuantity * partialTier2Fraction
		pos.Quantity -= qty
		return &CloseIntent{PositionID: pos.PositionID, Symbol: pos.Symbol, Side: pos.Side, Quantity: qty, Reason: ReasonPartial, Full: false}
	}

	// Tier 6: runner exit, only relevant after a partial has been taken:
	// the mode's trailing stop, or a VWAP/ORB-midpoint reclaim against
	// direction.
	if pos.PartialsTaken > 0 {
		runnerStop := runnerStopPrice(*pos, profile)
		breached := (pos.Side == model.Long && tick.Price <= runnerStop) ||
			(pos.Side == model.Short && tick.Price >= runnerStop)
		if breached || reclaimedAgainstDirection(pos, tick) {
			return e.closeIntent(pos, ReasonRunner, 1.0)
		}
	}

	// Tier 7: end-of-day flatten. No 0DTE-style expiry risk on equities,
	// but the engine never carries an intraday position overnight.
	if !e.clock.Close(tick.Now).After(tick.Now.Add(5 * time.Minute)) {
		return e.closeIntent(pos, ReasonEOD, 1.0)
	}

	return nil
}

func (e *Engine) advanceSubstate(pos *model.Position, profile Profile, pnlPct float64, tick Tick) {
	switch pos.Substate {
	case model.SubstateFresh:
		if pnlPct >= profile.ArmThresholdPct {
			pos.Substate = model.SubstateArmed
			pos.TrailingActivated = true
			e.setStopMonotonic(pos, trailStopPrice(*pos, tick))
		}
	case model.SubstateArmed:
		if pnlPct >= profile.BreakevenThresholdPct {
			pos.Substate = model.SubstateBreakeven
			pos.BreakevenAchieved = true
			e.setStopMonotonic(pos, pos.EntryPrice)
		} else {
			e.setStopMonotonic(pos, trailStopPrice(*pos, tick))
		}
	case model.SubstateBreakeven, model.SubstateTrailing:
		pos.Substate = model.SubstateTrailing
		e.setStopMonotonic(pos, trailStopPrice(*pos, tick))
	}
}

// setStopMonotonic only moves the stop toward the profitable side, never
// loosens it.
func (e *Engine) setStopMonotonic(pos *model.Position, candidate float64) {
	if pos.CurrentStopLoss == 0 {
		pos.CurrentStopLoss = candidate
		pos.LastStopChangeAt = time.Now()
		return
	}
	if pos.Side == model.Long && candidate > pos.CurrentStopLoss {
		pos.CurrentStopLoss = candidate
		pos.LastStopChangeAt = time.Now()
	} else if pos.Side == model.Short && candidate < pos.CurrentStopLoss {
		pos.CurrentStopLoss = candidate
		pos.LastStopChangeAt = time.Now()
	}
}

// trailStopPrice measures the trailing distance off the position's peak
// (HighestPrice/LowestPrice), not the current tick price, so a pullback
// that doesn't make a new peak never moves the stop.
func trailStopPrice(pos model.Position, tick Tick) float64 {
	if pos.Side == model.Long {
		d := trailingDistance(pos.Mode, pos.HighestPrice, pos.EntryBarVolatility, pos.PeakUnrealizedPct, tick.BidAskSpread)
		return pos.HighestPrice - d
	}
	d := trailingDistance(pos.Mode, pos.LowestPrice, pos.EntryBarVolatility, pos.PeakUnrealizedPct, tick.BidAskSpread)
	return pos.LowestPrice + d
}

// structurallyInvalidated reports whether price has reclaimed the level it
// broke out from against the position's direction: current VWAP, the
// opening range's midpoint, or the ORB extreme the breakout candle cleared
// (a full retrace of that candle's move).
func structurallyInvalidated(pos *model.Position, tick Tick) bool {
	if pos.Side == model.Long {
		if tick.VWAP > 0 && tick.Price < tick.VWAP {
			return true
		}
		if pos.ORBMidpoint > 0 && tick.Price < pos.ORBMidpoint {
			return true
		}
		return pos.ORBExtreme > 0 && tick.Price <= pos.ORBExtreme
	}
	if tick.VWAP > 0 && tick.Price > tick.VWAP {
		return true
	}
	if pos.ORBMidpoint > 0 && tick.Price > pos.ORBMidpoint {
		return true
	}
	return pos.ORBExtreme > 0 && tick.Price >= pos.ORBExtreme
}

// reclaimedAgainstDirection is the runner-exit's lighter reclaim check: a
// VWAP or ORB-midpoint reclaim against direction, without the breakout
// candle's fully-retraced level (the runner is already past that by the
// time a partial has fired).
func reclaimedAgainstDirection(pos *model.Position, tick Tick) bool {
	if pos.Side == model.Long {
		if tick.VWAP > 0 && tick.Price < tick.VWAP {
			return true
		}
		return pos.ORBMidpoint > 0 && tick.Price < pos.ORBMidpoint
	}
	if tick.VWAP > 0 && tick.Price > tick.VWAP {
		return true
	}
	return pos.ORBMidpoint > 0 && tick.Price > pos.ORBMidpoint
}

func runnerStopPrice(pos model.Position, profile Profile) float64 {
	if pos.Side == model.Long {
		return pos.HighestPrice * (1 - profile.RunnerTrailPct)
	}
	return pos.LowestPrice * (1 + profile.RunnerTrailPct)
}

// stopMovedAgainstSide reports whether the stop just set by advanceSubstate
// loosened instead of tightened, which should be structurally impossible
// via setStopMonotonic — this is a defense-in-depth check against a future
// regression in that invariant, not an expected code path.
func (e *Engine) stopMovedAgainstSide(pos *model.Position, prevStop float64) bool {
	if prevStop == 0 || pos.CurrentStopLoss == 0 {
		return false
	}
	if pos.Side == model.Long {
		return pos.CurrentStopLoss < prevStop
	}
	return pos.CurrentStopLoss > prevStop
}

// invariantViolation force-closes the position and alerts, per the
// fail-fast handling every InvariantViolation gets: the affected position
// is force-closed and an alert always fires.
func (e *Engine) invariantViolation(pos *model.Position, detail string, prevStop float64) *CloseIntent {
	e.log.Errorf("invariant violation on %s: %s (prev stop %.4f, new stop %.4f)", pos.Symbol, detail, prevStop, pos.CurrentStopLoss)
	if e.alerts != nil {
		e.alerts.Notify(alert.Event{
			Severity:  alert.SeverityCritical,
			Component: "exit",
			Kind:      "invariant_violation",
			Message:   detail,
			Fields: map[string]any{
				"position_id": pos.PositionID,
				"symbol":      pos.Symbol,
				"prev_stop":   prevStop,
				"new_stop":    pos.CurrentStopLoss,
			},
		})
	}
	return e.closeIntent(pos, ReasonHardStop, 1.0)
}

func (e *Engine) closeIntent(pos *model.Position, reason Reason, fraction float64) *CloseIntent {
	pos.Substate = model.SubstateClosed
	pos.Status = model.StatusClosed
	return &CloseIntent{
		PositionID: pos.PositionID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Quantity:   pos.Quantity,
		Reason:     reason,
		Full:       true,
	}
}

// SideAwarePnLPct returns a Long/Short-aware unrealized P&L percentage
//: a Short position gains when price falls.
func SideAwarePnLPct(pos model.Position, currentPrice float64) float64 {
	if pos.EntryPrice == 0 {
		return 0
	}
	if pos.Side == model.Short {
		return (pos.EntryPrice - currentPrice) / pos.EntryPrice
	}
	return (currentPrice - pos.EntryPrice) / pos.EntryPrice
}

// RunCloseWorker drains the close-intent queue serially, submitting each
// close/partial to the broker and freeing capital via the compound engine
// on success. Runs until ctx is cancelled.
func (e *Engine) RunCloseWorker(ctx context.Context, accountID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case intent := <-e.closeCh:
			e.submitClose(ctx, accountID, intent)
		}
	}
}

func (e *Engine) submitClose(ctx context.Context, accountID string, intent CloseIntent) {
	side := broker.SellClose
	if intent.Side == model.Short {
		side = broker.BuyOpen
	}
	order := broker.Order{
		Kind:      broker.KindEquity,
		PriceType: broker.Market,
		Term:      "GOOD_FOR_DAY",
		Legs:      []broker.OrderLeg{{Symbol: intent.Symbol, Side: side, Qty: intent.Quantity}},
	}
	preview, err := e.broker.PreviewOrder(ctx, accountID, order)
	if err != nil {
		e.log.Errorf("close preview failed for %s (%s): %v", intent.Symbol, intent.Reason, err)
		e.clearCloseRequested(intent.PositionID)
		return
	}
	res, err := e.broker.PlaceOrder(ctx, accountID, order, preview.PreviewID)
	if err != nil {
		e.log.Errorf("close order failed for %s (%s): %v", intent.Symbol, intent.Reason, err)
		e.clearCloseRequested(intent.PositionID)
		return
	}

	e.mu.RLock()
	t, ok := e.positions[intent.PositionID]
	e.mu.RUnlock()
	if !ok {
		return
	}
	t.mu.Lock()
	entryNotional := intent.Quantity * t.pos.EntryPrice
	realizedPnL := intent.Quantity * (res.FillPrice - t.pos.EntryPrice)
	if t.pos.Side == model.Short {
		realizedPnL = intent.Quantity * (t.pos.EntryPrice - res.FillPrice)
	}
	if !intent.Full {
		t.closeRequested = false
	}
	t.mu.Unlock()

	if e.compound != nil {
		e.compound.OnPositionClosed(string(t.pos.SignalType), entryNotional, realizedPnL)
	}
	e.log.Infof("closed %s qty=%.2f reason=%s fill=%.2f pnl=%.2f", intent.Symbol, intent.Quantity, intent.Reason, res.FillPrice, realizedPnL)
}

func (e *Engine) clearCloseRequested(id string) {
	e.mu.RLock()
	t, ok := e.positions[id]
	e.mu.RUnlock()
	if !ok {
		return
	}
	t.mu.Lock()
	t.closeRequested = false
	t.mu.Unlock()
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
