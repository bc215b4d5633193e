// Package model holds the data entities shared across components.
// Components other than the one that owns a field's mutation treat these
// structs as read-only snapshots — see each field's owning component in
// the doc comment.
package model

import "time"

// Side is a position or signal direction.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// SignalType distinguishes the two ORB signal families.
type SignalType string

const (
	SignalSO  SignalType = "SO"
	SignalORR SignalType = "ORR"
)

// PositionStatus is the lifecycle state of a Position or OptionsPosition.
type PositionStatus string

const (
	StatusOpen    PositionStatus = "open"
	StatusPartial PositionStatus = "partial"
	StatusClosed  PositionStatus = "closed"
)

// TrailingMode tags a position with the exit-engine trailing profile it
// follows.
type TrailingMode string

const (
	ModeExplosive TrailingMode = "explosive"
	ModeMoon      TrailingMode = "moon"
	ModeBalanced  TrailingMode = "balanced"
)

// Substate is C8's internal state-machine label for a position.
type Substate string

const (
	SubstateFresh     Substate = "FRESH"
	SubstateArmed     Substate = "ARMED"
	SubstateBreakeven Substate = "BREAKEVEN"
	SubstateTrailing  Substate = "TRAILING"
	SubstatePartial   Substate = "PARTIAL"
	SubstateClosed    Substate = "CLOSED"
)

// Symbol is a static watchlist entry, loaded once from the watchlist CSV.
type Symbol struct {
	Ticker          string
	Tier            int
	IsLeveraged     bool
	IsInverse       bool
	InverseOf       string
	Sector          string
	StrikeIncrement float64
}

// Indicators is the technical-indicator snapshot carried on an ORBSignal.
type Indicators struct {
	RSI             float64
	MACDHist        float64
	ATR             float64
	BollingerUpper  float64
	BollingerLower  float64
	EMA9            float64
	EMA20           float64
	RSVsSPY         float64
	VWAPDistancePct float64
}

// ORBData is the opening range captured once per symbol per trading day.
// Owned by orb.Engine; immutable after capture.
type ORBData struct {
	Ticker        string
	TradingDate   string // YYYY-MM-DD
	ORBHigh       float64
	ORBLow        float64
	ORBRange      float64
	ORBVolumeAvg  float64
	ORBRangePct   float64
	CapturedAt    time.Time
}

// ORBSignal is a candidate breakout emitted by orb.Engine. At most one
// SO and one ORR are ever emitted per (ticker, trading date).
type ORBSignal struct {
	Ticker       string
	TradingDate  string
	SignalType   SignalType
	Side         Side
	PriceAtEmit  float64
	VWAP         float64
	Volume       float64
	VolumeRatio  float64
	Indicators   Indicators
	Confidence   float64
	EmittedAt    time.Time

	// ORBHigh/ORBLow freeze the opening range the signal broke out of, so a
	// position built from it can check structural invalidation (midpoint or
	// breakout-candle reclaim) without re-querying the ORB engine.
	ORBHigh float64
	ORBLow  float64

	// EligibilityScore carries the Convex Eligibility Filter score through
	// to the priority ranker as a carry-through factor.
	EligibilityScore float64
}

// RankedSignal augments an ORBSignal with C6's score/rank/allocation.
type RankedSignal struct {
	ORBSignal
	PriorityScore     float64
	PriorityRank      int
	CapitalAllocated  float64
}

// Position is a live equity position. Only internal/exit.Engine may mutate
// CurrentStopLoss, CurrentTakeProfit, Status and the high/low watermarks
// after creation.
type Position struct {
	PositionID         string
	Symbol             string
	Side               Side
	SignalType         SignalType
	Mode               TrailingMode
	Substate           Substate
	Quantity           float64
	OriginalQuantity   float64
	EntryPrice         float64
	EntryTime          time.Time
	CurrentPrice       float64
	CurrentStopLoss    float64
	CurrentTakeProfit  float64
	HighestPrice       float64
	LowestPrice        float64
	UnrealizedPnL      float64
	Status             PositionStatus
	TrailingActivated  bool
	BreakevenAchieved  bool
	EntryBarVolatility float64 // ATR at entry

	// ORBMidpoint and ORBExtreme freeze the opening range the entry signal
	// broke out of, for the exit engine's structural invalidation and
	// runner-reclaim checks. ORBExtreme is the side the breakout cleared
	// (ORBHigh for LONG, ORBLow for SHORT).
	ORBMidpoint float64
	ORBExtreme  float64

	// Bookkeeping used by the exit engine; not part of the public contract
	// but persisted in the snapshot.
	LastStopChangeAt  time.Time
	PartialsTaken     int
	PeakUnrealizedPct float64
	LastMonitorTS     time.Time
}

// OptionKind distinguishes calls from puts.
type OptionKind string

const (
	Call OptionKind = "call"
	Put  OptionKind = "put"
)

// OptionContract is one leg of the chain.
type OptionContract struct {
	Symbol       string
	Strike       float64
	Expiry       string
	Kind         OptionKind
	Bid          float64
	Ask          float64
	Last         float64
	Volume       int64
	OpenInterest int64
	Delta        float64
	Gamma        float64
	Theta        float64
	Vega         float64
	IV           float64
	FetchedAt    time.Time
}

// Mid is the mid-price of the contract.
func (c OptionContract) Mid() float64 { return (c.Bid + c.Ask) / 2 }

// SpreadPct is the bid-ask spread as a fraction of mid.
func (c OptionContract) SpreadPct() float64 {
	mid := c.Mid()
	if mid <= 0 {
		return 1
	}
	return (c.Ask - c.Bid) / mid
}

// SpreadKind distinguishes debit vs credit verticals.
type SpreadKind string

const (
	DebitSpread  SpreadKind = "debit_spread"
	CreditSpread SpreadKind = "credit_spread"
)

// Spread is a two-leg vertical option position.
type Spread struct {
	Symbol      string
	Expiry      string
	Kind        SpreadKind
	OptionKind  OptionKind
	LongLeg     OptionContract
	ShortLeg    OptionContract
	DebitCost   float64 // set for debit spreads
	Credit      float64 // set for credit spreads
	MaxProfit   float64
	MaxLoss     float64
	BreakEven   float64
}

// RiskReward returns max_profit/max_loss, or 0 if max_loss is non-positive.
func (s Spread) RiskReward() float64 {
	if s.MaxLoss <= 0 {
		return 0
	}
	return s.MaxProfit / s.MaxLoss
}

// OptionsPositionKind distinguishes the three 0DTE position shapes.
type OptionsPositionKind string

const (
	KindDebitSpread  OptionsPositionKind = "debit_spread"
	KindCreditSpread OptionsPositionKind = "credit_spread"
	KindLotto        OptionsPositionKind = "lotto"
)

// OptionsPosition is a live 0DTE position. Only internal/odte's exit engine
// may mutate it after creation (mirrors Position's single-writer rule).
type OptionsPosition struct {
	PositionID       string
	Symbol           string
	Kind             OptionsPositionKind
	Side             Side
	EntryPrice       float64 // debit paid, credit received, or lotto premium
	EntryTime        time.Time
	Quantity         int
	OriginalQuantity int
	CurrentValue     float64
	UnrealizedPnL    float64
	RealizedPnL      float64
	Status           PositionStatus
	Substate         Substate
	Spread           *Spread         // set for debit/credit spreads
	Contract         *OptionContract // set for lottos
	PartialsTaken    int
	LastStopChangeAt time.Time
	LastMonitorTS    time.Time
}

// PnLPct returns the position's P&L percentage's sign
// convention: debit spreads/lottos use (current-entry)/entry; credit
// spreads use (entry-current)/entry where current is cost-to-close.
func (p *OptionsPosition) PnLPct() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Kind == KindCreditSpread {
		return (p.EntryPrice - p.CurrentValue) / p.EntryPrice
	}
	return (p.CurrentValue - p.EntryPrice) / p.EntryPrice
}

// SessionPhase is the trading-day phase computed by internal/clock.
type SessionPhase string

const (
	PhaseDark     SessionPhase = "DARK"
	PhasePrep     SessionPhase = "PREP"
	PhaseOpen     SessionPhase = "OPEN"
	PhaseCooldown SessionPhase = "COOLDOWN"
)
