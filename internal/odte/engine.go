package odte

import "github.com/steinwealth/easyorb/internal/model"

// Risk:reward acceptance band for a built debit spread. A spread paying
// too little for its width is overpriced theta; one paying too much for
// its width barely moves on a clean breakout.
const (
	MinRiskReward = 1.5
	MaxRiskReward = 2.5
)

// DecideInput bundles everything the Convex Eligibility Filter and
// contract selection need to turn one ORB signal into a sized 0DTE
// candidate in a single call, so session doesn't have to know the
// filter's internal ordering.
type DecideInput struct {
	Signal           model.ORBSignal
	ORB              model.ORBData
	UnderlyingADV    float64
	Chain            []model.OptionContract // same-expiry calls or puts matching Signal.Side
	MinutesSinceOpen int
	BreakoutPctNow   float64
	AvailableCapital float64
	TotalCapital     float64
}

// Decision is Decide's verdict: either Eligible with a sized debit spread
// ready for order construction, or not, with the gate detail explaining why.
type Decision struct {
	Eligible bool
	Reasons  []GateResult
	Spread   model.Spread
	Notional float64
	Quantity int
}

// Decide runs contract selection, the seven-gate eligibility filter, and
// position sizing against one candidate signal. A red day or a RedDay
// detector error should be checked by the caller before calling Decide —
// it is a gate on whether to evaluate 0DTE candidates at all, not a
// per-signal gate.
func Decide(in DecideInput, g GateThresholds) Decision {
	best, _, ok := SelectContract(in.Chain, model.DebitSpread)
	if !ok {
		return Decision{}
	}

	eligible, _, results := Evaluate(EligibilityInput{
		Signal:           in.Signal,
		ORB:              in.ORB,
		UnderlyingADV:    in.UnderlyingADV,
		BestContract:     best,
		MinutesSinceOpen: in.MinutesSinceOpen,
		BreakoutPctNow:   in.BreakoutPctNow,
	}, g)
	if !eligible {
		return Decision{Reasons: results}
	}

	kind := model.Call
	if in.Signal.Side == model.Short {
		kind = model.Put
	}
	spread, ok := BuildDebitSpread(in.Signal.Ticker, in.ORB.TradingDate, kind, in.Chain, in.Signal.PriceAtEmit)
	if !ok {
		return Decision{Reasons: results}
	}
	if rr := spread.RiskReward(); rr < MinRiskReward || rr > MaxRiskReward {
		return Decision{Reasons: results}
	}

	notional := PositionNotional(in.AvailableCapital, in.TotalCapital, spread.DebitCost)
	qty := QuantityForNotional(notional, spread.DebitCost)
	if qty < 1 {
		return Decision{Reasons: results}
	}

	return Decision{Eligible: true, Reasons: results, Spread: spread, Notional: notional, Quantity: qty}
}
