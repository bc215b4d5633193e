// Package odte implements the 0DTE options layer (C9): the Convex
// Eligibility Filter that decides whether an ORB signal is worth trading
// as same-day options rather than equity, contract/spread selection, and
// the options-specific exit ladder.
package odte

import (
	"fmt"

	"github.com/steinwealth/easyorb/internal/model"
)

// GateThresholds are the Convex Eligibility Filter's tunable floors. All
// seven gates must pass for a signal to be 0DTE-eligible.
type GateThresholds struct {
	MinADV               float64 // underlying average daily dollar volume floor
	MaxSpreadPct         float64 // option bid-ask spread as a fraction of mid
	MinBreakoutPct       float64 // re-checked breakout magnitude at selection time
	MinVolumeRatio       float64
	EarliestMinutesAfterOpen int // 0DTE entries need the morning session to confirm direction
	LatestMinutesAfterOpen  int // too late in the day leaves no time for the premium to move
	MinPremium           float64 // contracts cheaper than this are usually untradeable noise
	MaxPremium           float64 // contracts this expensive eat too much of the sizing budget
	MinOpenInterest      int64
}

// DefaultGates are the filter's default thresholds.
var DefaultGates = GateThresholds{
	MinADV:                   10_000_000,
	MaxSpreadPct:             0.12,
	MinBreakoutPct:           0.003,
	MinVolumeRatio:           1.3,
	EarliestMinutesAfterOpen: 45,
	LatestMinutesAfterOpen:   210,
	MinPremium:               0.15,
	MaxPremium:               6.00,
	MinOpenInterest:          100,
}

// GateResult is one gate's pass/fail verdict.
type GateResult struct {
	Name   string
	Passed bool
	Detail string
}

// EligibilityInput carries everything the seven gates need.
type EligibilityInput struct {
	Signal            model.ORBSignal
	ORB               model.ORBData
	UnderlyingADV      float64
	BestContract       model.OptionContract
	MinutesSinceOpen   int
	BreakoutPctNow     float64
}

// Evaluate runs all seven gates and returns the pass/fail detail for each
// plus the overall eligibility and a carry-through score: the fraction of
// gates passed, with every gate counted equally (the gates carry no
// weights).
func Evaluate(in EligibilityInput, g GateThresholds) (eligible bool, score float64, results []GateResult) {
	results = []GateResult{
		gateLiquidity(in, g),
		gateADV(in, g),
		gateBreakout(in, g),
		gateVolume(in, g),
		gateTimeOfDay(in, g),
		gatePremium(in, g),
		gateOpenInterest(in, g),
	}

	passCount := 0
	for _, r := range results {
		if r.Passed {
			passCount++
		}
	}
	eligible = passCount == len(results)
	score = float64(passCount) / float64(len(results))
	return eligible, score, results
}

func gateLiquidity(in EligibilityInput, g GateThresholds) GateResult {
	spreadPct := in.BestContract.SpreadPct()
	passed := spreadPct <= g.MaxSpreadPct
	return GateResult{"liquidity", passed, fmt.Sprintf("spread=%.1f%% max=%.1f%%", spreadPct*100, g.MaxSpreadPct*100)}
}

func gateADV(in EligibilityInput, g GateThresholds) GateResult {
	passed := in.UnderlyingADV >= g.MinADV
	return GateResult{"adv", passed, fmt.Sprintf("adv=%.0f min=%.0f", in.UnderlyingADV, g.MinADV)}
}

func gateBreakout(in EligibilityInput, g GateThresholds) GateResult {
	passed := in.BreakoutPctNow >= g.MinBreakoutPct
	return GateResult{"breakout", passed, fmt.Sprintf("breakout=%.3f%% min=%.3f%%", in.BreakoutPctNow*100, g.MinBreakoutPct*100)}
}

func gateVolume(in EligibilityInput, g GateThresholds) GateResult {
	passed := in.Signal.VolumeRatio >= g.MinVolumeRatio
	return GateResult{"volume", passed, fmt.Sprintf("ratio=%.2fx min=%.2fx", in.Signal.VolumeRatio, g.MinVolumeRatio)}
}

func gateTimeOfDay(in EligibilityInput, g GateThresholds) GateResult {
	passed := in.MinutesSinceOpen >= g.EarliestMinutesAfterOpen && in.MinutesSinceOpen <= g.LatestMinutesAfterOpen
	return GateResult{"time_of_day", passed, fmt.Sprintf("minutes=%d window=[%d,%d]", in.MinutesSinceOpen, g.EarliestMinutesAfterOpen, g.LatestMinutesAfterOpen)}
}

func gatePremium(in EligibilityInput, g GateThresholds) GateResult {
	mid := in.BestContract.Mid()
	passed := mid >= g.MinPremium && mid <= g.MaxPremium
	return GateResult{"premium", passed, fmt.Sprintf("mid=%.2f window=[%.2f,%.2f]", mid, g.MinPremium, g.MaxPremium)}
}

func gateOpenInterest(in EligibilityInput, g GateThresholds) GateResult {
	passed := in.BestContract.OpenInterest >= g.MinOpenInterest
	return GateResult{"open_interest", passed, fmt.Sprintf("oi=%d min=%d", in.BestContract.OpenInterest, g.MinOpenInterest)}
}

// ExecutionTimeGate is the hard gate re-checked immediately before order
// submission: even an eligible signal is rejected if the
// book has gone wide since selection.
func ExecutionTimeGate(contract model.OptionContract, g GateThresholds) (bool, string) {
	if contract.Bid <= 0 || contract.Ask <= 0 {
		return false, "no two-sided market"
	}
	spreadPct := contract.SpreadPct()
	if spreadPct > g.MaxSpreadPct {
		return false, fmt.Sprintf("spread widened to %.1f%%", spreadPct*100)
	}
	return true, ""
}
