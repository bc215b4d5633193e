package odte

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/steinwealth/easyorb/internal/model"
)

func sampleContract() model.OptionContract {
	return model.OptionContract{
		Symbol: "AAPL240920C00190000", Strike: 190, Kind: model.Call,
		Bid: 1.90, Ask: 2.00, Delta: 0.42, OpenInterest: 500,
	}
}

func TestEvaluateAllGatesPass(t *testing.T) {
	in := EligibilityInput{
		Signal:           model.ORBSignal{VolumeRatio: 2.0},
		UnderlyingADV:    50_000_000,
		BestContract:     sampleContract(),
		MinutesSinceOpen: 60,
		BreakoutPctNow:   0.005,
	}
	eligible, score, results := Evaluate(in, DefaultGates)
	require.True(t, eligible)
	require.Equal(t, 1.0, score)
	require.Len(t, results, 7)
}

func TestEvaluateFailsOnWideSpread(t *testing.T) {
	c := sampleContract()
	c.Bid, c.Ask = 1.00, 2.50 // ~86% spread
	in := EligibilityInput{
		Signal:           model.ORBSignal{VolumeRatio: 2.0},
		UnderlyingADV:    50_000_000,
		BestContract:     c,
		MinutesSinceOpen: 60,
		BreakoutPctNow:   0.005,
	}
	eligible, _, results := Evaluate(in, DefaultGates)
	require.False(t, eligible)
	require.False(t, results[0].Passed)
}

func TestExecutionTimeGateCatchesWidenedBook(t *testing.T) {
	c := sampleContract()
	ok, _ := ExecutionTimeGate(c, DefaultGates)
	require.True(t, ok)

	c.Ask = 10.0 // book blew out since selection
	ok, reason := ExecutionTimeGate(c, DefaultGates)
	require.False(t, ok)
	require.NotEmpty(t, reason)
}

func TestScoreContractPrefersHigherGammaAndCenteredDelta(t *testing.T) {
	strong := model.OptionContract{Delta: 0.20, Gamma: 0.15, Theta: -0.10, Vega: 0.05}
	weak := model.OptionContract{Delta: 0.05, Gamma: 0.02, Theta: -0.30, Vega: 0.18}
	require.Greater(t, ScoreContract(strong, model.DebitSpread), ScoreContract(weak, model.DebitSpread))
}

func TestScoreContractSwapsThetaVegaWeightForCreditSpread(t *testing.T) {
	// A debit spread's 0.30 slot weighs decay: the low-theta contract scores
	// higher debit than the low-vega one. A credit spread puts that same
	// slot on vega instead, flipping which contract scores higher.
	hotTheta := model.OptionContract{Delta: 0.20, Gamma: 0.10, Theta: -0.45, Vega: 0.02}
	hotVega := model.OptionContract{Delta: 0.20, Gamma: 0.10, Theta: -0.02, Vega: 0.19}
	require.Greater(t, ScoreContract(hotVega, model.DebitSpread), ScoreContract(hotTheta, model.DebitSpread))
	require.Greater(t, ScoreContract(hotTheta, model.CreditSpread), ScoreContract(hotVega, model.CreditSpread))
}

func TestBuildDebitSpreadIsFeasible(t *testing.T) {
	spread, ok := BuildDebitSpread("AAPL", "2026-03-09", model.Call, sampleChain(), sampleSpot)
	require.True(t, ok)
	require.Equal(t, model.DebitSpread, spread.Kind)
	require.Equal(t, 184.0, spread.LongLeg.Strike)
	require.Equal(t, 185.0, spread.ShortLeg.Strike)
	require.Greater(t, spread.MaxProfit, 0.0)
	require.Greater(t, spread.MaxLoss, 0.0)
	require.InDelta(t, 1.857, spread.RiskReward(), 0.01)
}

func TestBuildDebitSpreadFailsWithoutQualifyingLongLeg(t *testing.T) {
	chain := []model.OptionContract{
		{Strike: 183, Bid: 1.90, Ask: 2.10, Delta: 0.55},
		{Strike: 184, Bid: 1.40, Ask: 1.60, Delta: 0.48},
	}
	_, ok := BuildDebitSpread("AAPL", "2026-03-09", model.Call, chain, sampleSpot)
	require.False(t, ok)
}

func TestBuildDebitSpreadFallsBackToWiderPresetWidth(t *testing.T) {
	// No $1-away contract for the 184 long leg, only $2-away at 186.
	chain := []model.OptionContract{
		{Strike: 184, Bid: 0.43, Ask: 0.47, Delta: 0.22, Gamma: 0.08, Theta: -0.12, Vega: 0.05},
		{Strike: 186, Bid: 0.05, Ask: 0.07, Delta: 0.08, Gamma: 0.03, Theta: -0.04, Vega: 0.02},
	}
	spread, ok := BuildDebitSpread("AAPL", "2026-03-09", model.Call, chain, sampleSpot)
	require.True(t, ok)
	require.Equal(t, 186.0, spread.ShortLeg.Strike)
}

func TestEvaluateExitStopLoss(t *testing.T) {
	pos := &model.OptionsPosition{Kind: model.KindLotto, EntryPrice: 1.0, Quantity: 10, OriginalQuantity: 10}
	action, qty := EvaluateExit(pos, 0.45, 0) // -55%, past the -50% lotto stop
	require.Equal(t, ActionStopLoss, action)
	require.Equal(t, 10.0, qty)
}

func TestEvaluateExitPartialThenRunner(t *testing.T) {
	pos := &model.OptionsPosition{Kind: model.KindDebitSpread, EntryPrice: 2.0, Quantity: 10, OriginalQuantity: 10}
	action, qty := EvaluateExit(pos, 3.0, 0.5) // +50%, hits the partial threshold
	require.Equal(t, ActionPartialClose, action)
	require.Equal(t, 5.0, qty)
	require.Equal(t, 1, pos.PartialsTaken)
	require.Equal(t, 5, pos.Quantity)

	// peak was 50%, now retraced to 25% (25pt drawdown >= 20pt runner stop)
	action2, _ := EvaluateExit(pos, 2.5, 0.5)
	require.Equal(t, ActionRunnerStop, action2)
}

func TestPositionNotionalRespectsAccountCap(t *testing.T) {
	notional := PositionNotional(50000, 100000, 2.0)
	require.InDelta(t, 15000, notional, 1e-6) // capped at 15% of total, not the full 50000 available
}

func TestQuantityForNotional(t *testing.T) {
	require.Equal(t, 5, QuantityForNotional(1000, 2.0)) // 1000 / (2.00 * 100) = 5 contracts
}
