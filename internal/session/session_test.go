package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/steinwealth/easyorb/internal/advcache"
	"github.com/steinwealth/easyorb/internal/broker"
	"github.com/steinwealth/easyorb/internal/clock"
	"github.com/steinwealth/easyorb/internal/config"
	"github.com/steinwealth/easyorb/internal/model"
	"github.com/steinwealth/easyorb/internal/odte"
)

func testRunner(t *testing.T) (*Runner, *clock.Clock, time.Time) {
	t.Helper()
	clk := clock.New()
	cfg := &config.Config{
		MaxPositionPct:  35,
		MonitorInterval: time.Second,
		SlipGuardEnabled: false,
	}
	sim := broker.NewSimulator(100000, nil)
	adv := advcache.New(t.TempDir(), 90, nil)
	symbols := []model.Symbol{{Ticker: "AAPL", Tier: 1, StrikeIncrement: 1}}
	r := New(cfg, clk, sim, "demo-key", symbols, 100000, adv, nil, nil)
	open := clk.Open(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)) // Monday
	return r, clk, open.Add(10 * time.Minute)
}

func TestRunOnceSkipsOutsideMarketHours(t *testing.T) {
	r, _, _ := testRunner(t)
	midnight := time.Date(2026, 3, 9, 5, 0, 0, 0, time.UTC)
	require.NoError(t, r.RunOnce(context.Background(), midnight))
	require.Equal(t, 0, r.compound.Snapshot().OpenPositions)
}

func TestRunOnceDuringMarketHoursDoesNotPanicOnFlatQuotes(t *testing.T) {
	r, _, now := testRunner(t)
	require.NoError(t, r.RunOnce(context.Background(), now))
	// The simulator's default quote never moves, so no breakout fires and
	// no position should have opened.
	require.Equal(t, 0, r.compound.Snapshot().OpenPositions)
	require.Empty(t, r.exitEng.Open())
}

func TestRunOnceResetsDailyStateOnDateRollover(t *testing.T) {
	r, clk, now := testRunner(t)
	require.NoError(t, r.RunOnce(context.Background(), now))
	require.Equal(t, clk.TradingDate(now), r.tradingDate)

	nextDayOpen := clk.Open(now.AddDate(0, 0, 1)).Add(10 * time.Minute)
	require.NoError(t, r.RunOnce(context.Background(), nextDayOpen))
	require.Equal(t, clk.TradingDate(nextDayOpen), r.tradingDate)
}

// chainSimulator wraps the demo simulator with a canned option chain, since
// Simulator.GetOptionChain always returns empty (no live market to quote).
type chainSimulator struct {
	*broker.Simulator
	chain []model.OptionContract
}

func (c *chainSimulator) GetOptionChain(ctx context.Context, symbol, expiry string, n int, greeks bool) ([]model.OptionContract, []model.OptionContract, error) {
	return c.chain, c.chain, nil
}

// sampleZeroDTEChain is quoted around a 182 spot: 184 is the only strike
// inside the long-leg delta/premium band, 185 is its $1 short leg, and the
// spread costs a 0.35 debit (0.45 - 0.10).
func sampleZeroDTEChain() []model.OptionContract {
	return []model.OptionContract{
		{Strike: 183, Bid: 0.95, Ask: 1.05, Delta: 0.35, Gamma: 0.10, Theta: -0.15, Vega: 0.06, OpenInterest: 800},
		{Strike: 184, Bid: 0.43, Ask: 0.47, Delta: 0.22, Gamma: 0.08, Theta: -0.12, Vega: 0.05, OpenInterest: 800},
		{Strike: 185, Bid: 0.09, Ask: 0.11, Delta: 0.14, Gamma: 0.06, Theta: -0.08, Vega: 0.04, OpenInterest: 800},
	}
}

func zeroDTETestRunner(t *testing.T, chain []model.OptionContract) (*Runner, *chainSimulator) {
	t.Helper()
	clk := clock.New()
	cfg := &config.Config{
		MaxPositionPct:         35,
		MonitorInterval:        time.Second,
		MaxInFlightBrokerCalls: 4,
		StateDir:               t.TempDir(),
	}
	sim := &chainSimulator{Simulator: broker.NewSimulator(100000, nil), chain: chain}
	adv := advcache.New(t.TempDir(), 90, nil)
	symbols := []model.Symbol{{Ticker: "AAPL", Tier: 1, StrikeIncrement: 1}}
	r := New(cfg, clk, sim, "demo-key", symbols, 100000, adv, nil, nil)
	r.EnableZeroDTE([]model.Symbol{{Ticker: "AAPL"}}, odte.StaticRedDayDetector(false))
	return r, sim
}

func eligibleZeroDTECandidate() zeroDTECandidate {
	return zeroDTECandidate{
		Signal:           model.ORBSignal{Ticker: "AAPL", Side: model.Long, VolumeRatio: 2.0, PriceAtEmit: 182},
		ORB:              model.ORBData{TradingDate: "2026-03-09"},
		ADV:              50_000_000,
		BreakoutPctNow:   0.005,
		MinutesSinceOpen: 60,
	}
}

func TestEvaluateZeroDTEOpensEligibleCandidate(t *testing.T) {
	r, _ := zeroDTETestRunner(t, sampleZeroDTEChain())
	r.evaluateZeroDTE(context.Background(), []zeroDTECandidate{eligibleZeroDTECandidate()}, time.Now())

	require.Len(t, r.openOptions, 1)
	for _, pos := range r.openOptions {
		require.Equal(t, model.KindDebitSpread, pos.Kind)
		require.Greater(t, pos.Quantity, 0)
	}
	require.Greater(t, r.compound.Snapshot().SODeployed, 0.0)
}

func TestEvaluateZeroDTESkipsOnRedDay(t *testing.T) {
	r, _ := zeroDTETestRunner(t, sampleZeroDTEChain())
	r.redDay = odte.StaticRedDayDetector(true)
	r.evaluateZeroDTE(context.Background(), []zeroDTECandidate{eligibleZeroDTECandidate()}, time.Now())
	require.Empty(t, r.openOptions)
}

func TestMonitorOpenOptionsPartialClosesOnProfitTarget(t *testing.T) {
	r, sim := zeroDTETestRunner(t, sampleZeroDTEChain())
	r.evaluateZeroDTE(context.Background(), []zeroDTECandidate{eligibleZeroDTECandidate()}, time.Now())
	require.Len(t, r.openOptions, 1)

	// Widen the long leg's value enough to clear the debit spread's 50%
	// profit-target gate (entry debit 0.35, now 0.65 - 0.10 = 0.55).
	sim.chain = []model.OptionContract{
		{Strike: 183, Bid: 1.15, Ask: 1.25, Delta: 0.35, Gamma: 0.10, Theta: -0.15, Vega: 0.06, OpenInterest: 800},
		{Strike: 184, Bid: 0.63, Ask: 0.67, Delta: 0.22, Gamma: 0.08, Theta: -0.12, Vega: 0.05, OpenInterest: 800},
		{Strike: 185, Bid: 0.09, Ask: 0.11, Delta: 0.14, Gamma: 0.06, Theta: -0.08, Vega: 0.04, OpenInterest: 800},
	}
	r.monitorOpenOptions(context.Background(), time.Now())

	require.Len(t, r.openOptions, 1)
	for _, pos := range r.openOptions {
		require.Equal(t, 1, pos.PartialsTaken)
		require.Less(t, pos.Quantity, pos.OriginalQuantity)
	}
}

func TestMonitorOpenOptionsFlattensOnStopLoss(t *testing.T) {
	r, sim := zeroDTETestRunner(t, sampleZeroDTEChain())
	r.evaluateZeroDTE(context.Background(), []zeroDTECandidate{eligibleZeroDTECandidate()}, time.Now())
	require.Len(t, r.openOptions, 1)

	// Collapse the spread's value well past the -40% stop (0.35 -> 0.25 - 0.10 = 0.15).
	sim.chain = []model.OptionContract{
		{Strike: 183, Bid: 0.55, Ask: 0.65, Delta: 0.35, Gamma: 0.10, Theta: -0.15, Vega: 0.06, OpenInterest: 800},
		{Strike: 184, Bid: 0.23, Ask: 0.27, Delta: 0.22, Gamma: 0.08, Theta: -0.12, Vega: 0.05, OpenInterest: 800},
		{Strike: 185, Bid: 0.09, Ask: 0.11, Delta: 0.14, Gamma: 0.06, Theta: -0.08, Vega: 0.04, OpenInterest: 800},
	}
	r.monitorOpenOptions(context.Background(), time.Now())

	require.Empty(t, r.openOptions)
}
