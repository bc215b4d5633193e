package odte

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/steinwealth/easyorb/internal/broker"
	"github.com/steinwealth/easyorb/internal/model"
)

// sampleChain is spot-182 call chain with exactly one contract (184)
// inside the long-leg acceptance band (delta 0.10-0.30, mid $0.20-$0.60,
// rung 1-3 OTM); 183 is too close to the money, 185 scores lower and also
// serves as the $1-wide short leg, 186 falls outside the third rung.
// Debit cost (0.45-0.10=0.35) against the $1 width keeps risk:reward at
// 1.857, inside the [1.5, 2.5] acceptance band.
func sampleChain() []model.OptionContract {
	return []model.OptionContract{
		{Strike: 183, Bid: 0.95, Ask: 1.05, Delta: 0.35, Gamma: 0.10, Theta: -0.15, Vega: 0.06, OpenInterest: 500},
		{Strike: 184, Bid: 0.43, Ask: 0.47, Delta: 0.22, Gamma: 0.08, Theta: -0.12, Vega: 0.05, OpenInterest: 500},
		{Strike: 185, Bid: 0.09, Ask: 0.11, Delta: 0.14, Gamma: 0.06, Theta: -0.08, Vega: 0.04, OpenInterest: 500},
		{Strike: 186, Bid: 0.04, Ask: 0.06, Delta: 0.08, Gamma: 0.04, Theta: -0.05, Vega: 0.02, OpenInterest: 500},
	}
}

const sampleSpot = 182.0

func TestDecideBuildsSizedSpreadWhenEligible(t *testing.T) {
	in := DecideInput{
		Signal:           model.ORBSignal{Ticker: "AAPL", Side: model.Long, VolumeRatio: 2.0, PriceAtEmit: sampleSpot},
		ORB:              model.ORBData{TradingDate: "2026-03-09"},
		UnderlyingADV:    50_000_000,
		Chain:            sampleChain(),
		MinutesSinceOpen: 60,
		BreakoutPctNow:   0.005,
		AvailableCapital: 50_000,
		TotalCapital:     100_000,
	}
	d := Decide(in, DefaultGates)
	require.True(t, d.Eligible)
	require.Equal(t, model.DebitSpread, d.Spread.Kind)
	require.Equal(t, 184.0, d.Spread.LongLeg.Strike)
	require.Equal(t, 185.0, d.Spread.ShortLeg.Strike)
	require.Greater(t, d.Quantity, 0)
	require.Greater(t, d.Notional, 0.0)
}

func TestDecideRejectsWhenGatesFail(t *testing.T) {
	in := DecideInput{
		Signal:           model.ORBSignal{Ticker: "AAPL", Side: model.Long, VolumeRatio: 0.1, PriceAtEmit: sampleSpot}, // fails volume gate
		ORB:              model.ORBData{TradingDate: "2026-03-09"},
		UnderlyingADV:    50_000_000,
		Chain:            sampleChain(),
		MinutesSinceOpen: 60,
		BreakoutPctNow:   0.005,
		AvailableCapital: 50_000,
		TotalCapital:     100_000,
	}
	d := Decide(in, DefaultGates)
	require.False(t, d.Eligible)
	require.NotEmpty(t, d.Reasons)
}

func TestDecideRejectsOnEmptyChain(t *testing.T) {
	d := Decide(DecideInput{Chain: nil}, DefaultGates)
	require.False(t, d.Eligible)
}

func TestDecideRejectsWhenSizingFloorsToZeroQuantity(t *testing.T) {
	in := DecideInput{
		Signal:           model.ORBSignal{Ticker: "AAPL", Side: model.Long, VolumeRatio: 2.0, PriceAtEmit: sampleSpot},
		ORB:              model.ORBData{TradingDate: "2026-03-09"},
		UnderlyingADV:    50_000_000,
		Chain:            sampleChain(),
		MinutesSinceOpen: 60,
		BreakoutPctNow:   0.005,
		AvailableCapital: 10, // far below the cost of one spread
		TotalCapital:     100_000,
	}
	d := Decide(in, DefaultGates)
	require.False(t, d.Eligible)
}

func TestDecideRejectsWhenNoLongLegInAcceptanceBand(t *testing.T) {
	// Every OTM contract's delta sits above the 0.30 ceiling, so no
	// candidate is eligible for the long leg.
	chain := []model.OptionContract{
		{Strike: 183, Bid: 1.90, Ask: 2.10, Delta: 0.55, Gamma: 0.10, Theta: -0.15, Vega: 0.06, OpenInterest: 500},
		{Strike: 184, Bid: 1.40, Ask: 1.60, Delta: 0.48, Gamma: 0.09, Theta: -0.13, Vega: 0.05, OpenInterest: 500},
	}
	in := DecideInput{
		Signal:           model.ORBSignal{Ticker: "AAPL", Side: model.Long, VolumeRatio: 2.0, PriceAtEmit: sampleSpot},
		ORB:              model.ORBData{TradingDate: "2026-03-09"},
		UnderlyingADV:    50_000_000,
		Chain:            chain,
		MinutesSinceOpen: 60,
		BreakoutPctNow:   0.005,
		AvailableCapital: 50_000,
		TotalCapital:     100_000,
	}
	d := Decide(in, DefaultGates)
	require.False(t, d.Eligible)
}

func TestDecideRejectsSpreadOutsideRiskRewardBand(t *testing.T) {
	// Long leg (184) qualifies; 185 is also in the band but its lower gamma
	// scores it below 184. 184's mid sits almost on top of the short
	// leg's (185) mid: the debit paid is nearly zero against a full $1
	// width, so risk:reward blows well past the 2.5 ceiling.
	chain := []model.OptionContract{
		{Strike: 184, Bid: 0.43, Ask: 0.47, Delta: 0.22, Gamma: 0.08, Theta: -0.12, Vega: 0.05, OpenInterest: 500},
		{Strike: 185, Bid: 0.41, Ask: 0.43, Delta: 0.20, Gamma: 0.04, Theta: -0.11, Vega: 0.05, OpenInterest: 500},
	}
	in := DecideInput{
		Signal:           model.ORBSignal{Ticker: "AAPL", Side: model.Long, VolumeRatio: 2.0, PriceAtEmit: sampleSpot},
		ORB:              model.ORBData{TradingDate: "2026-03-09"},
		UnderlyingADV:    50_000_000,
		Chain:            chain,
		MinutesSinceOpen: 60,
		BreakoutPctNow:   0.005,
		AvailableCapital: 50_000,
		TotalCapital:     100_000,
	}
	d := Decide(in, DefaultGates)
	require.False(t, d.Eligible)
}

type fakeQuoteBroker struct {
	broker.Broker
	quotes []broker.Quote
	err    error
}

func (f fakeQuoteBroker) GetQuote(ctx context.Context, symbols []string) ([]broker.Quote, error) {
	return f.quotes, f.err
}

func TestBrokerRedDayDetectorFlagsBelowThreshold(t *testing.T) {
	b := fakeQuoteBroker{quotes: []broker.Quote{{Symbol: "SPY", Open: 500, Last: 495}}} // -1%
	d := NewBrokerRedDayDetector(b)
	red, err := d.IsRedDay(context.Background())
	require.NoError(t, err)
	require.True(t, red)
}

func TestBrokerRedDayDetectorIgnoresSmallDips(t *testing.T) {
	b := fakeQuoteBroker{quotes: []broker.Quote{{Symbol: "SPY", Open: 500, Last: 499}}} // -0.2%
	d := NewBrokerRedDayDetector(b)
	red, err := d.IsRedDay(context.Background())
	require.NoError(t, err)
	require.False(t, red)
}

func TestStaticRedDayDetectorReturnsFixedAnswer(t *testing.T) {
	red, err := StaticRedDayDetector(true).IsRedDay(context.Background())
	require.NoError(t, err)
	require.True(t, red)
}
