package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/steinwealth/easyorb/internal/alert"
	"github.com/steinwealth/easyorb/internal/broker"
	"github.com/steinwealth/easyorb/internal/model"
)

type fakeQuoteSource map[string]broker.Quote

func (f fakeQuoteSource) GetQuote(ctx context.Context, symbols []string) ([]broker.Quote, error) {
	out := make([]broker.Quote, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, f[s])
	}
	return out, nil
}

type fakeCapital struct {
	available float64
	opened    []string
}

func (f *fakeCapital) AvailableForSO() float64  { return f.available }
func (f *fakeCapital) AvailableForORR() float64 { return f.available }
func (f *fakeCapital) CanOpen(notional float64) bool {
	return notional <= f.available
}
func (f *fakeCapital) OnPositionOpened(signalType string, notional float64) {
	f.available -= notional
	f.opened = append(f.opened, signalType)
}

func TestExecuteRankedOpensWithinCapital(t *testing.T) {
	sim := broker.NewSimulator(100000, fakeQuoteSource{
		"AAPL": {Symbol: "AAPL", Bid: 99.9, Ask: 100.1, Last: 100},
		"MSFT": {Symbol: "MSFT", Bid: 199.9, Ask: 200.1, Last: 200},
	})
	cap := &fakeCapital{available: 10000}
	eng := New(sim, cap, alert.NewLogSink())

	ranked := []model.RankedSignal{
		{ORBSignal: model.ORBSignal{Ticker: "AAPL", SignalType: model.SignalSO, Side: model.Long, TradingDate: "2026-03-09"}, PriorityRank: 1, CapitalAllocated: 6000},
		{ORBSignal: model.ORBSignal{Ticker: "MSFT", SignalType: model.SignalSO, Side: model.Long, TradingDate: "2026-03-09"}, PriorityRank: 2, CapitalAllocated: 6000},
	}

	events := eng.ExecuteRanked(context.Background(), "acct-1", ranked, time.Now())
	require.Len(t, events, 2)
	require.True(t, eng.AlreadyOpenedToday("AAPL", model.SignalSO, "2026-03-09"))
}

func TestExecuteRankedSkipsDuplicateDailySignal(t *testing.T) {
	sim := broker.NewSimulator(100000, fakeQuoteSource{
		"AAPL": {Symbol: "AAPL", Bid: 99.9, Ask: 100.1, Last: 100},
	})
	cap := &fakeCapital{available: 50000}
	eng := New(sim, cap, alert.NewLogSink())

	ranked := []model.RankedSignal{
		{ORBSignal: model.ORBSignal{Ticker: "AAPL", SignalType: model.SignalSO, Side: model.Long, TradingDate: "2026-03-09"}, PriorityRank: 1, CapitalAllocated: 5000},
	}
	first := eng.ExecuteRanked(context.Background(), "acct-1", ranked, time.Now())
	require.Len(t, first, 1)

	second := eng.ExecuteRanked(context.Background(), "acct-1", ranked, time.Now())
	require.Empty(t, second)
}

func TestExecuteRankedRespectsCapitalCeiling(t *testing.T) {
	sim := broker.NewSimulator(100000, fakeQuoteSource{
		"AAPL": {Symbol: "AAPL", Bid: 99.9, Ask: 100.1, Last: 100},
	})
	cap := &fakeCapital{available: 0}
	eng := New(sim, cap, alert.NewLogSink())

	ranked := []model.RankedSignal{
		{ORBSignal: model.ORBSignal{Ticker: "AAPL", SignalType: model.SignalSO, Side: model.Long, TradingDate: "2026-03-09"}, PriorityRank: 1, CapitalAllocated: 5000},
	}
	events := eng.ExecuteRanked(context.Background(), "acct-1", ranked, time.Now())
	require.Empty(t, events)
}

func TestOpenOneFreezesORBMidpointAndExtremeOntoPosition(t *testing.T) {
	sim := broker.NewSimulator(100000, fakeQuoteSource{
		"AAPL": {Symbol: "AAPL", Bid: 99.9, Ask: 100.1, Last: 100},
	})
	cap := &fakeCapital{available: 10000}
	eng := New(sim, cap, alert.NewLogSink())
	now := time.Now()

	ranked := []model.RankedSignal{
		{ORBSignal: model.ORBSignal{Ticker: "AAPL", SignalType: model.SignalSO, Side: model.Long, TradingDate: "2026-03-09", ORBHigh: 101, ORBLow: 99}, PriorityRank: 1, CapitalAllocated: 6000},
	}
	events := eng.ExecuteRanked(context.Background(), "acct-1", ranked, now)
	require.Len(t, events, 1)
	pos := events[0].Position
	require.Equal(t, 100.0, pos.ORBMidpoint)
	require.Equal(t, 101.0, pos.ORBExtreme)
	require.Equal(t, now, pos.EntryTime)
}
