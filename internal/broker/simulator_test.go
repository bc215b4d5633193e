package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type staticQuoteSource struct {
	quotes map[string]Quote
}

func (s staticQuoteSource) GetQuote(ctx context.Context, symbols []string) ([]Quote, error) {
	out := make([]Quote, 0, len(symbols))
	for _, sym := range symbols {
		out = append(out, s.quotes[sym])
	}
	return out, nil
}

func TestSimulatorGetBalanceReflectsStartingCash(t *testing.T) {
	sim := NewSimulator(100000, nil)
	bal, err := sim.GetBalance(context.Background(), "demo-key")
	require.NoError(t, err)
	require.Equal(t, 100000.0, bal.CashAvailableForInvestment)
	require.Equal(t, 200000.0, bal.BuyingPower)
}

func TestSimulatorGetQuoteDefaultsToFlatPriceWithoutSource(t *testing.T) {
	sim := NewSimulator(100000, nil)
	quotes, err := sim.GetQuote(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	require.Equal(t, 100.0, quotes[0].Last)
}

func TestSimulatorGetQuoteDelegatesToSourceWhenPresent(t *testing.T) {
	src := staticQuoteSource{quotes: map[string]Quote{"AAPL": {Symbol: "AAPL", Last: 187.5}}}
	sim := NewSimulator(100000, src)
	quotes, err := sim.GetQuote(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	require.Equal(t, 187.5, quotes[0].Last)
}

func TestSimulatorPlaceOrderBuyDebitsCashAndOpensPosition(t *testing.T) {
	sim := NewSimulator(100000, nil)
	order := Order{
		Kind:      KindEquity,
		Legs:      []OrderLeg{{Symbol: "AAPL", Side: BuyOpen, Qty: 10}},
		PriceType: Limit,
		LimitPx:   150,
	}
	res, err := sim.PlaceOrder(context.Background(), "demo-key", order, "preview-1")
	require.NoError(t, err)
	require.Equal(t, "FILLED", res.Status)
	require.Equal(t, 150.0, res.FillPrice)
	require.Equal(t, 10.0, res.FilledQty)

	bal, err := sim.GetBalance(context.Background(), "demo-key")
	require.NoError(t, err)
	require.Equal(t, 100000.0-150*10, bal.CashAvailableForInvestment)

	positions, err := sim.GetPositions(context.Background(), "demo-key")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, "AAPL", positions[0].Symbol)
	require.Equal(t, 10.0, positions[0].Quantity)
}

func TestSimulatorPlaceOrderSellCreditsCashAndClosesPosition(t *testing.T) {
	sim := NewSimulator(100000, nil)
	buy := Order{Legs: []OrderLeg{{Symbol: "AAPL", Side: BuyOpen, Qty: 10}}, LimitPx: 150}
	_, err := sim.PlaceOrder(context.Background(), "demo-key", buy, "preview-1")
	require.NoError(t, err)

	sell := Order{Legs: []OrderLeg{{Symbol: "AAPL", Side: SellClose, Qty: 10}}, LimitPx: 160}
	res, err := sim.PlaceOrder(context.Background(), "demo-key", sell, "preview-2")
	require.NoError(t, err)
	require.Equal(t, 160.0, res.FillPrice)

	positions, err := sim.GetPositions(context.Background(), "demo-key")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, 0.0, positions[0].Quantity)
}

func TestSimulatorPlaceOrderFallsBackToQuoteSourceWhenNoLimitPrice(t *testing.T) {
	src := staticQuoteSource{quotes: map[string]Quote{"AAPL": {Symbol: "AAPL", Last: 142.0}}}
	sim := NewSimulator(100000, src)
	order := Order{Legs: []OrderLeg{{Symbol: "AAPL", Side: BuyOpen, Qty: 5}}}
	res, err := sim.PlaceOrder(context.Background(), "demo-key", order, "preview-1")
	require.NoError(t, err)
	require.Equal(t, 142.0, res.FillPrice)
}

func TestSimulatorCancelOrderRemovesPreview(t *testing.T) {
	sim := NewSimulator(100000, nil)
	preview, err := sim.PreviewOrder(context.Background(), "demo-key", Order{})
	require.NoError(t, err)
	require.NoError(t, sim.CancelOrder(context.Background(), "demo-key", preview.PreviewID))
}

func TestSimulatorListAccountsReturnsDemoAccount(t *testing.T) {
	sim := NewSimulator(100000, nil)
	accounts, err := sim.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Equal(t, "demo-key", accounts[0].AccountIDKey)
}
