package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/steinwealth/easyorb/internal/model"
)

// QuoteSource supplies live market quotes to the simulator without needing
// a broker connection (e.g. a streaming feed or the live adapter's GetQuote
// used read-only in demo mode).
type QuoteSource interface {
	GetQuote(ctx context.Context, symbols []string) ([]Quote, error)
}

// Simulator is the demo-mode Broker: it records hypothetical fills against
// an in-memory account instead of submitting real orders.
type Simulator struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]PositionSnapshot
	quotes    QuoteSource
	orders    map[string]Order
}

// NewSimulator creates a simulator seeded with startingCash, optionally
// backed by a real quote source for realistic fills.
func NewSimulator(startingCash float64, quotes QuoteSource) *Simulator {
	return &Simulator{
		cash:      startingCash,
		positions: make(map[string]PositionSnapshot),
		quotes:    quotes,
		orders:    make(map[string]Order),
	}
}

func (s *Simulator) ListAccounts(ctx context.Context) ([]Account, error) {
	return []Account{{AccountID: "DEMO", AccountIDKey: "demo-key", Status: "ACTIVE", Type: "MARGIN"}}, nil
}

func (s *Simulator) GetBalance(ctx context.Context, accountIDKey string) (Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Balance{CashAvailableForInvestment: s.cash, AccountValue: s.cash, BuyingPower: s.cash * 2}, nil
}

func (s *Simulator) GetQuote(ctx context.Context, symbols []string) ([]Quote, error) {
	if s.quotes != nil {
		return s.quotes.GetQuote(ctx, symbols)
	}
	out := make([]Quote, 0, len(symbols))
	for _, sym := range symbols {
		out = append(out, Quote{Symbol: sym, Last: 100, Bid: 99.99, Ask: 100.01, AsOf: time.Now()})
	}
	return out, nil
}

func (s *Simulator) GetOptionChain(ctx context.Context, symbol, expiry string, strikesAroundATM int, includeGreeks bool) ([]model.OptionContract, []model.OptionContract, error) {
	return nil, nil, nil
}

func (s *Simulator) PreviewOrder(ctx context.Context, accountIDKey string, order Order) (PreviewResult, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.orders[id] = order
	s.mu.Unlock()
	return PreviewResult{PreviewID: id}, nil
}

func (s *Simulator) PlaceOrder(ctx context.Context, accountIDKey string, order Order, previewID string) (PlaceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fillPrice := order.LimitPx
	qty := 0.0
	for _, leg := range order.Legs {
		qty += leg.Qty
	}
	if fillPrice == 0 && s.quotes != nil && len(order.Legs) > 0 {
		quotes, err := s.quotes.GetQuote(context.Background(), []string{order.Legs[0].Symbol})
		if err == nil && len(quotes) > 0 {
			fillPrice = quotes[0].Last
		}
	}

	orderID := uuid.NewString()
	pos := s.positions[order.Legs[0].Symbol]
	pos.Symbol = order.Legs[0].Symbol
	pos.AveragePrice = fillPrice
	pos.CurrentPrice = fillPrice
	switch order.Legs[0].Side {
	case Buy, BuyOpen:
		pos.Quantity += qty
		s.cash -= fillPrice * qty
	case Sell, SellClose:
		pos.Quantity -= qty
		s.cash += fillPrice * qty
	}
	s.positions[order.Legs[0].Symbol] = pos

	return PlaceResult{OrderID: orderID, FillPrice: fillPrice, FilledQty: qty, Status: "FILLED"}, nil
}

func (s *Simulator) CancelOrder(ctx context.Context, accountIDKey, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, orderID)
	return nil
}

func (s *Simulator) GetPositions(ctx context.Context, accountIDKey string) ([]PositionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PositionSnapshot, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out, nil
}

var _ Broker = (*Simulator)(nil)
var _ Broker = (*ETradeAdapter)(nil)
