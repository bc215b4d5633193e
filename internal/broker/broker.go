// Package broker is the thin, typed layer atop internal/oauth that the
// core consumes. Both the live E*TRADE adapter and the
// demo-mode simulator implement the Broker interface, so internal/execution
// and internal/odte are agnostic to which is wired in.
package broker

import (
	"context"
	"time"

	"github.com/steinwealth/easyorb/internal/model"
)

// Account is a brokerage account as returned by ListAccounts.
type Account struct {
	AccountID    string
	AccountIDKey string
	Status       string
	Type         string
}

// Balance is the account balance snapshot used for sizing and keep-alive.
type Balance struct {
	CashAvailableForInvestment float64
	AccountValue               float64
	BuyingPower                float64
}

// Quote is a last/bid/ask/volume snapshot for one symbol.
type Quote struct {
	Symbol string
	Last   float64
	Bid    float64
	Ask    float64
	Volume int64
	Open   float64
	High   float64
	Low    float64
	AsOf   time.Time
}

// OrderSide is the equity/option order direction.
type OrderSide string

const (
	Buy       OrderSide = "BUY"
	Sell      OrderSide = "SELL"
	BuyOpen   OrderSide = "BUY_OPEN"
	SellClose OrderSide = "SELL_CLOSE"
)

// OrderKind distinguishes equity orders from single- and multi-leg option orders.
type OrderKind string

const (
	KindEquity       OrderKind = "equity"
	KindOptionSingle OrderKind = "option_single"
	KindNetDebit     OrderKind = "net_debit"
	KindNetCredit    OrderKind = "net_credit"
)

// OrderPriceType is market or limit.
type OrderPriceType string

const (
	Market OrderPriceType = "MARKET"
	Limit  OrderPriceType = "LIMIT"
)

// OrderLeg is one leg of a (possibly multi-leg) order.
type OrderLeg struct {
	Symbol string
	Strike float64
	Expiry string
	Kind   model.OptionKind // only set for option legs
	Side   OrderSide
	Qty    float64
}

// Order is the normalized order request the adapter translates to the
// broker's wire format.
type Order struct {
	Kind      OrderKind
	Legs      []OrderLeg
	PriceType OrderPriceType
	LimitPx   float64 // net debit/credit or single-leg limit price
	Term      string  // always GOOD_FOR_DAY
}

// PreviewResult is returned by PreviewOrder.
type PreviewResult struct {
	PreviewID string
}

// PlaceResult is returned by PlaceOrder.
type PlaceResult struct {
	OrderID    string
	FillPrice  float64
	FilledQty  float64
	Status     string
}

// PositionSnapshot is a broker-reported open position (used to reconcile
// on restart).
type PositionSnapshot struct {
	Symbol       string
	Quantity     float64
	AveragePrice float64
	CurrentPrice float64
}

// Broker is the capability interface C7/C8/C9 consume. Both the live
// E*TRADE adapter (etrade.go) and the demo simulator (simulator.go)
// implement it.
type Broker interface {
	ListAccounts(ctx context.Context) ([]Account, error)
	GetBalance(ctx context.Context, accountIDKey string) (Balance, error)
	GetQuote(ctx context.Context, symbols []string) ([]Quote, error)
	GetOptionChain(ctx context.Context, symbol, expiry string, strikesAroundATM int, includeGreeks bool) (calls, puts []model.OptionContract, err error)
	PreviewOrder(ctx context.Context, accountIDKey string, order Order) (PreviewResult, error)
	PlaceOrder(ctx context.Context, accountIDKey string, order Order, previewID string) (PlaceResult, error)
	CancelOrder(ctx context.Context, accountIDKey, orderID string) error
	GetPositions(ctx context.Context, accountIDKey string) ([]PositionSnapshot, error)
}
