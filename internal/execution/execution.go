// Package execution implements the Execution Engine (C7): it walks the
// day's ranked signals in priority order, opening at most one position per
// (ticker, signal type) per day, checking the Compound Capital Engine's
// shared ceiling before each fill, and emitting an open event for every
// position it places so the exit engine can pick it up.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/steinwealth/easyorb/internal/alert"
	"github.com/steinwealth/easyorb/internal/broker"
	"github.com/steinwealth/easyorb/internal/errs"
	"github.com/steinwealth/easyorb/internal/logger"
	"github.com/steinwealth/easyorb/internal/model"
)

// Capital is the subset of compound.Engine the execution engine needs,
// narrowed to an interface so tests can substitute a fake.
type Capital interface {
	AvailableForSO() float64
	AvailableForORR() float64
	CanOpen(notional float64) bool
	OnPositionOpened(signalType string, notional float64)
}

// OpenEvent is emitted for every position the engine successfully opens,
// for the exit engine (C8) to begin monitoring.
type OpenEvent struct {
	Position model.Position
}

// Engine is the Execution Engine.
type Engine struct {
	broker  broker.Broker
	capital Capital
	alerts  alert.Sink
	opened  map[string]bool // "TICKER|SIGNALTYPE|DATE" -> true
	log     *logger.Logger
}

// New creates an Engine against broker b and capital source c, alerting
// through sink for batched open events.
func New(b broker.Broker, c Capital, sink alert.Sink) *Engine {
	return &Engine{broker: b, capital: c, alerts: sink, opened: make(map[string]bool), log: logger.For("execution")}
}

func dailyKey(ticker string, sigType model.SignalType, tradingDate string) string {
	return fmt.Sprintf("%s|%s|%s", ticker, sigType, tradingDate)
}

// AlreadyOpenedToday reports whether a (ticker, signal type) has already
// been opened on tradingDate, enforcing the one-open-per-symbol-per-signal
// daily cap.
func (e *Engine) AlreadyOpenedToday(ticker string, sigType model.SignalType, tradingDate string) bool {
	return e.opened[dailyKey(ticker, sigType, tradingDate)]
}

// ExecuteRanked walks ranked in order (already priority-sorted and sized by
// internal/ranker) and attempts to open each one serially, stopping a given
// signal only on its own failure — one rejected order never blocks the
// rest of the batch. It returns the events for positions actually opened.
func (e *Engine) ExecuteRanked(ctx context.Context, accountID string, ranked []model.RankedSignal, now time.Time) []OpenEvent {
	var events []OpenEvent
	for _, r := range ranked {
		if e.AlreadyOpenedToday(r.Ticker, r.SignalType, r.TradingDate) {
			e.log.Debugf("%s %s already opened today, skipping rank %d", r.Ticker, r.SignalType, r.PriorityRank)
			continue
		}
		if r.CapitalAllocated <= 0 {
			continue
		}

		avail := e.capital.AvailableForSO()
		if r.SignalType == model.SignalORR {
			avail = e.capital.AvailableForORR()
		}
		notional := r.CapitalAllocated
		if notional > avail {
			notional = avail
		}
		if notional <= 0 || !e.capital.CanOpen(notional) {
			e.log.Warnf("%s %s rank %d: no capital room, skipping", r.Ticker, r.SignalType, r.PriorityRank)
			continue
		}

		ev, err := e.openOne(ctx, accountID, r, notional, now)
		if err != nil {
			e.log.Errorf("%s %s rank %d: open failed: %v", r.Ticker, r.SignalType, r.PriorityRank, err)
			continue
		}

		e.opened[dailyKey(r.Ticker, r.SignalType, r.TradingDate)] = true
		e.capital.OnPositionOpened(string(r.SignalType), notional)
		events = append(events, *ev)
	}
	if len(events) > 0 && e.alerts != nil {
		e.alerts.Notify(alert.Event{
			Severity:  alert.SeverityInfo,
			Component: "execution",
			Kind:      "batch_open",
			Message:   fmt.Sprintf("opened %d position(s)", len(events)),
			Fields:    map[string]any{"count": len(events)},
		})
	}
	return events
}

func (e *Engine) openOne(ctx context.Context, accountID string, r model.RankedSignal, notional float64, now time.Time) (*OpenEvent, error) {
	quotes, err := e.broker.GetQuote(ctx, []string{r.Ticker})
	if err != nil || len(quotes) == 0 {
		return nil, errs.Newf(errs.BrokerTransient, "quote fetch failed for %s: %v", r.Ticker, err)
	}
	quote := quotes[0]
	price := quote.Ask
	if r.Side == model.Short {
		price = quote.Bid
	}
	if price <= 0 {
		return nil, errs.Newf(errs.InvalidRequest, "invalid quote price for %s", r.Ticker)
	}
	qty := float64(int(notional / price))
	if qty < 1 {
		return nil, errs.Newf(errs.InvalidRequest, "%s: notional %.2f too small for one share at %.2f", r.Ticker, notional, price)
	}

	side := broker.BuyOpen
	if r.Side == model.Short {
		side = broker.SellClose
	}
	order := broker.Order{
		Kind:      broker.KindEquity,
		PriceType: broker.Market,
		Term:      "GOOD_FOR_DAY",
		Legs: []broker.OrderLeg{{
			Symbol: r.Ticker,
			Side:   side,
			Qty:    qty,
		}},
	}
	preview, err := e.broker.PreviewOrder(ctx, accountID, order)
	if err != nil {
		return nil, errs.Newf(errs.BrokerRejected, "preview failed for %s: %v", r.Ticker, err)
	}
	res, err := e.broker.PlaceOrder(ctx, accountID, order, preview.PreviewID)
	if err != nil {
		return nil, errs.Newf(errs.BrokerRejected, "place order failed for %s: %v", r.Ticker, err)
	}

	pos := model.Position{
		PositionID:         res.OrderID,
		Symbol:             r.Ticker,
		Side:               r.Side,
		SignalType:         r.SignalType,
		Substate:           model.SubstateFresh,
		Quantity:           qty,
		OriginalQuantity:   qty,
		EntryPrice:         res.FillPrice,
		EntryTime:          now,
		CurrentPrice:       res.FillPrice,
		CurrentStopLoss:    0,
		HighestPrice:       res.FillPrice,
		LowestPrice:        res.FillPrice,
		Status:             model.StatusOpen,
		EntryBarVolatility: r.Indicators.ATR,
		ORBMidpoint:        orbMidpoint(r),
		ORBExtreme:         orbExtreme(r),
	}
	return &OpenEvent{Position: pos}, nil
}

// orbMidpoint returns the midpoint of the opening range the signal broke
// out of, or 0 if the signal carries no ORB data (e.g. a test fixture).
func orbMidpoint(r model.RankedSignal) float64 {
	if r.ORBHigh == 0 && r.ORBLow == 0 {
		return 0
	}
	return (r.ORBHigh + r.ORBLow) / 2
}

// orbExtreme returns the ORB boundary the signal's breakout cleared: the
// high for LONG, the low for SHORT.
func orbExtreme(r model.RankedSignal) float64 {
	if r.Side == model.Short {
		return r.ORBLow
	}
	return r.ORBHigh
}

// ResetDay clears the daily-uniqueness tracking, called once per trading
// day by the caller's session loop when the clock rolls to a new date.
func (e *Engine) ResetDay() {
	e.opened = make(map[string]bool)
}
