// Package orb implements the Opening Range Breakout engine (C5): it
// captures each symbol's first 15-minute range, then watches for a
// Standard Order breakout at the 45-minute mark and a bullish reversal
// ("V" pattern) between 45 minutes and 5h45m after the open, emitting at
// most one of each signal type per symbol per trading day.
package orb

import (
	"sync"
	"time"

	"github.com/steinwealth/easyorb/internal/clock"
	"github.com/steinwealth/easyorb/internal/logger"
	"github.com/steinwealth/easyorb/internal/model"
	"github.com/steinwealth/easyorb/internal/scoring"
	"github.com/steinwealth/easyorb/internal/vwap"
)

const (
	breakoutMultiplier = 1.002 // SO must clear the ORB extreme by 0.2%
	soWindowStart       = 45 * time.Minute
	soWindowGrace       = 5 * time.Minute // tolerate feed jitter around the 45m mark
	orrWindowStart      = 45 * time.Minute
	orrWindowEnd        = 5*time.Hour + 45*time.Minute
)

// MarketTick is a single live-quote evaluation input. VolumeRatio and
// Indicators are computed upstream (by the market-data provider) and
// carried through onto any emitted signal.
type MarketTick struct {
	Price       float64
	VolumeRatio float64
	Indicators  model.Indicators
}

// candle is a completed 15-minute OHLCV bucket.
type candle struct {
	Open, High, Low, Close, Volume float64
}

// candleAgg accumulates 1-minute bars into the in-progress 15-minute
// bucket identified by bucketIndex (0 == [open, open+15m)).
type candleAgg struct {
	started     bool
	bucketIndex int
	open, high, low, close, volume float64
}

func (a *candleAgg) reset(bucketIndex int, bar vwap.Bar) {
	a.started = true
	a.bucketIndex = bucketIndex
	a.open = bar.Open
	a.high = bar.High
	a.low = bar.Low
	a.close = bar.Close
	a.volume = bar.Volume
}

func (a *candleAgg) update(bar vwap.Bar) {
	if bar.High > a.high {
		a.high = bar.High
	}
	if bar.Low < a.low {
		a.low = bar.Low
	}
	a.close = bar.Close
	a.volume += bar.Volume
}

func (a *candleAgg) toCandle() candle {
	return candle{Open: a.open, High: a.high, Low: a.low, Close: a.close, Volume: a.volume}
}

// symbolState is one symbol's accumulated state for the current trading day.
type symbolState struct {
	tradingDate  string
	agg          candleAgg
	candles      []candle
	orb          *model.ORBData
	minSinceOpen float64
	sawBelowLow  bool
	soEmitted    bool
	orrEmitted   bool
}

// Engine is the Opening Range Breakout engine. Safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	clock  *clock.Clock
	vwaps  map[string]*vwap.Tracker
	states map[string]*symbolState
	log    *logger.Logger
}

// New creates an Engine driven by clk for session-relative timing.
func New(clk *clock.Clock) *Engine {
	return &Engine{
		clock:  clk,
		vwaps:  make(map[string]*vwap.Tracker),
		states: make(map[string]*symbolState),
		log:    logger.For("orb"),
	}
}

// VWAP returns the running VWAP tracker for ticker, creating one if absent.
// Callers (e.g. the exit engine's reclaim check) share this tracker rather
// than keeping a second copy of the day's bars.
func (e *Engine) VWAP(ticker string) *vwap.Tracker {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vwapLocked(ticker)
}

func (e *Engine) vwapLocked(ticker string) *vwap.Tracker {
	t, ok := e.vwaps[ticker]
	if !ok {
		t = vwap.NewTracker()
		e.vwaps[ticker] = t
	}
	return t
}

func (e *Engine) stateLocked(ticker string, now time.Time) *symbolState {
	tradingDate := e.clock.TradingDate(now)
	st, ok := e.states[ticker]
	if !ok || st.tradingDate != tradingDate {
		st = &symbolState{tradingDate: tradingDate}
		e.states[ticker] = st
		e.vwapLocked(ticker).Reset(tradingDate)
	}
	return st
}

// OnBar feeds a completed 1-minute bar for ticker. It rolls bars into
// 15-minute candles, captures the opening range from the first candle, and
// updates the VWAP tracker.
func (e *Engine) OnBar(ticker string, bar vwap.Bar, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tradingDate := e.clock.TradingDate(now)
	st := e.stateLocked(ticker, now)
	e.vwapLocked(ticker).AddBar(tradingDate, bar)

	open := e.clock.Open(now)
	elapsed := now.Sub(open)
	if elapsed < 0 {
		return
	}
	bucketIdx := int(elapsed / (15 * time.Minute))

	if !st.agg.started {
		st.agg.reset(bucketIdx, bar)
	} else if st.agg.bucketIndex != bucketIdx {
		st.candles = append(st.candles, st.agg.toCandle())
		e.onCandleCompleted(st, now)
		st.agg.reset(bucketIdx, bar)
	} else {
		st.agg.update(bar)
	}

	if st.minSinceOpen == 0 || bar.Low < st.minSinceOpen {
		st.minSinceOpen = bar.Low
	}
	if st.orb != nil && bar.Low < st.orb.ORBLow {
		st.sawBelowLow = true
	}
}

// onCandleCompleted captures the opening range once the first 15-minute
// candle closes.
func (e *Engine) onCandleCompleted(st *symbolState, now time.Time) {
	if len(st.candles) == 1 && st.orb == nil {
		c := st.candles[0]
		rangePct := 0.0
		if c.Low > 0 {
			rangePct = (c.High - c.Low) / c.Low
		}
		st.orb = &model.ORBData{
			ORBHigh:      c.High,
			ORBLow:       c.Low,
			ORBRange:     c.High - c.Low,
			ORBVolumeAvg: c.Volume,
			ORBRangePct:  rangePct,
			CapturedAt:   now,
		}
	}
}

// ORBFor returns the captured opening range for ticker on the current
// trading day, or nil if not yet captured.
func (e *Engine) ORBFor(ticker string, now time.Time) *model.ORBData {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[ticker]
	if !ok || st.tradingDate != e.clock.TradingDate(now) || st.orb == nil {
		return nil
	}
	cp := *st.orb
	cp.Ticker = ticker
	cp.TradingDate = st.tradingDate
	return &cp
}

// Evaluate checks tick against ticker's current signal eligibility and
// returns a newly emitted ORBSignal, or nil if no signal fires. Each of SO
// and ORR fires at most once per (ticker, trading date).
func (e *Engine) Evaluate(ticker string, tick MarketTick, now time.Time) *model.ORBSignal {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[ticker]
	tradingDate := e.clock.TradingDate(now)
	if !ok || st.tradingDate != tradingDate || st.orb == nil {
		return nil
	}
	if tick.Price < st.orb.ORBLow {
		st.sawBelowLow = true
	}

	elapsed := now.Sub(e.clock.Open(now))
	orbData := *st.orb

	if sig := e.evaluateSO(ticker, st, tick, orbData, elapsed, now); sig != nil {
		return sig
	}
	return e.evaluateORR(ticker, st, tick, orbData, elapsed, now)
}

func (e *Engine) evaluateSO(ticker string, st *symbolState, tick MarketTick, orbData model.ORBData, elapsed time.Duration, now time.Time) *model.ORBSignal {
	if st.soEmitted || len(st.candles) < 3 {
		return nil
	}
	if elapsed < soWindowStart || elapsed >= soWindowStart+soWindowGrace {
		return nil
	}
	c2 := st.candles[2]

	bullish := tick.Price >= orbData.ORBHigh*breakoutMultiplier &&
		c2.Close > orbData.ORBHigh && c2.Close > c2.Open
	bearish := tick.Price <= orbData.ORBLow/breakoutMultiplier &&
		c2.Close < orbData.ORBLow && c2.Close < c2.Open

	switch {
	case bullish:
		st.soEmitted = true
		return e.buildSignal(ticker, st, model.SignalSO, model.Long, tick, orbData, now)
	case bearish:
		st.soEmitted = true
		return e.buildSignal(ticker, st, model.SignalSO, model.Short, tick, orbData, now)
	default:
		return nil
	}
}

func (e *Engine) evaluateORR(ticker string, st *symbolState, tick MarketTick, orbData model.ORBData, elapsed time.Duration, now time.Time) *model.ORBSignal {
	if st.orrEmitted || elapsed < orrWindowStart || elapsed > orrWindowEnd {
		return nil
	}
	if st.sawBelowLow && tick.Price > orbData.ORBHigh {
		st.orrEmitted = true
		return e.buildSignal(ticker, st, model.SignalORR, model.Long, tick, orbData, now)
	}
	return nil
}

func (e *Engine) buildSignal(ticker string, st *symbolState, sigType model.SignalType, side model.Side, tick MarketTick, orbData model.ORBData, now time.Time) *model.ORBSignal {
	extreme := orbData.ORBHigh
	if side == model.Short {
		extreme = orbData.ORBLow
	}
	breakoutPct := 0.0
	if extreme > 0 {
		breakoutPct = absFloat(tick.Price-extreme) / extreme
	}
	confidence := scoring.Clamp01((scoring.BreakoutPctScore(breakoutPct) +
		scoring.VolumeRatioScore(tick.VolumeRatio) +
		scoring.ORBRangePctScore(orbData.ORBRangePct)) / 3)

	return &model.ORBSignal{
		Ticker:      ticker,
		TradingDate: st.tradingDate,
		SignalType:  sigType,
		Side:        side,
		PriceAtEmit: tick.Price,
		VWAP:        e.vwapLocked(ticker).VWAP(),
		VolumeRatio: tick.VolumeRatio,
		Indicators:  tick.Indicators,
		Confidence:  confidence,
		EmittedAt:   now,
		ORBHigh:     orbData.ORBHigh,
		ORBLow:      orbData.ORBLow,
	}
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
