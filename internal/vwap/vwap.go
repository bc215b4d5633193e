// Package vwap collects intraday 1-minute bars and computes the
// volume-weighted average price, as a per-symbol, per-day rolling tracker
// shared by C5 (SO/ORR eligibility) and C8 (VWAP-reclaim invalidation
// checks).
package vwap

import (
	"sync"
	"time"
)

// Bar is a single 1-minute OHLCV bar.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

func (b Bar) typicalPrice() float64 { return (b.High + b.Low + b.Close) / 3 }

// Tracker accumulates bars for one symbol across a single trading day.
type Tracker struct {
	mu        sync.RWMutex
	bars      []Bar
	sumTPV    float64
	sumVolume float64
	openPrice float64
	dayKey    string
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{bars: make([]Bar, 0, 390)}
}

// Reset clears accumulated state for a new trading day, keyed by date
// (YYYY-MM-DD) so a stale AddBar call for yesterday is a no-op.
func (t *Tracker) Reset(dayKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bars = t.bars[:0]
	t.sumTPV = 0
	t.sumVolume = 0
	t.openPrice = 0
	t.dayKey = dayKey
}

// AddBar folds bar into the running VWAP sums.
func (t *Tracker) AddBar(dayKey string, bar Bar) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if dayKey != t.dayKey {
		return
	}
	if len(t.bars) == 0 {
		t.openPrice = bar.Open
	}
	t.bars = append(t.bars, bar)
	tp := bar.typicalPrice()
	t.sumTPV += tp * bar.Volume
	t.sumVolume += bar.Volume
}

// VWAP returns the volume-weighted average price accumulated so far, or 0
// if no bars have been added.
func (t *Tracker) VWAP() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.sumVolume == 0 {
		return 0
	}
	return t.sumTPV / t.sumVolume
}

// OpenPrice returns the day's recorded open price.
func (t *Tracker) OpenPrice() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.openPrice
}

// BarCount returns the number of bars collected today.
func (t *Tracker) BarCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.bars)
}

// BarAt returns the bar at index i (0-based, chronological), or the zero
// Bar and false if out of range.
func (t *Tracker) BarAt(i int) (Bar, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i < 0 || i >= len(t.bars) {
		return Bar{}, false
	}
	return t.bars[i], true
}

// Bars returns a copy of all bars collected today.
func (t *Tracker) Bars() []Bar {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Bar, len(t.bars))
	copy(out, t.bars)
	return out
}
