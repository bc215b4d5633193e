// Package clock implements the Session Clock: a pure
// function of wall clock and the holiday calendar, cacheable per year.
package clock

import (
	"sync"
	"time"

	"github.com/steinwealth/easyorb/internal/model"
)

var exchangeLoc = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("ET", -5*60*60)
	}
	return loc
}()

// yearData is the cached, pre-computed holiday set for a single year.
type yearData struct {
	bankHolidays map[string]string // YYYY-MM-DD -> name
	lowVolume    map[string]string
	earlyClose   map[string]EarlyClose
}

// Clock is the Session Clock. Safe for concurrent use; its only mutable
// state is the per-year holiday cache.
type Clock struct {
	mu    sync.RWMutex
	years map[int]*yearData
}

// New creates a Session Clock.
func New() *Clock {
	return &Clock{years: make(map[int]*yearData)}
}

func dateKey(d time.Time) string { return d.Format("2006-01-02") }

func (c *Clock) dataFor(year int) *yearData {
	c.mu.RLock()
	yd, ok := c.years[year]
	c.mu.RUnlock()
	if ok {
		return yd
	}

	yd = &yearData{
		bankHolidays: make(map[string]string),
		lowVolume:    make(map[string]string),
		earlyClose:   make(map[string]EarlyClose),
	}
	for _, h := range usBankHolidays(year) {
		yd.bankHolidays[dateKey(h.Date)] = h.Name
	}
	for _, h := range lowVolumeSkipDays(year) {
		yd.lowVolume[dateKey(h.Date)] = h.Name
	}
	for _, e := range earlyCloseDays(year) {
		yd.earlyClose[dateKey(e.Date)] = e
	}

	c.mu.Lock()
	c.years[year] = yd
	c.mu.Unlock()
	return yd
}

// InET converts a time to exchange-local (America/New_York) time.
func InET(t time.Time) time.Time { return t.In(exchangeLoc) }

// IsTradingDay reports whether date is a regular trading day: not a
// weekend, not a bank holiday, and not a low-volume skip day.
func (c *Clock) IsTradingDay(date time.Time) bool {
	date = InET(date)
	if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
		return false
	}
	yd := c.dataFor(date.Year())
	key := dateKey(date)
	if _, ok := yd.bankHolidays[key]; ok {
		return false
	}
	if _, ok := yd.lowVolume[key]; ok {
		return false
	}
	return true
}

// SkipReason returns why IsTradingDay returned false for date, or "" if it
// is a normal trading day. Values: "MARKET_CLOSED", "LOW_VOLUME", "WEEKEND".
func (c *Clock) SkipReason(date time.Time) (skip bool, reason, name string) {
	date = InET(date)
	if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
		return true, "WEEKEND", ""
	}
	yd := c.dataFor(date.Year())
	key := dateKey(date)
	if n, ok := yd.bankHolidays[key]; ok {
		return true, "MARKET_CLOSED", n
	}
	if n, ok := yd.lowVolume[key]; ok {
		return true, "LOW_VOLUME", n
	}
	return false, "", ""
}

// earlyCloseFor returns (closeHour, closeMin, true) if date is a half day.
func (c *Clock) earlyCloseFor(date time.Time) (int, int, bool) {
	yd := c.dataFor(date.Year())
	e, ok := yd.earlyClose[dateKey(date)]
	if !ok {
		return 0, 0, false
	}
	return e.CloseHour, e.CloseMin, true
}

// sessionBounds returns today's RTH open/close, prep start, and cooldown
// end, all in exchange-local time, for the date portion of now.
func (c *Clock) sessionBounds(now time.Time) (open, close, prepStart, cooldownEnd time.Time) {
	et := InET(now)
	y, m, d := et.Date()
	open = time.Date(y, m, d, 9, 30, 0, 0, exchangeLoc)
	closeHour, closeMin := 16, 0
	if h, mi, ok := c.earlyCloseFor(time.Date(y, m, d, 0, 0, 0, 0, time.UTC)); ok {
		closeHour, closeMin = h, mi
	}
	close = time.Date(y, m, d, closeHour, closeMin, 0, 0, exchangeLoc)
	prepStart = time.Date(y, m, d, 4, 0, 0, 0, exchangeLoc)
	cooldownEnd = time.Date(y, m, d, 20, 0, 0, 0, exchangeLoc)
	return
}

// IsMarketOpen reports whether now falls within RTH on a trading day,
// respecting early closes.
func (c *Clock) IsMarketOpen(now time.Time) bool {
	et := InET(now)
	if !c.IsTradingDay(et) {
		return false
	}
	open, close, _, _ := c.sessionBounds(et)
	return !et.Before(open) && et.Before(close)
}

// Phase resolves the current SessionPhase.
func (c *Clock) Phase(now time.Time) model.SessionPhase {
	et := InET(now)
	if !c.IsTradingDay(et) {
		return model.PhaseDark
	}
	open, close, prepStart, cooldownEnd := c.sessionBounds(et)
	switch {
	case !et.Before(prepStart) && et.Before(open):
		return model.PhasePrep
	case !et.Before(open) && et.Before(close):
		return model.PhaseOpen
	case !et.Before(close) && et.Before(cooldownEnd):
		return model.PhaseCooldown
	default:
		return model.PhaseDark
	}
}

// Open returns today's RTH open time, in exchange-local time, for the date
// portion of now. Callers use this to derive the open-relative windows that
// drive opening-range capture and signal timing.
func (c *Clock) Open(now time.Time) time.Time {
	open, _, _, _ := c.sessionBounds(now)
	return open
}

// Close returns today's RTH close time (respecting early closes), in
// exchange-local time, for the date portion of now.
func (c *Clock) Close(now time.Time) time.Time {
	_, close, _, _ := c.sessionBounds(now)
	return close
}

// TradingDate returns now's exchange-local calendar date as YYYY-MM-DD.
func (c *Clock) TradingDate(now time.Time) string {
	return dateKey(InET(now))
}

// IsEarlyClose reports whether date's session ends at 13:00 ET.
func (c *Clock) IsEarlyClose(date time.Time) bool {
	_, _, ok := c.earlyCloseFor(InET(date))
	return ok
}

// NextOpen returns the next RTH open at or after now.
func (c *Clock) NextOpen(now time.Time) time.Time {
	et := InET(now)
	for i := 0; i < 14; i++ {
		candidate := et.AddDate(0, 0, i)
		if !c.IsTradingDay(candidate) {
			continue
		}
		open, _, _, _ := c.sessionBounds(candidate)
		if !open.Before(et) {
			return open
		}
	}
	return et // unreachable in practice
}

// NextClose returns the next RTH close at or after now (the close of the
// trading day returned by NextOpen's day if now is already in session).
func (c *Clock) NextClose(now time.Time) time.Time {
	et := InET(now)
	if c.IsTradingDay(et) {
		open, close, _, _ := c.sessionBounds(et)
		if et.Before(close) && !et.Before(open.AddDate(0, 0, -1)) {
			return close
		}
	}
	for i := 0; i < 14; i++ {
		candidate := et.AddDate(0, 0, i)
		if !c.IsTradingDay(candidate) {
			continue
		}
		_, close, _, _ := c.sessionBounds(candidate)
		if close.After(et) {
			return close
		}
	}
	return et
}
