package clock

import "time"

// Holiday names a single calendar date of significance.
type Holiday struct {
	Date time.Time
	Name string
}

// EarlyClose names a half trading day and its close time (exchange tz).
type EarlyClose struct {
	Date      time.Time
	Name      string
	CloseHour int
	CloseMin  int
}

// easterSunday computes the date of Easter Sunday for year via the
// anonymous-Gregorian algorithm (ported from
// original_source/modules/dynamic_holiday_calculator.py:calculate_easter).
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	n := (h + l - 7*m + 114) / 31
	p := (h + l - 7*m + 114) % 31
	return time.Date(year, time.Month(n), p+1, 0, 0, 0, 0, time.UTC)
}

// nthWeekdayOfMonth returns the nth occurrence (1-indexed) of weekday in
// month/year. weekday uses time.Weekday (Sunday=0).
func nthWeekdayOfMonth(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	daysAhead := int(weekday) - int(first.Weekday())
	if daysAhead < 0 {
		daysAhead += 7
	}
	firstOccurrence := first.AddDate(0, 0, daysAhead)
	return firstOccurrence.AddDate(0, 0, 7*(n-1))
}

// lastWeekdayOfMonth returns the last occurrence of weekday in month/year.
func lastWeekdayOfMonth(year int, month time.Month, weekday time.Weekday) time.Time {
	lastDay := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	daysBack := int(lastDay.Weekday()) - int(weekday)
	if daysBack < 0 {
		daysBack += 7
	}
	return lastDay.AddDate(0, 0, -daysBack)
}

// usBankHolidays returns the market-closed holidays for year.
func usBankHolidays(year int) []Holiday {
	out := []Holiday{
		{time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC), "New Year's Day"},
		{time.Date(year, 7, 4, 0, 0, 0, 0, time.UTC), "Independence Day"},
		{time.Date(year, 12, 25, 0, 0, 0, 0, time.UTC), "Christmas Day"},
		{nthWeekdayOfMonth(year, time.January, time.Monday, 3), "Martin Luther King Jr. Day"},
		{nthWeekdayOfMonth(year, time.February, time.Monday, 3), "Presidents' Day"},
		{easterSunday(year).AddDate(0, 0, -2), "Good Friday"},
		{lastWeekdayOfMonth(year, time.May, time.Monday), "Memorial Day"},
		{time.Date(year, 6, 19, 0, 0, 0, 0, time.UTC), "Juneteenth"},
		{nthWeekdayOfMonth(year, time.September, time.Monday, 1), "Labor Day"},
		{nthWeekdayOfMonth(year, time.November, time.Thursday, 4), "Thanksgiving Day"},
	}
	return out
}

func isWeekday(d time.Time) bool {
	return d.Weekday() != time.Saturday && d.Weekday() != time.Sunday
}

// lowVolumeSkipDays returns days the market is open but strategy should
// skip trading due to historically thin volume.
func lowVolumeSkipDays(year int) []Holiday {
	var out []Holiday

	halloween := time.Date(year, 10, 31, 0, 0, 0, 0, time.UTC)
	if isWeekday(halloween) {
		out = append(out, Holiday{halloween, "Halloween"})
	}

	out = append(out, Holiday{nthWeekdayOfMonth(year, time.October, time.Monday, 2), "Indigenous Peoples' Day / Columbus Day"})

	veterans := time.Date(year, 11, 11, 0, 0, 0, 0, time.UTC)
	if isWeekday(veterans) {
		out = append(out, Holiday{veterans, "Veterans Day"})
	}

	thanksgiving := nthWeekdayOfMonth(year, time.November, time.Thursday, 4)
	dayBefore := thanksgiving.AddDate(0, 0, -1)
	if isWeekday(dayBefore) {
		out = append(out, Holiday{dayBefore, "Day Before Thanksgiving"})
	}
	blackFriday := thanksgiving.AddDate(0, 0, 1)
	if isWeekday(blackFriday) {
		out = append(out, Holiday{blackFriday, "Black Friday"})
	}

	christmasEve := time.Date(year, 12, 24, 0, 0, 0, 0, time.UTC)
	if isWeekday(christmasEve) {
		out = append(out, Holiday{christmasEve, "Christmas Eve"})
	}
	nye := time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)
	if isWeekday(nye) {
		out = append(out, Holiday{nye, "New Year's Eve"})
	}

	christmas := time.Date(year, 12, 25, 0, 0, 0, 0, time.UTC)
	dayAfterXmas := time.Date(year, 12, 26, 0, 0, 0, 0, time.UTC)
	if isWeekday(christmas) && isWeekday(dayAfterXmas) {
		out = append(out, Holiday{dayAfterXmas, "Day After Christmas"})
	}

	newYears := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	dayAfterNY := time.Date(year, 1, 2, 0, 0, 0, 0, time.UTC)
	if isWeekday(newYears) && isWeekday(dayAfterNY) {
		out = append(out, Holiday{dayAfterNY, "Day After New Year's"})
	}

	return out
}

// earlyCloseDays returns the half trading days for year with 13:00 local close.
func earlyCloseDays(year int) []EarlyClose {
	var out []EarlyClose

	july4 := time.Date(year, 7, 4, 0, 0, 0, 0, time.UTC)
	switch july4.Weekday() {
	case time.Sunday:
		out = append(out, EarlyClose{time.Date(year, 7, 3, 0, 0, 0, 0, time.UTC), "Independence Day Eve", 13, 0})
	case time.Tuesday, time.Wednesday, time.Thursday, time.Friday:
		out = append(out, EarlyClose{time.Date(year, 7, 3, 0, 0, 0, 0, time.UTC), "Independence Day Eve", 13, 0})
	}

	thanksgiving := nthWeekdayOfMonth(year, time.November, time.Thursday, 4)
	blackFriday := thanksgiving.AddDate(0, 0, 1)
	out = append(out, EarlyClose{blackFriday, "Black Friday", 13, 0})

	christmas := time.Date(year, 12, 25, 0, 0, 0, 0, time.UTC)
	switch christmas.Weekday() {
	case time.Sunday:
		out = append(out, EarlyClose{time.Date(year, 12, 24, 0, 0, 0, 0, time.UTC), "Christmas Eve", 13, 0})
	case time.Tuesday, time.Wednesday, time.Thursday, time.Friday:
		out = append(out, EarlyClose{time.Date(year, 12, 24, 0, 0, 0, 0, time.UTC), "Christmas Eve", 13, 0})
	}

	return out
}
