package vwap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVWAPIsZeroBeforeAnyBars(t *testing.T) {
	tr := NewTracker()
	require.Equal(t, 0.0, tr.VWAP())
	require.Equal(t, 0, tr.BarCount())
}

func TestAddBarAccumulatesVolumeWeightedAverage(t *testing.T) {
	tr := NewTracker()
	tr.Reset("2026-03-09")

	tr.AddBar("2026-03-09", Bar{Open: 100, High: 102, Low: 98, Close: 100, Volume: 1000})
	tr.AddBar("2026-03-09", Bar{Open: 100, High: 106, Low: 102, Close: 104, Volume: 2000})

	// typical prices: (102+98+100)/3=100, (106+102+104)/3=104
	// vwap = (100*1000 + 104*2000) / 3000 = (100000+208000)/3000
	want := (100.0*1000 + 104.0*2000) / 3000
	require.InDelta(t, want, tr.VWAP(), 1e-9)
	require.Equal(t, 2, tr.BarCount())
}

func TestAddBarIgnoresStaleDayKey(t *testing.T) {
	tr := NewTracker()
	tr.Reset("2026-03-09")
	tr.AddBar("2026-03-06", Bar{Open: 50, High: 51, Low: 49, Close: 50, Volume: 500})

	require.Equal(t, 0, tr.BarCount())
	require.Equal(t, 0.0, tr.VWAP())
}

func TestOpenPriceIsFirstBarsOpen(t *testing.T) {
	tr := NewTracker()
	tr.Reset("2026-03-09")
	tr.AddBar("2026-03-09", Bar{Open: 150.25, High: 151, Low: 149, Close: 150, Volume: 100})
	tr.AddBar("2026-03-09", Bar{Open: 150.50, High: 152, Low: 150, Close: 151, Volume: 100})

	require.Equal(t, 150.25, tr.OpenPrice())
}

func TestResetClearsAccumulatedStateForNewDay(t *testing.T) {
	tr := NewTracker()
	tr.Reset("2026-03-09")
	tr.AddBar("2026-03-09", Bar{Open: 100, High: 101, Low: 99, Close: 100, Volume: 100})
	require.Equal(t, 1, tr.BarCount())

	tr.Reset("2026-03-10")
	require.Equal(t, 0, tr.BarCount())
	require.Equal(t, 0.0, tr.VWAP())
	require.Equal(t, 0.0, tr.OpenPrice())

	// Bars from the old day are now stale and ignored.
	tr.AddBar("2026-03-09", Bar{Open: 200, High: 201, Low: 199, Close: 200, Volume: 100})
	require.Equal(t, 0, tr.BarCount())
}

func TestBarAtAndBarsReturnChronologicalCopy(t *testing.T) {
	tr := NewTracker()
	tr.Reset("2026-03-09")
	b1 := Bar{Time: time.Date(2026, 3, 9, 9, 30, 0, 0, time.UTC), Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}
	b2 := Bar{Time: time.Date(2026, 3, 9, 9, 31, 0, 0, time.UTC), Open: 100, High: 103, Low: 100, Close: 102, Volume: 20}
	tr.AddBar("2026-03-09", b1)
	tr.AddBar("2026-03-09", b2)

	got, ok := tr.BarAt(1)
	require.True(t, ok)
	require.Equal(t, b2, got)

	_, ok = tr.BarAt(2)
	require.False(t, ok)

	bars := tr.Bars()
	require.Len(t, bars, 2)
	require.Equal(t, b1, bars[0])
}
