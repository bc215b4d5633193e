package compound

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCeilingRespectsReserve(t *testing.T) {
	e := New(100000)
	require.InDelta(t, 90000, e.AvailableForSO(), 1e-6)
	require.True(t, e.CanOpen(90000))
	require.False(t, e.CanOpen(90000.01))
}

func TestOpenAndCloseRoundTrip(t *testing.T) {
	e := New(100000)
	e.OnPositionOpened("SO", 20000)
	require.InDelta(t, 70000, e.AvailableForSO(), 1e-6)

	e.OnPositionClosed("SO", 20000, 2000) // winning trade frees more than deployed
	snap := e.Snapshot()
	require.InDelta(t, 0, snap.SODeployed, 1e-6)
	require.InDelta(t, 22000, snap.FreedCapital, 1e-6)
	require.InDelta(t, 112000, e.AvailableForSO(), 1e-6) // 90000 + 22000
}

func TestLosingTradeFreesLessThanDeployed(t *testing.T) {
	e := New(100000)
	e.OnPositionOpened("ORR", 10000)
	e.OnPositionClosed("ORR", 10000, -4000)
	snap := e.Snapshot()
	require.InDelta(t, 6000, snap.FreedCapital, 1e-6)
	require.InDelta(t, -4000, snap.RealizedPnL, 1e-6)
}

func TestSOAndORRShareCeiling(t *testing.T) {
	e := New(100000)
	e.OnPositionOpened("SO", 50000)
	e.OnPositionOpened("ORR", 40000)
	require.False(t, e.CanOpen(1))
}
