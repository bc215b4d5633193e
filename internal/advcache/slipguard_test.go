package advcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCapNotionalPassesThroughWhenDisabled(t *testing.T) {
	c := New(t.TempDir(), 90, fakeSource{data: map[string]float64{"AAPL": 1_000_000}})
	require.NoError(t, c.Refresh(context.Background(), []string{"AAPL"}))

	g := NewSlipGuard(c, false, 1.0, 90)
	require.Equal(t, 50_000.0, g.CapNotional("AAPL", 50_000))
}

func TestCapNotionalPassesThroughForUnknownSymbol(t *testing.T) {
	c := New(t.TempDir(), 90, fakeSource{})
	g := NewSlipGuard(c, true, 1.0, 90)
	require.Equal(t, 50_000.0, g.CapNotional("ZZZZ", 50_000))
}

func TestCapNotionalCapsRequestAboveADVPct(t *testing.T) {
	c := New(t.TempDir(), 90, fakeSource{data: map[string]float64{"AAPL": 1_000_000}})
	require.NoError(t, c.Refresh(context.Background(), []string{"AAPL"}))

	g := NewSlipGuard(c, true, 1.0, 90) // 1% of 1,000,000 = 10,000
	require.Equal(t, 10_000.0, g.CapNotional("AAPL", 50_000))
	require.Equal(t, 5_000.0, g.CapNotional("AAPL", 5_000))
}
