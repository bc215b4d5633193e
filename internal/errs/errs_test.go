package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWithMessageWrapsSentinel(t *testing.T) {
	err := New(TokenExpired, "refresh token rejected")
	require.EqualError(t, err, "refresh token rejected: token_expired")
	require.True(t, errors.Is(err, Sentinel(TokenExpired)))
	require.False(t, errors.Is(err, Sentinel(TokenInactive)))
}

func TestNewWithoutMessageReturnsBareSentinel(t *testing.T) {
	err := New(MarketClosed, "")
	require.Equal(t, Sentinel(MarketClosed), err)
}

func TestNewfFormatsMessage(t *testing.T) {
	err := Newf(BudgetExceeded, "wanted %d, had %d", 500, 100)
	require.EqualError(t, err, "wanted 500, had 100: budget_exceeded")
}

func TestIsMatchesThroughWrapping(t *testing.T) {
	inner := New(BrokerTransient, "timeout")
	outer := fmt.Errorf("placing order: %w", inner)
	require.True(t, Is(outer, BrokerTransient))
	require.False(t, Is(outer, BrokerPermanent))
}

func TestKindOfExtractsKindThroughWrapping(t *testing.T) {
	inner := New(StaleChain, "quote older than 5s")
	outer := fmt.Errorf("pricing leg: %w", inner)

	kind, ok := KindOf(outer)
	require.True(t, ok)
	require.Equal(t, StaleChain, kind)
}

func TestKindOfReturnsFalseForPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("boom"))
	require.False(t, ok)
}

func TestSentinelIsStableAcrossCalls(t *testing.T) {
	require.Same(t, Sentinel(InvariantViolation), Sentinel(InvariantViolation))
}
