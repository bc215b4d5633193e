package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// clearEtradeEnv sets the variables whose defaults these tests check to "", which getenvStr,
// getenvBool, getenvFloat, and getenvInt all treat as unset (the latter three
// via a failed strconv parse, the former via its explicit empty-string check).
// t.Setenv restores the prior value automatically when the test ends.
func clearEtradeEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ETRADE_ENVIRONMENT", "ETRADE_MODE",
		"ETRADE_PROD_KEY", "ETRADE_PROD_SECRET",
		"ETRADE_SANDBOX_KEY", "ETRADE_SANDBOX_SECRET",
		"SLIP_GUARD_ENABLED", "SLIP_GUARD_ADV_PCT", "SLIP_GUARD_LOOKBACK_DAYS",
		"TRADING_CAPITAL_PCT", "MAX_POSITION_PCT", "MAX_CONCURRENT_SIGNALS",
		"MONITOR_INTERVAL_SECONDS", "WATCHLIST_PATH", "EASYORB_STATE_DIR",
		"ADMIN_HTTP_ENABLED", "ADMIN_HTTP_ADDR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadAppliesDefaultsWhenEnvUnset(t *testing.T) {
	clearEtradeEnv(t)

	cfg := Load()
	require.Equal(t, Sandbox, cfg.Environment)
	require.Equal(t, ModeDemo, cfg.Mode)
	require.True(t, cfg.SlipGuardEnabled)
	require.Equal(t, 1.0, cfg.SlipGuardADVPct)
	require.Equal(t, 90, cfg.SlipGuardLookbackDays)
	require.Equal(t, 90.0, cfg.TradingCapitalPct)
	require.Equal(t, 35.0, cfg.MaxPositionPct)
	require.Equal(t, 15, cfg.MaxConcurrent)
	require.Equal(t, 30*time.Second, cfg.MonitorInterval)
	require.Equal(t, "watchlist.csv", cfg.WatchlistPath)
	require.Equal(t, "./state", cfg.StateDir)
	require.False(t, cfg.AdminHTTPEnabled)
	require.Equal(t, "127.0.0.1:8787", cfg.AdminHTTPAddr)
}

func TestLoadHonorsEnvOverrides(t *testing.T) {
	clearEtradeEnv(t)
	t.Setenv("ETRADE_ENVIRONMENT", "prod")
	t.Setenv("MAX_CONCURRENT_SIGNALS", "7")
	t.Setenv("MONITOR_INTERVAL_SECONDS", "10")
	t.Setenv("SLIP_GUARD_ENABLED", "false")

	cfg := Load()
	require.Equal(t, Production, cfg.Environment)
	require.Equal(t, 7, cfg.MaxConcurrent)
	require.Equal(t, 10*time.Second, cfg.MonitorInterval)
	require.False(t, cfg.SlipGuardEnabled)
}

func TestLoadFallsBackToDefaultOnUnparsableNumericEnv(t *testing.T) {
	clearEtradeEnv(t)
	t.Setenv("MAX_CONCURRENT_SIGNALS", "not-a-number")

	cfg := Load()
	require.Equal(t, 15, cfg.MaxConcurrent)
}

func TestConsumerKeyAndSecretSelectByEnvironment(t *testing.T) {
	cfg := &Config{
		ETradeProdKey:       "prod-key",
		ETradeProdSecret:    "prod-secret",
		ETradeSandboxKey:    "sb-key",
		ETradeSandboxSecret: "sb-secret",
	}
	require.Equal(t, "prod-key", cfg.ConsumerKey(Production))
	require.Equal(t, "prod-secret", cfg.ConsumerSecret(Production))
	require.Equal(t, "sb-key", cfg.ConsumerKey(Sandbox))
	require.Equal(t, "sb-secret", cfg.ConsumerSecret(Sandbox))
}

func TestBaseURLSelectsByEnvironment(t *testing.T) {
	cfg := &Config{}
	require.Equal(t, "https://api.etrade.com", cfg.BaseURL(Production))
	require.Equal(t, "https://apisb.etrade.com", cfg.BaseURL(Sandbox))
}

func TestTOTPSecretSelectsByEnvironment(t *testing.T) {
	cfg := &Config{OAuthTOTPSecretSB: "sb-totp", OAuthTOTPSecretPD: "pd-totp"}
	require.Equal(t, "pd-totp", cfg.TOTPSecret(Production))
	require.Equal(t, "sb-totp", cfg.TOTPSecret(Sandbox))
}
