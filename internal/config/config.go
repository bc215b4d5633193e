// Package config centralizes the process's environment-variable surface
// into one immutable record, parsed once at process start and passed by
// reference to every component. The only other direct env reads are the
// logging switches: LOG_LEVEL in cmd/easyorb and EASYORB_LOG_JSON in
// internal/logger.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment identifies a broker environment.
type Environment string

const (
	Sandbox    Environment = "sandbox"
	Production Environment = "prod"
)

// Mode selects between live broker execution and the in-memory simulator.
type Mode string

const (
	ModeLive Mode = "live"
	ModeDemo Mode = "demo"
)

// Config is the immutable, process-wide configuration record.
type Config struct {
	Environment Environment
	Mode        Mode

	ETradeProdKey       string
	ETradeProdSecret    string
	ETradeSandboxKey    string
	ETradeSandboxSecret string

	SlipGuardEnabled       bool
	SlipGuardADVPct        float64
	SlipGuardLookbackDays  int
	ExitMonitoringEnabled  bool
	BrokerStreamingEnabled bool

	// Sizing defaults.
	TradingCapitalPct float64
	MaxPositionPct    float64
	MaxConcurrent     int

	// Monitor cadence for C8.
	MonitorInterval time.Duration

	// Bounded in-flight broker calls.
	MaxInFlightBrokerCalls int

	WatchlistPath     string
	ZeroDTEListPath   string
	StateDir          string
	AdminHTTPEnabled  bool
	AdminHTTPAddr     string
	AdminJWTSecret    string
	OAuthTOTPSecretSB string
	OAuthTOTPSecretPD string
}

func getenvBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func getenvFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

func getenvInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return i
}

func getenvStr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// Load parses the configuration from the environment, first merging in an
// optional .env file (godotenv) if present in the working directory. A
// missing .env file is not an error.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: Environment(getenvStr("ETRADE_ENVIRONMENT", string(Sandbox))),
		Mode:        Mode(getenvStr("ETRADE_MODE", string(ModeDemo))),

		ETradeProdKey:       os.Getenv("ETRADE_PROD_KEY"),
		ETradeProdSecret:    os.Getenv("ETRADE_PROD_SECRET"),
		ETradeSandboxKey:    os.Getenv("ETRADE_SANDBOX_KEY"),
		ETradeSandboxSecret: os.Getenv("ETRADE_SANDBOX_SECRET"),

		SlipGuardEnabled:      getenvBool("SLIP_GUARD_ENABLED", true),
		SlipGuardADVPct:       getenvFloat("SLIP_GUARD_ADV_PCT", 1.0),
		SlipGuardLookbackDays: getenvInt("SLIP_GUARD_LOOKBACK_DAYS", 90),
		ExitMonitoringEnabled: getenvBool("EXIT_MONITORING_ENABLED", true),
		BrokerStreamingEnabled: getenvBool("BROKER_STREAMING_ENABLED", false),

		TradingCapitalPct: getenvFloat("TRADING_CAPITAL_PCT", 90.0),
		MaxPositionPct:    getenvFloat("MAX_POSITION_PCT", 35.0),
		MaxConcurrent:     getenvInt("MAX_CONCURRENT_SIGNALS", 15),

		MonitorInterval:        time.Duration(getenvInt("MONITOR_INTERVAL_SECONDS", 30)) * time.Second,
		MaxInFlightBrokerCalls: getenvInt("MAX_INFLIGHT_BROKER_CALLS", 8),

		WatchlistPath:    getenvStr("WATCHLIST_PATH", "watchlist.csv"),
		ZeroDTEListPath:  getenvStr("ZERODTE_WATCHLIST_PATH", "watchlist_0dte.csv"),
		StateDir:         getenvStr("EASYORB_STATE_DIR", "./state"),
		AdminHTTPEnabled: getenvBool("ADMIN_HTTP_ENABLED", false),
		AdminHTTPAddr:    getenvStr("ADMIN_HTTP_ADDR", "127.0.0.1:8787"),
		AdminJWTSecret:   os.Getenv("ADMIN_JWT_SECRET"),

		OAuthTOTPSecretSB: os.Getenv("ETRADE_SANDBOX_TOTP_SECRET"),
		OAuthTOTPSecretPD: os.Getenv("ETRADE_PROD_TOTP_SECRET"),
	}
	return cfg
}

// ConsumerKey returns the OAuth consumer key for the given environment.
func (c *Config) ConsumerKey(env Environment) string {
	if env == Production {
		return c.ETradeProdKey
	}
	return c.ETradeSandboxKey
}

// ConsumerSecret returns the OAuth consumer secret for the given environment.
func (c *Config) ConsumerSecret(env Environment) string {
	if env == Production {
		return c.ETradeProdSecret
	}
	return c.ETradeSandboxSecret
}

// BaseURL returns the broker REST base URL for the given environment.
func (c *Config) BaseURL(env Environment) string {
	if env == Production {
		return "https://api.etrade.com"
	}
	return "https://apisb.etrade.com"
}

// TOTPSecret returns the optional MFA seed for the given environment.
func (c *Config) TOTPSecret(env Environment) string {
	if env == Production {
		return c.OAuthTOTPSecretPD
	}
	return c.OAuthTOTPSecretSB
}
