// Package advcache implements the ADV Cache: a
// process-wide ticker -> 90-day rolling average-dollar-volume map, with a
// disk fallback and a stale flag after 24h.
package advcache

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/steinwealth/easyorb/internal/logger"
)

// Mode selects the conservative/aggressive risk-sizing multiplier.
type Mode string

const (
	Conservative Mode = "conservative"
	Aggressive   Mode = "aggressive"
)

// Source fetches fresh 90-day ADV figures for a watchlist. The production
// implementation wraps a historical-data REST endpoint; tests supply a
// static map.
type Source interface {
	FetchADV(ctx context.Context, symbols []string, lookbackDays int) (map[string]float64, error)
}

type diskState struct {
	ADVData      map[string]float64 `json:"adv_data"`
	LastRefresh  time.Time          `json:"last_refresh"`
	LookbackDays int                `json:"lookback_days"`
}

// Cache is the ADV Cache. Safe for concurrent use.
type Cache struct {
	mu           sync.RWMutex
	data         map[string]float64
	lastRefresh  time.Time
	lookbackDays int
	stalePeriod  time.Duration
	diskPath     string
	source       Source
	log          *logger.Logger
}

// New creates a Cache persisting to stateDir/adv_cache.json.
func New(stateDir string, lookbackDays int, source Source) *Cache {
	c := &Cache{
		data:         make(map[string]float64),
		lookbackDays: lookbackDays,
		stalePeriod:  24 * time.Hour,
		diskPath:     filepath.Join(stateDir, "adv_cache.json"),
		source:       source,
		log:          logger.For("advcache"),
	}
	c.loadFromDisk()
	return c
}

func (c *Cache) loadFromDisk() {
	raw, err := os.ReadFile(c.diskPath)
	if err != nil {
		return
	}
	var st diskState
	if err := json.Unmarshal(raw, &st); err != nil {
		return
	}
	c.mu.Lock()
	c.data = st.ADVData
	c.lastRefresh = st.LastRefresh
	if st.LookbackDays > 0 {
		c.lookbackDays = st.LookbackDays
	}
	c.mu.Unlock()
}

func (c *Cache) saveToDisk() error {
	c.mu.RLock()
	st := diskState{ADVData: c.data, LastRefresh: c.lastRefresh, LookbackDays: c.lookbackDays}
	c.mu.RUnlock()
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.diskPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.diskPath, raw, 0o644)
}

// Refresh pulls fresh ADV figures from Source. On failure it keeps serving
// the existing disk-backed data and logs a warning.
func (c *Cache) Refresh(ctx context.Context, symbols []string) error {
	fresh, err := c.source.FetchADV(ctx, symbols, c.lookbackDays)
	if err != nil {
		c.log.Warnf("ADV refresh failed, serving stale/disk data: %v", err)
		return err
	}
	c.mu.Lock()
	c.data = fresh
	c.lastRefresh = time.Now()
	c.mu.Unlock()
	return c.saveToDisk()
}

// IsStale reports whether the cache has not refreshed in over 24h.
func (c *Cache) IsStale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastRefresh.IsZero() {
		return true
	}
	return time.Since(c.lastRefresh) > c.stalePeriod
}

// ADV returns the cached average-daily-dollar-volume for symbol, or
// (0, false) if unknown.
func (c *Cache) ADV(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[symbol]
	return v, ok
}

// Limit returns the liquidity-based position cap for symbol under mode:
// 0.5% of ADV (conservative) or 1% of ADV (aggressive). Returns +Inf when
// the symbol is unknown or its ADV is not positive; the cache has no
// separate disabled switch.
func (c *Cache) Limit(symbol string, mode Mode) float64 {
	adv, ok := c.ADV(symbol)
	if !ok || adv <= 0 {
		return math.Inf(1)
	}
	pct := 0.005
	if mode == Aggressive {
		pct = 0.01
	}
	return adv * pct
}

// RetryableHTTPSource is a Source backed by hashicorp/go-retryablehttp,
// suitable for a non-OAuth-signed historical-data provider where automatic
// request retry is safe (unlike OAuth-signed broker calls, which must mint
// a fresh nonce per attempt — see internal/broker's doSigned).
type RetryableHTTPSource struct {
	Client  *retryablehttp.Client
	FetchFn func(ctx context.Context, client *retryablehttp.Client, symbols []string, lookbackDays int) (map[string]float64, error)
}

// NewRetryableHTTPSource builds a Source with a retryable client that
// retries a failed request up to 3 times.
func NewRetryableHTTPSource(fetch func(ctx context.Context, client *retryablehttp.Client, symbols []string, lookbackDays int) (map[string]float64, error)) *RetryableHTTPSource {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil
	return &RetryableHTTPSource{Client: client, FetchFn: fetch}
}

func (s *RetryableHTTPSource) FetchADV(ctx context.Context, symbols []string, lookbackDays int) (map[string]float64, error) {
	return s.FetchFn(ctx, s.Client, symbols, lookbackDays)
}
