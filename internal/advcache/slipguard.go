package advcache

// SlipGuard caps order notional against a percentage of average daily
// dollar volume, keeping a single fill from moving a thin name too far.
type SlipGuard struct {
	Enabled      bool
	ADVPct       float64 // e.g. 1.0 == 1%
	LookbackDays int
	cache        *Cache
}

// NewSlipGuard wraps cache with the configured slip-guard thresholds.
func NewSlipGuard(cache *Cache, enabled bool, advPct float64, lookbackDays int) *SlipGuard {
	return &SlipGuard{Enabled: enabled, ADVPct: advPct, LookbackDays: lookbackDays, cache: cache}
}

// CapNotional returns the smaller of requested and the slip-guard cap for
// symbol. When disabled or the symbol's ADV is unknown, requested passes
// through unchanged.
func (g *SlipGuard) CapNotional(symbol string, requested float64) float64 {
	if !g.Enabled {
		return requested
	}
	adv, ok := g.cache.ADV(symbol)
	if !ok || adv <= 0 {
		return requested
	}
	cap := adv * (g.ADVPct / 100.0)
	if requested > cap {
		return cap
	}
	return requested
}
