// Package compound implements the Compound Capital Engine (C10): it tracks
// how much of the account's total capital is currently deployed across SO
// and ORR positions against a ceiling of 90% of total capital plus the
// capital freed by closed positions, and frees capital back to the pool as
// positions close (including realized gains or losses), so later-session
// sizing reflects the day's running P&L.
package compound

import "sync"

// ReservePct is the fraction of total capital left out of the deployment
// ceiling. Freed capital is added to the ceiling on top of DeployablePct, so
// once positions have closed the engine can deploy more than DeployablePct
// of total capital.
const ReservePct = 0.10

// DeployablePct is the fraction of total capital that may ever be
// deployed across SO and ORR combined (1 - ReservePct).
const DeployablePct = 1 - ReservePct

// State is a point-in-time snapshot of the compound engine, suitable for
// persistence (internal/store) or the admin status endpoint.
type State struct {
	TotalCapital   float64
	SODeployed     float64
	ORRDeployed    float64
	FreedCapital   float64
	RealizedPnL    float64
	OpenPositions  int
}

// Engine is the Compound Capital Engine. Safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	totalCapital  float64
	soDeployed    float64
	orrDeployed   float64
	freedCapital  float64
	realizedPnL   float64
	openPositions int
}

// New creates an Engine seeded with totalCapital (the account's starting
// trading capital for the day).
func New(totalCapital float64) *Engine {
	return &Engine{totalCapital: totalCapital}
}

// deployedLocked is the sum of capital currently committed to open
// positions, excluding the unused freed pool.
func (e *Engine) deployedLocked() float64 {
	return e.soDeployed + e.orrDeployed
}

// ceilingLocked is the maximum capital that may ever be deployed:
// DeployablePct of total capital plus whatever has been freed by closed
// positions.
func (e *Engine) ceilingLocked() float64 {
	return e.totalCapital*DeployablePct + e.freedCapital
}

// AvailableForSO returns the capital still available for new SO entries:
// the remaining room under the shared ceiling.
func (e *Engine) AvailableForSO() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	room := e.ceilingLocked() - e.deployedLocked()
	if room < 0 {
		return 0
	}
	return room
}

// AvailableForORR returns the capital still available for new ORR entries.
// SO and ORR draw from the same shared ceiling, so this mirrors
// AvailableForSO; both are exposed because the caller (C7) evaluates them
// per signal type and the two may diverge if either side's sizing formula
// changes independently in the future.
func (e *Engine) AvailableForORR() float64 {
	return e.AvailableForSO()
}

// CanOpen reports whether a position of the given notional fits under the
// shared ceiling without exceeding it.
func (e *Engine) CanOpen(notional float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deployedLocked()+notional <= e.ceilingLocked()+1e-6
}

// OnPositionOpened records notional as deployed under signalType.
func (e *Engine) OnPositionOpened(signalType string, notional float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if signalType == "ORR" {
		e.orrDeployed += notional
	} else {
		e.soDeployed += notional
	}
	e.openPositions++
}

// OnPositionClosed frees entryNotional back to the pool and records
// realizedPnL (which may be negative). The freed amount reflects the
// position's actual exit proceeds (entryNotional + realizedPnL), so a
// losing trade frees less than it deployed and a winning trade frees more,
// compounding gains into the next entry's available capital.
func (e *Engine) OnPositionClosed(signalType string, entryNotional, realizedPnL float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if signalType == "ORR" {
		e.orrDeployed -= entryNotional
		if e.orrDeployed < 0 {
			e.orrDeployed = 0
		}
	} else {
		e.soDeployed -= entryNotional
		if e.soDeployed < 0 {
			e.soDeployed = 0
		}
	}
	e.freedCapital += entryNotional + realizedPnL
	e.realizedPnL += realizedPnL
	if e.openPositions > 0 {
		e.openPositions--
	}
}

// Snapshot returns the current state for persistence or reporting.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		TotalCapital:  e.totalCapital,
		SODeployed:    e.soDeployed,
		ORRDeployed:   e.orrDeployed,
		FreedCapital:  e.freedCapital,
		RealizedPnL:   e.realizedPnL,
		OpenPositions: e.openPositions,
	}
}

// Restore replaces the engine's state from a persisted snapshot, used on
// process restart within the same trading day.
func (e *Engine) Restore(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalCapital = s.TotalCapital
	e.soDeployed = s.SODeployed
	e.orrDeployed = s.ORRDeployed
	e.freedCapital = s.FreedCapital
	e.realizedPnL = s.RealizedPnL
	e.openPositions = s.OpenPositions
}
