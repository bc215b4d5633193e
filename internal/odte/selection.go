package odte

import (
	"math"
	"sort"

	"github.com/steinwealth/easyorb/internal/model"
	"github.com/steinwealth/easyorb/internal/scoring"
)

// Long-leg acceptance band for a directional 0DTE vertical's convex wing:
// enough delta to move with the underlying, cheap enough to keep the
// spread's risk:reward in the band the execution gate enforces. The same
// band is reused for a credit spread's near-the-money (sold) leg since
// that is the only leg either builder picks by greeks rather than by a
// fixed offset from the other leg.
const (
	LongLegDeltaMin = 0.10
	LongLegDeltaMax = 0.30
	LongLegMidMin   = 0.20
	LongLegMidMax   = 0.60
	LongLegMinRung  = 1 // strikes out-of-the-money, inclusive
	LongLegMaxRung  = 3
)

// Greek normalization ceilings for the contract scorer. 0DTE gamma/theta/
// vega run far hotter than a further-dated contract's; a contract at or
// past its ceiling scores as maximally hot on that axis.
const (
	gammaNormCeiling = 0.20
	thetaNormCeiling = 0.50
	vegaNormCeiling  = 0.20
)

// SpreadWidths returns the short leg's acceptable strike distances from the
// selected leg, narrowest first, for symbol's 0DTE strike ladder. The
// narrower preset is tried first; the wider one is the fallback for chains
// missing that rung.
func SpreadWidths(symbol string) []float64 {
	switch symbol {
	case "SPX", "SPXW":
		return []float64{5, 10}
	default:
		// SPY, QQQ, IWM, and single-name 0DTE underlyings trade $1 strikes;
		// $2 is the fallback when the chain is missing the $1 rung.
		return []float64{1, 2}
	}
}

// ScoreContract ranks a single contract by the Convex Eligibility Filter's
// greek-weighted formula: gamma dominates (a 0DTE wing's convexity is the
// entire thesis), then the decay/vol-risk term opposing the spread's
// exposure, then delta proximity to the acceptance band's center. A debit
// spread is long the decay and short the vega risk is secondary to it, so
// theta takes the 0.30 slot; a credit spread is short the decay and long
// the vega risk, so the two swap.
func ScoreContract(c model.OptionContract, kind model.SpreadKind) float64 {
	gammaNorm := scoring.Clamp01(c.Gamma / gammaNormCeiling)
	thetaNorm := scoring.Clamp01(math.Abs(c.Theta) / thetaNormCeiling)
	vegaNorm := scoring.Clamp01(c.Vega / vegaNormCeiling)

	deltaMid := (LongLegDeltaMin + LongLegDeltaMax) / 2
	deltaProximity := scoring.Clamp01(1 - math.Abs(math.Abs(c.Delta)-deltaMid)/(LongLegDeltaMax-deltaMid))

	if kind == model.CreditSpread {
		return scoring.Clamp01(0.40*gammaNorm + 0.30*(1-vegaNorm) + 0.20*deltaProximity + 0.10*(1-thetaNorm))
	}
	return scoring.Clamp01(0.40*gammaNorm + 0.30*(1-thetaNorm) + 0.20*deltaProximity + 0.10*(1-vegaNorm))
}

// SelectContract picks the highest-scoring contract from candidates for
// eligibility gating (liquidity/premium/open-interest). Returns ok=false
// if candidates is empty.
func SelectContract(candidates []model.OptionContract, kind model.SpreadKind) (model.OptionContract, float64, bool) {
	if len(candidates) == 0 {
		return model.OptionContract{}, 0, false
	}
	best := candidates[0]
	bestScore := ScoreContract(best, kind)
	for _, c := range candidates[1:] {
		if s := ScoreContract(c, kind); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, bestScore, true
}

// withinLongLegBand reports whether c satisfies the long-leg delta/premium
// acceptance band.
func withinLongLegBand(c model.OptionContract) bool {
	delta := math.Abs(c.Delta)
	if delta < LongLegDeltaMin || delta > LongLegDeltaMax {
		return false
	}
	mid := c.Mid()
	return mid >= LongLegMidMin && mid <= LongLegMidMax
}

// selectDirectionalLeg walks sorted's out-of-the-money strikes (1st through
// 3rd rung from spot) for kind's direction, scores every candidate that
// satisfies the long-leg band, and returns the best-scoring one.
func selectDirectionalLeg(sorted []model.OptionContract, kind model.OptionKind, spot float64, scoreKind model.SpreadKind) (model.OptionContract, bool) {
	var best model.OptionContract
	bestScore := -1.0
	found := false
	rung := 0

	consider := func(c model.OptionContract) bool {
		rung++
		if rung > LongLegMaxRung {
			return false // stop walking, no more rungs in range
		}
		if rung >= LongLegMinRung && withinLongLegBand(c) {
			if s := ScoreContract(c, scoreKind); s > bestScore {
				best, bestScore, found = c, s, true
			}
		}
		return true
	}

	if kind == model.Put {
		for i := len(sorted) - 1; i >= 0; i-- {
			c := sorted[i]
			if c.Strike >= spot {
				continue
			}
			if !consider(c) {
				break
			}
		}
	} else {
		for _, c := range sorted {
			if c.Strike <= spot {
				continue
			}
			if !consider(c) {
				break
			}
		}
	}
	return best, found
}

func findAtStrike(sorted []model.OptionContract, strike float64) (model.OptionContract, bool) {
	for _, c := range sorted {
		if math.Abs(c.Strike-strike) < 0.01 {
			return c, true
		}
	}
	return model.OptionContract{}, false
}

func sortedByStrike(chain []model.OptionContract) []model.OptionContract {
	sorted := make([]model.OptionContract, len(chain))
	copy(sorted, chain)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Strike < sorted[j].Strike })
	return sorted
}

// BuildDebitSpread builds the long-leg/short-leg debit vertical: the long
// leg is the best-scoring out-of-the-money contract within the 1st-3rd
// rung and the delta/premium acceptance band; the short leg is the
// contract one of symbol's preset strike widths further out-of-the-money,
// narrowest preset tried first.
func BuildDebitSpread(symbol, expiry string, kind model.OptionKind, chain []model.OptionContract, spot float64) (model.Spread, bool) {
	if len(chain) < 2 {
		return model.Spread{}, false
	}
	sorted := sortedByStrike(chain)

	long, ok := selectDirectionalLeg(sorted, kind, spot, model.DebitSpread)
	if !ok {
		return model.Spread{}, false
	}

	for _, width := range SpreadWidths(symbol) {
		shortStrike := long.Strike + width
		if kind == model.Put {
			shortStrike = long.Strike - width
		}
		short, ok := findAtStrike(sorted, shortStrike)
		if !ok {
			continue
		}
		debit := long.Mid() - short.Mid()
		if debit <= 0 {
			continue
		}
		maxLoss := debit
		maxProfit := width - debit
		breakEven := long.Strike + debit
		if kind == model.Put {
			breakEven = long.Strike - debit
		}
		return model.Spread{
			Symbol:     symbol,
			Expiry:     expiry,
			Kind:       model.DebitSpread,
			OptionKind: kind,
			LongLeg:    long,
			ShortLeg:   short,
			DebitCost:  debit,
			MaxProfit:  maxProfit,
			MaxLoss:    maxLoss,
			BreakEven:  breakEven,
		}, true
	}
	return model.Spread{}, false
}

// BuildCreditSpread mirrors BuildDebitSpread for the credit-spread shape:
// the sold leg is picked the same way a debit spread's long leg is (by
// greek score within the acceptance band), and the bought leg is one
// preset width further out-of-the-money for protection.
func BuildCreditSpread(symbol, expiry string, kind model.OptionKind, chain []model.OptionContract, spot float64) (model.Spread, bool) {
	if len(chain) < 2 {
		return model.Spread{}, false
	}
	sorted := sortedByStrike(chain)

	short, ok := selectDirectionalLeg(sorted, kind, spot, model.CreditSpread)
	if !ok {
		return model.Spread{}, false
	}

	for _, width := range SpreadWidths(symbol) {
		longStrike := short.Strike + width
		if kind == model.Put {
			longStrike = short.Strike - width
		}
		long, ok := findAtStrike(sorted, longStrike)
		if !ok {
			continue
		}
		credit := short.Mid() - long.Mid()
		if credit <= 0 {
			continue
		}
		maxProfit := credit
		maxLoss := width - credit
		breakEven := short.Strike + credit
		if kind == model.Put {
			breakEven = short.Strike - credit
		}
		return model.Spread{
			Symbol:     symbol,
			Expiry:     expiry,
			Kind:       model.CreditSpread,
			OptionKind: kind,
			LongLeg:    long,
			ShortLeg:   short,
			Credit:     credit,
			MaxProfit:  maxProfit,
			MaxLoss:    maxLoss,
			BreakEven:  breakEven,
		}, true
	}
	return model.Spread{}, false
}
