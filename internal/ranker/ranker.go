// Package ranker implements the Priority Ranker (C6): it scores the
// day's emitted signals on a weighted blend of breakout quality, then
// splits available capital across them in proportion to a rank-multiplier
// curve that front-loads the strongest setups.
package ranker

import (
	"sort"

	"github.com/steinwealth/easyorb/internal/model"
	"github.com/steinwealth/easyorb/internal/scoring"
)

// Score weights. Eligibility is the 0DTE Convex Eligibility Filter's
// carry-through score (model.ORBSignal.EligibilityScore); for equity-only
// signals it is left at its zero value and the remaining weights are
// renormalized so a missing factor doesn't silently depress the score.
const (
	weightBreakout    = 0.30
	weightORBRange    = 0.25
	weightVolumeRatio = 0.20
	weightEligibility = 0.15
	weightMomentum    = 0.10
)

// rankMultiplier scales allocated capital down as priority rank worsens.
// Ranks beyond the table hold at the floor multiplier.
var rankMultiplier = []float64{3.0, 2.5, 2.0, 1.71, 1.5, 1.2, 1.0}

func multiplierForRank(rank int) float64 {
	idx := rank - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(rankMultiplier) {
		return rankMultiplier[len(rankMultiplier)-1]
	}
	return rankMultiplier[idx]
}

// Input carries the raw metrics the score formula needs alongside the
// signal itself. BreakoutPct and MomentumPct are both "distance beyond the
// ORB extreme at emission" but measured at different times (emission vs.
// current), so they contribute as separate weighted rows.
type Input struct {
	Signal      model.ORBSignal
	BreakoutPct float64
	ORBRangePct float64
	MomentumPct float64
}

// Score computes the blended priority score in [0,1] for one input.
func Score(in Input) float64 {
	hasEligibility := in.Signal.EligibilityScore > 0
	wBreakout, wRange, wVolume, wMomentum, wElig := weightBreakout, weightORBRange, weightVolumeRatio, weightMomentum, weightEligibility
	if !hasEligibility {
		// Renormalize the remaining four weights to sum to 1.0.
		remaining := wBreakout + wRange + wVolume + wMomentum
		scale := 1.0 / remaining
		wBreakout *= scale
		wRange *= scale
		wVolume *= scale
		wMomentum *= scale
		wElig = 0
	}

	score := wBreakout*scoring.BreakoutPctScore(in.BreakoutPct) +
		wRange*scoring.ORBRangePctScore(in.ORBRangePct) +
		wVolume*scoring.VolumeRatioScore(in.Signal.VolumeRatio) +
		wMomentum*scoring.MomentumScore(in.MomentumPct) +
		wElig*scoring.Clamp01(in.Signal.EligibilityScore)
	return scoring.Clamp01(score)
}

// Rank scores each input, sorts descending by score, and assigns
// PriorityRank 1..N. Ties break by earlier EmittedAt, then by ticker for
// full determinism.
func Rank(inputs []Input) []model.RankedSignal {
	ranked := make([]model.RankedSignal, len(inputs))
	for i, in := range inputs {
		ranked[i] = model.RankedSignal{ORBSignal: in.Signal, PriorityScore: Score(in)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].PriorityScore != ranked[j].PriorityScore {
			return ranked[i].PriorityScore > ranked[j].PriorityScore
		}
		if !ranked[i].EmittedAt.Equal(ranked[j].EmittedAt) {
			return ranked[i].EmittedAt.Before(ranked[j].EmittedAt)
		}
		return ranked[i].Ticker < ranked[j].Ticker
	})
	for i := range ranked {
		ranked[i].PriorityRank = i + 1
	}
	return ranked
}

// SizeAllocations splits availableCapital across ranked (already
// rank-ordered): each position's share is proportional to its rank
// multiplier, capped per-position at maxPositionPct of availableCapital,
// and capital trimmed by the cap is handed to the uncapped positions, so
// total allocation never exceeds availableCapital.
func SizeAllocations(ranked []model.RankedSignal, availableCapital, maxPositionPct float64) []model.RankedSignal {
	if availableCapital <= 0 || len(ranked) == 0 {
		return ranked
	}

	weights := make([]float64, len(ranked))
	var totalWeight float64
	for i, r := range ranked {
		w := multiplierForRank(r.PriorityRank)
		weights[i] = w
		totalWeight += w
	}

	maxPerPosition := availableCapital * (maxPositionPct / 100.0)
	out := make([]model.RankedSignal, len(ranked))
	copy(out, ranked)

	// First pass: proportional allocation, capped per position.
	var excess float64
	capped := make([]bool, len(out))
	for i := range out {
		raw := availableCapital * (weights[i] / totalWeight)
		if raw > maxPerPosition {
			out[i].CapitalAllocated = maxPerPosition
			capped[i] = true
			excess += raw - maxPerPosition
		} else {
			out[i].CapitalAllocated = raw
		}
	}

	// Redistribute capped excess across uncapped positions, proportional to
	// their existing weight, repeating until no further room or no excess
	// remains (cap enforcement can cascade when redistribution itself
	// exceeds another position's cap).
	for pass := 0; pass < len(out) && excess > 0.01; pass++ {
		var uncappedWeight float64
		for i := range out {
			if !capped[i] {
				uncappedWeight += weights[i]
			}
		}
		if uncappedWeight == 0 {
			break
		}
		redistributed := excess
		excess = 0
		for i := range out {
			if capped[i] {
				continue
			}
			share := redistributed * (weights[i] / uncappedWeight)
			newTotal := out[i].CapitalAllocated + share
			if newTotal > maxPerPosition {
				out[i].CapitalAllocated = maxPerPosition
				capped[i] = true
				excess += newTotal - maxPerPosition
			} else {
				out[i].CapitalAllocated = newTotal
			}
		}
	}

	return out
}
