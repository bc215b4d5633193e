package odte

import "github.com/steinwealth/easyorb/internal/model"

// ExitThresholds are the options-specific profit/stop ladder. Lottos move
// faster than spreads, so they get a wider profit target and a tighter
// stop to match their higher variance.
type ExitThresholds struct {
	StopLossPct   float64 // P&L% at which the position is flattened
	PartialAtPct  float64
	PartialFraction float64
	RunnerStopPct float64 // trailing stop (measured from peak P&L%) for the remainder
}

var exitThresholds = map[model.OptionsPositionKind]ExitThresholds{
	model.KindDebitSpread: {
		StopLossPct:     -0.40,
		PartialAtPct:    0.50,
		PartialFraction: 0.5,
		RunnerStopPct:   0.20,
	},
	model.KindCreditSpread: {
		StopLossPct:     -0.60,
		PartialAtPct:    0.35,
		PartialFraction: 0.5,
		RunnerStopPct:   0.15,
	},
	model.KindLotto: {
		StopLossPct:     -0.50,
		PartialAtPct:    1.00,
		PartialFraction: 0.6,
		RunnerStopPct:   0.30,
	},
}

func thresholdsFor(kind model.OptionsPositionKind) ExitThresholds {
	if t, ok := exitThresholds[kind]; ok {
		return t
	}
	return exitThresholds[model.KindDebitSpread]
}

// ExitAction is what the caller should do with an options position this
// tick.
type ExitAction string

const (
	ActionHold         ExitAction = "hold"
	ActionStopLoss     ExitAction = "stop_loss"
	ActionPartialClose ExitAction = "partial_close"
	ActionRunnerStop   ExitAction = "runner_stop"
)

// EvaluateExit runs the options exit ladder against pos at currentValue,
// mutating PartialsTaken/Quantity for a partial close in place, and
// reporting the action the caller must execute against the broker.
func EvaluateExit(pos *model.OptionsPosition, currentValue float64, peakPnLPct float64) (ExitAction, float64) {
	pos.CurrentValue = currentValue
	pnlPct := pos.PnLPct()

	t := thresholdsFor(pos.Kind)

	if pnlPct <= t.StopLossPct {
		return ActionStopLoss, float64(pos.Quantity)
	}

	if pos.PartialsTaken == 0 && pnlPct >= t.PartialAtPct {
		qty := int(float64(pos.Quantity) * t.PartialFraction)
		if qty < 1 {
			qty = 1
		}
		pos.PartialsTaken = 1
		pos.Quantity -= qty
		pos.Substate = model.SubstatePartial
		return ActionPartialClose, float64(qty)
	}

	if pos.PartialsTaken > 0 {
		drawdownFromPeak := peakPnLPct - pnlPct
		if drawdownFromPeak >= t.RunnerStopPct {
			return ActionRunnerStop, float64(pos.Quantity)
		}
	}

	return ActionHold, 0
}
