package odte

import (
	"context"

	"github.com/steinwealth/easyorb/internal/broker"
)

// RedDayDetector flags a market-wide red day, the Convex Eligibility
// Filter's gate zero: 0DTE entries are suppressed entirely on a day where
// the broad market is already trending down, since same-day premium decay
// on a directional long is punished hardest exactly when the tape is
// moving against it.
type RedDayDetector interface {
	IsRedDay(ctx context.Context) (bool, error)
}

// BrokerRedDayDetector compares a reference symbol's (SPY by default)
// percent change from today's open against Threshold.
type BrokerRedDayDetector struct {
	Broker    broker.Broker
	Reference string  // e.g. "SPY"
	Threshold float64 // negative fraction, e.g. -0.005 for -0.5%
}

// NewBrokerRedDayDetector returns a detector watching SPY at the -0.5%
// threshold used across the pack's regime-filter examples.
func NewBrokerRedDayDetector(b broker.Broker) *BrokerRedDayDetector {
	return &BrokerRedDayDetector{Broker: b, Reference: "SPY", Threshold: -0.005}
}

// IsRedDay reports whether Reference has fallen past Threshold since the
// session open.
func (d *BrokerRedDayDetector) IsRedDay(ctx context.Context) (bool, error) {
	quotes, err := d.Broker.GetQuote(ctx, []string{d.Reference})
	if err != nil {
		return false, err
	}
	if len(quotes) == 0 || quotes[0].Open <= 0 {
		return false, nil
	}
	changePct := (quotes[0].Last - quotes[0].Open) / quotes[0].Open
	return changePct <= d.Threshold, nil
}

// StaticRedDayDetector is a fixed-answer detector for tests and the demo
// CLI path, where there is no live index quote to evaluate.
type StaticRedDayDetector bool

func (d StaticRedDayDetector) IsRedDay(context.Context) (bool, error) { return bool(d), nil }
