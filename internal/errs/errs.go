// Package errs defines the error-kind taxonomy shared across components.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a coarse error classification used for control flow and alerting
// decisions. It intentionally does not carry component-specific detail;
// callers attach that with fmt.Errorf("%w: ...", kindErr).
type Kind string

const (
	// OAuth / C2
	CredentialsMissing  Kind = "credentials_missing"
	TokenExpired        Kind = "token_expired"
	TokenInactive       Kind = "token_inactive"
	DailyReauthRequired Kind = "daily_reauth_required"
	UserAborted         Kind = "user_aborted"
	BrokerRejected      Kind = "broker_rejected"

	// Broker / C3
	BrokerTransient   Kind = "broker_transient"
	BrokerPermanent   Kind = "broker_permanent"
	PermissionDenied  Kind = "permission_denied"
	InvalidRequest    Kind = "invalid_request"
	StaleData         Kind = "stale_data"
	Fatal             Kind = "fatal"

	// Options / C9
	StaleChain   Kind = "stale_chain"
	Illiquid     Kind = "illiquid"
	SpreadReject Kind = "spread_reject"

	// Sizing / C6 / C10
	BudgetExceeded Kind = "budget_exceeded"

	// Core safety
	InvariantViolation Kind = "invariant_violation"
	ClockSkew          Kind = "clock_skew"
	MarketClosed       Kind = "market_closed"
)

// kindError is the sentinel wrapped by every error of a given Kind, so
// callers can use errors.Is(err, errs.Sentinel(errs.TokenExpired)).
type kindError struct{ kind Kind }

func (e *kindError) Error() string { return string(e.kind) }

var sentinels = map[Kind]*kindError{}

func sentinel(k Kind) *kindError {
	if s, ok := sentinels[k]; ok {
		return s
	}
	s := &kindError{kind: k}
	sentinels[k] = s
	return s
}

// New returns an error of the given kind carrying msg, matchable with
// errors.Is(err, errs.Sentinel(kind)).
func New(kind Kind, msg string) error {
	if msg == "" {
		return sentinel(kind)
	}
	return fmt.Errorf("%s: %w", msg, sentinel(kind))
}

// Newf is New with printf-style formatting.
func Newf(kind Kind, format string, args ...any) error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Sentinel returns the comparable sentinel error for a Kind.
func Sentinel(kind Kind) error { return sentinel(kind) }

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, sentinel(kind))
}

// KindOf extracts the Kind from err if it (or a wrapped error) is a
// kindError, with ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind, true
	}
	return "", false
}
