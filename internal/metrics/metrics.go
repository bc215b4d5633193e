// Package metrics exposes the process's prometheus metrics, namespaced
// "easyorb" the way the AI trader's metrics package namespaced its own
// counters per-trader.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for this process.
var Registry = prometheus.NewRegistry()

var (
	// SignalsEmitted counts ORB signals emitted by type and side.
	SignalsEmitted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easyorb",
			Subsystem: "orb",
			Name:      "signals_emitted_total",
			Help:      "ORB signals emitted",
		},
		[]string{"signal_type", "side"},
	)

	// PositionsOpened counts positions opened by signal type.
	PositionsOpened = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easyorb",
			Subsystem: "execution",
			Name:      "positions_opened_total",
			Help:      "Positions opened",
		},
		[]string{"signal_type"},
	)

	// OrdersRejected counts broker order rejections by reason.
	OrdersRejected = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easyorb",
			Subsystem: "execution",
			Name:      "orders_rejected_total",
			Help:      "Broker order rejections",
		},
		[]string{"reason"},
	)

	// PositionsClosed counts closes by exit reason.
	PositionsClosed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easyorb",
			Subsystem: "exit",
			Name:      "positions_closed_total",
			Help:      "Positions closed",
		},
		[]string{"reason"},
	)

	// RealizedPnL tracks cumulative realized P&L in dollars.
	RealizedPnL = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "easyorb",
			Subsystem: "compound",
			Name:      "realized_pnl_dollars",
			Help:      "Cumulative realized P&L",
		},
	)

	// DeployedCapital tracks the compound engine's currently deployed
	// capital by signal type.
	DeployedCapital = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "easyorb",
			Subsystem: "compound",
			Name:      "deployed_capital_dollars",
			Help:      "Capital currently deployed",
		},
		[]string{"signal_type"},
	)

	// OAuthTokenRenewals counts OAuth renewal attempts by environment and
	// outcome.
	OAuthTokenRenewals = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easyorb",
			Subsystem: "oauth",
			Name:      "token_renewals_total",
			Help:      "OAuth token renewal attempts",
		},
		[]string{"environment", "outcome"},
	)

	// OAuthKeepAliveFailures counts consecutive keep-alive ping failures by
	// environment.
	OAuthKeepAliveFailures = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "easyorb",
			Subsystem: "oauth",
			Name:      "keepalive_consecutive_failures",
			Help:      "Consecutive keep-alive failures",
		},
		[]string{"environment"},
	)

	// ADVCacheStale reports 1 when the ADV cache has not refreshed within
	// its staleness window.
	ADVCacheStale = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "easyorb",
			Subsystem: "advcache",
			Name:      "stale",
			Help:      "1 if the ADV cache has not refreshed within its staleness window",
		},
	)

	// ZeroDTEGateFailures counts 0DTE Convex Eligibility Filter gate
	// rejections by gate name.
	ZeroDTEGateFailures = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easyorb",
			Subsystem: "odte",
			Name:      "gate_failures_total",
			Help:      "Convex Eligibility Filter gate rejections",
		},
		[]string{"gate"},
	)
)
