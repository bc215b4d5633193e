// Package alert defines the notification boundary between the core engine
// and whatever presentation layer turns an event into a Telegram message,
// an email, or a dashboard toast. The core only ever calls Sink.Notify; it
// never knows or cares how (or whether) a human sees the result.
package alert

import (
	"fmt"
	"time"

	"github.com/steinwealth/easyorb/internal/logger"
)

// Severity classifies how urgently an event needs a human's attention.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one notification-worthy occurrence. Component and Kind together
// let a downstream formatter group and dedupe without parsing Message.
type Event struct {
	Severity  Severity
	Component string // e.g. "oauth", "execution", "exit"
	Kind      string // e.g. "keepalive_failure", "invariant_violation", "batch_open"
	Message   string
	Fields    map[string]any
	At        time.Time
}

// Sink receives alert events. Implementations decide delivery: log only,
// fan out to Telegram/email, write to a queue, or any combination.
type Sink interface {
	Notify(Event)
}

// LogSink is the default Sink: it writes every event through the
// component-scoped structured logger and delivers nothing externally.
// Real delivery (Telegram/email formatting) is wired in by the process
// composing this package, not by the core itself.
type LogSink struct{}

// NewLogSink returns the default logging-only Sink.
func NewLogSink() LogSink { return LogSink{} }

// Notify logs ev at a level derived from its severity.
func (LogSink) Notify(ev Event) {
	log := logger.For(ev.Component)
	for k, v := range ev.Fields {
		log = log.With(k, fmt.Sprint(v))
	}
	switch ev.Severity {
	case SeverityCritical:
		log.Errorf("%s: %s", ev.Kind, ev.Message)
	case SeverityWarning:
		log.Warnf("%s: %s", ev.Kind, ev.Message)
	default:
		log.Infof("%s: %s", ev.Kind, ev.Message)
	}
}

// MultiSink fans an event out to every constituent Sink in order.
type MultiSink []Sink

// Notify calls Notify on every constituent sink.
func (m MultiSink) Notify(ev Event) {
	for _, s := range m {
		s.Notify(ev)
	}
}
