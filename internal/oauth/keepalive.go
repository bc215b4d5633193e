package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/steinwealth/easyorb/internal/alert"
	"github.com/steinwealth/easyorb/internal/config"
)

const (
	keepAliveDueInterval = 90 * time.Minute // E*TRADE sessions idle out past ~2h; ping comfortably inside that
	keepAliveMinRetry    = 5 * time.Minute
	keepAliveMaxFailures = 3
)

// KeepAliveFunc issues the lightweight signed read used to keep a token
// alive. Injected so tests don't need a
// live broker.
type KeepAliveFunc func(ctx context.Context, env config.Environment, m *Manager) error

// RunKeepAlive runs one goroutine-equivalent loop per environment: every
// tick it computes a due time as last_used + 90m (bounded below by the 2h
// broker idle timeout and above by a 5-minute minimum retry), and issues
// ping when due. Three consecutive failures raise an alert but the loop
// keeps running; it suspends cleanly on ctx cancellation.
func (m *Manager) RunKeepAlive(ctx context.Context, env config.Environment, ping KeepAliveFunc) {
	ticker := time.NewTicker(keepAliveMinRetry)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Infof("keep-alive loop for %s stopping: %v", env, ctx.Err())
			return
		case <-ticker.C:
			m.maybeKeepAlive(ctx, env, ping)
		}
	}
}

func (m *Manager) maybeKeepAlive(ctx context.Context, env config.Environment, ping KeepAliveFunc) {
	st := m.state(env)
	st.mu.Lock()
	if st.token == nil {
		st.mu.Unlock()
		return
	}
	if etDateString(nowFunc()) != st.token.IssuedETDate {
		st.mu.Unlock()
		return // DailyReauthRequired — only `start` can recover, loop just waits
	}
	due := st.token.LastUsed.Add(keepAliveDueInterval)
	now := nowFunc()
	st.mu.Unlock()

	if now.Before(due) {
		return
	}

	if err := ping(ctx, env, m); err != nil {
		st.mu.Lock()
		st.metrics.ConsecutiveFailures++
		failures := st.metrics.ConsecutiveFailures
		_ = m.saveMetrics(env, st.metrics)
		st.mu.Unlock()

		m.log.Warnf("keep-alive ping failed for %s (%d consecutive): %v", env, failures, err)
		if failures >= keepAliveMaxFailures && m.alerts != nil {
			m.alerts.Notify(alert.Event{
				Severity:  alert.SeverityCritical,
				Component: "oauth",
				Kind:      "keepalive_failure",
				Message:   fmt.Sprintf("keep-alive for %s has failed %d times consecutively", env, failures),
				Fields:    map[string]any{"environment": string(env), "consecutive_failures": failures},
			})
		}
		return
	}

	st.mu.Lock()
	st.metrics.ConsecutiveFailures = 0
	st.metrics.LastSuccessfulCall = nowFunc()
	if st.token != nil {
		st.token.LastUsed = nowFunc()
		_ = m.saveToken(env, st.token)
	}
	_ = m.saveMetrics(env, st.metrics)
	st.mu.Unlock()
}
