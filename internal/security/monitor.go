// Package security provides security event monitoring.
// The monitor aggregates per-source counters and raises alerts through an
// injectable Alerter once configured thresholds are crossed.
package security

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Alerter delivers security alerts to an external channel (email, chat,
// SIEM). A nil Alerter disables alert delivery; events are still logged.
type Alerter interface {
	SendAlert(ctx context.Context, severity, title, message string) error
}

// Monitor tracks security-relevant counters across requests.
type Monitor struct {
	logger  *Logger
	config  *Config
	alerter Alerter

	mu               sync.Mutex
	failedLogins     map[string]int // keyed by source IP
	deniedMutations  map[string]int // keyed by actor email
	lastCounterReset time.Time
}

// NewMonitor creates a security monitor. alerter may be nil.
func NewMonitor(logger *Logger, config *Config, alerter Alerter) *Monitor {
	return &Monitor{
		logger:           logger,
		config:           config,
		alerter:          alerter,
		failedLogins:     make(map[string]int),
		deniedMutations:  make(map[string]int),
		lastCounterReset: time.Now(),
	}
}

// LoginFailure records one failed login from ipAddress and alerts when the
// source crosses the configured threshold.
func (m *Monitor) LoginFailure(ipAddress string) {
	m.mu.Lock()
	m.failedLogins[ipAddress]++
	count := m.failedLogins[ipAddress]
	m.mu.Unlock()

	if count == m.config.AlertThresholdFailures {
		m.alert("HIGH", "Repeated login failures",
			fmt.Sprintf("%d consecutive failed logins from %s", count, ipAddress))
	}
}

// PermissionDenied records one denied mutation attempt by actorEmail and
// alerts when the actor crosses the configured threshold. A burst of denials
// usually means credential misuse or a probing client.
func (m *Monitor) PermissionDenied(actorEmail, permission string) {
	m.mu.Lock()
	m.deniedMutations[actorEmail]++
	count := m.deniedMutations[actorEmail]
	m.mu.Unlock()

	if count == m.config.AlertThresholdDenied {
		m.alert("MEDIUM", "Repeated permission denials",
			fmt.Sprintf("%s was denied %d mutations, last permission %q", actorEmail, count, permission))
	}
}

// ProtectedEntityAccess records an attempt to modify a protected role or
// user. These are always alerted: a single attempt is already suspicious.
func (m *Monitor) ProtectedEntityAccess(actorEmail, entity string) {
	m.alert("HIGH", "Protected entity access attempt",
		fmt.Sprintf("%s attempted to modify protected %s", actorEmail, entity))
}

// ResetCounters clears per-source counters once an hour. Called
// opportunistically from the request path.
func (m *Monitor) ResetCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCounterReset) < time.Hour {
		return
	}
	m.failedLogins = make(map[string]int)
	m.deniedMutations = make(map[string]int)
	m.lastCounterReset = time.Now()
}

func (m *Monitor) alert(severity, title, message string) {
	m.logger.SecurityEvent(EventSecurityAlert, nil, "", "", "", map[string]any{
		"severity": severity,
		"title":    title,
		"detail":   message,
	})

	if m.alerter == nil {
		return
	}
	if err := m.alerter.SendAlert(context.Background(), severity, title, message); err != nil {
		m.logger.Error("failed to deliver security alert", err)
	}
}
