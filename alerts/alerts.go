// Package alerts is the in-process alert manager: tick-based rule evaluation
// over the metrics snapshot, with in-memory storage of active and historical
// alerts.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prensadata/rotativa/metrics"
)

// Severities.
const (
	SeverityWarn     = "WARN"
	SeverityCritical = "CRITICAL"
)

// maxHistory bounds the retained alert history.
const maxHistory = 500

// Alert is one fired condition.
type Alert struct {
	Type        string            `json:"type"`
	Severity    string            `json:"severity"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Timestamp   time.Time         `json:"timestamp"`
	Active      bool              `json:"active"`
	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Rule evaluates one condition against a snapshot. A nil return means the
// condition does not hold.
type Rule struct {
	Type     string
	Evaluate func(s metrics.Snapshot) *Alert
}

// Summary is the /monitoring/alerts/summary body.
type Summary struct {
	Active     int            `json:"active"`
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
}

// Manager evaluates rules on a timer and stores results in memory.
type Manager struct {
	source   func() metrics.Snapshot
	rules    []Rule
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	active  map[string]*Alert
	history []Alert
}

// NewManager creates a manager reading snapshots from source. interval ≤ 0
// uses 30 seconds.
func NewManager(source func() metrics.Snapshot, rules []Rule, interval time.Duration, logger *slog.Logger) *Manager {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		source:   source,
		rules:    rules,
		interval: interval,
		logger:   logger,
		active:   make(map[string]*Alert),
	}
}

// Run evaluates on each tick until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evaluate()
		}
	}
}

// Evaluate runs every rule once against a fresh snapshot. A condition that
// holds keeps (or makes) its alert active; one that no longer holds resolves
// the alert.
func (m *Manager) Evaluate() {
	snapshot := m.source()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rule := range m.rules {
		alert := rule.Evaluate(snapshot)
		current, wasActive := m.active[rule.Type]

		switch {
		case alert != nil && !wasActive:
			alert.Type = rule.Type
			alert.Timestamp = time.Now()
			alert.Active = true
			m.active[rule.Type] = alert
			m.appendHistory(*alert)
			m.logger.Warn("alert fired",
				"alert_type", alert.Type,
				"severity", alert.Severity,
				"description", alert.Description)
		case alert != nil && wasActive:
			// Refresh the description; keep the original fire time.
			current.Description = alert.Description
			current.Severity = alert.Severity
		case alert == nil && wasActive:
			delete(m.active, rule.Type)
			resolved := *current
			resolved.Active = false
			m.appendHistory(resolved)
			m.logger.Info("alert resolved", "alert_type", rule.Type)
		}
	}
}

// Fire injects an alert directly, bypassing rules. Used by the alert test
// endpoint.
func (m *Manager) Fire(alert Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	alert.Active = true

	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[alert.Type] = &alert
	m.appendHistory(alert)
}

// List returns alerts, newest first. activeOnly restricts to unresolved
// conditions.
func (m *Manager) List(activeOnly bool) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Alert
	if activeOnly {
		for _, a := range m.active {
			out = append(out, *a)
		}
	} else {
		out = append(out, m.history...)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Summarize reports the active/total counts per severity.
func (m *Manager) Summarize() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{
		Active:     len(m.active),
		Total:      len(m.history),
		BySeverity: map[string]int{},
	}
	for _, a := range m.active {
		s.BySeverity[a.Severity]++
	}
	return s
}

func (m *Manager) appendHistory(alert Alert) {
	m.history = append(m.history, alert)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
}

// DefaultRules returns the built-in rule set.
func DefaultRules() []Rule {
	return []Rule{
		{
			Type: "low_success_rate",
			Evaluate: func(s metrics.Snapshot) *Alert {
				if s.FragmentsTotal == 0 || s.OverallSuccessRate >= 0.9 {
					return nil
				}
				return &Alert{
					Severity:    SeverityWarn,
					Title:       "Overall success rate degraded",
					Description: fmt.Sprintf("overall success rate %.2f below 0.90 over the last 5 minutes", s.OverallSuccessRate),
				}
			},
		},
		{
			Type: "phase_success_rate",
			Evaluate: func(s metrics.Snapshot) *Alert {
				for _, name := range sortedPhaseNames(s) {
					phase := s.Phases[name]
					if phase.Succeeded+phase.Failed == 0 || phase.SuccessRate >= 0.8 {
						continue
					}
					return &Alert{
						Severity:    SeverityWarn,
						Title:       "Phase success rate degraded",
						Description: fmt.Sprintf("%s success rate %.2f below 0.80", name, phase.SuccessRate),
						Labels:      map[string]string{"phase": name},
					}
				}
				return nil
			},
		},
		{
			Type: "breaker_open",
			Evaluate: func(s metrics.Snapshot) *Alert {
				for _, b := range s.Breakers {
					if b.State != 2 || b.For <= 60*time.Second {
						continue
					}
					return &Alert{
						Severity:    SeverityCritical,
						Title:       "Circuit breaker open",
						Description: fmt.Sprintf("%s circuit breaker open for %s", b.Service, b.For.Round(time.Second)),
						Labels:      map[string]string{"service": b.Service},
					}
				}
				return nil
			},
		},
		{
			Type: "persistence_failures",
			Evaluate: func(s metrics.Snapshot) *Alert {
				if s.PersistFailureRate <= 0.1 {
					return nil
				}
				return &Alert{
					Severity:    SeverityCritical,
					Title:       "Persistence failure rate elevated",
					Description: fmt.Sprintf("persistence failure rate %.2f above 0.10 over the last 5 minutes", s.PersistFailureRate),
				}
			},
		},
	}
}

func sortedPhaseNames(s metrics.Snapshot) []string {
	names := make([]string, 0, len(s.Phases))
	for name := range s.Phases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
