// Package health runs the dependency checks behind /health/detailed:
// LLM reachability, datastore reachability, filesystem access, and
// controller readiness.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// checkTimeout bounds each individual check.
const checkTimeout = 5 * time.Second

// Statuses reported per check.
const (
	StatusPass = "pass"
	StatusFail = "fail"
)

// CheckResult is one check's outcome.
type CheckResult struct {
	Status         string  `json:"status"`
	ResponseTimeMS float64 `json:"response_time_ms"`
	Message        string  `json:"message,omitempty"`
}

// Report is the /health/detailed body.
type Report struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// CheckFunc probes one dependency. A nil error is a pass.
type CheckFunc func(ctx context.Context) error

// Manager holds the registered checks.
type Manager struct {
	mu     sync.Mutex
	names  []string
	checks map[string]CheckFunc
}

// NewManager creates an empty check registry.
func NewManager() *Manager {
	return &Manager{checks: make(map[string]CheckFunc)}
}

// Register adds a named check. Re-registering a name replaces it.
func (m *Manager) Register(name string, fn CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.checks[name]; !exists {
		m.names = append(m.names, name)
		sort.Strings(m.names)
	}
	m.checks[name] = fn
}

// Run executes all checks sequentially and reports whether all passed.
func (m *Manager) Run(ctx context.Context) (Report, bool) {
	m.mu.Lock()
	names := append([]string(nil), m.names...)
	checks := make(map[string]CheckFunc, len(m.checks))
	for name, fn := range m.checks {
		checks[name] = fn
	}
	m.mu.Unlock()

	report := Report{Status: StatusPass, Checks: make(map[string]CheckResult, len(names))}
	allPass := true

	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		start := time.Now()
		err := checks[name](checkCtx)
		elapsed := float64(time.Since(start).Microseconds()) / 1000
		cancel()

		result := CheckResult{Status: StatusPass, ResponseTimeMS: elapsed}
		if err != nil {
			result.Status = StatusFail
			result.Message = err.Error()
			allPass = false
		}
		report.Checks[name] = result
	}

	if !allPass {
		report.Status = StatusFail
	}
	return report, allPass
}

// FilesystemCheck verifies the working directory accepts writes.
func FilesystemCheck(dir string) CheckFunc {
	return func(_ context.Context) error {
		f, err := os.CreateTemp(dir, ".healthcheck-*")
		if err != nil {
			return fmt.Errorf("filesystem not writable: %w", err)
		}
		name := f.Name()
		f.Close()
		os.Remove(filepath.Clean(name))
		return nil
	}
}

// ReadyCheck passes once the provided flag function reports true. Used for
// controller readiness.
func ReadyCheck(ready func() bool) CheckFunc {
	return func(_ context.Context) error {
		if !ready() {
			return fmt.Errorf("not ready")
		}
		return nil
	}
}

// BreakerCheck fails while the given service's circuit is open. State
// follows the 0/1/2 convention for CLOSED/HALF_OPEN/OPEN.
func BreakerCheck(service string, state func() float64) CheckFunc {
	return func(_ context.Context) error {
		if state() == 2 {
			return fmt.Errorf("%s circuit breaker is open", service)
		}
		return nil
	}
}
