package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prensadata/rotativa/domain"
	"github.com/prensadata/rotativa/metrics"
)

func healthySnapshot() metrics.Snapshot {
	return metrics.Snapshot{
		FragmentsTotal:     100,
		OverallSuccessRate: 0.98,
		PersistFailureRate: 0.01,
		Phases: map[string]metrics.PhaseSnapshot{
			domain.PhaseTriage: {SuccessRate: 0.99, Succeeded: 99, Failed: 1},
		},
	}
}

func managerWith(snapshot *metrics.Snapshot) *Manager {
	return NewManager(func() metrics.Snapshot { return *snapshot }, DefaultRules(), time.Second, nil)
}

func TestNoAlertsWhenHealthy(t *testing.T) {
	snapshot := healthySnapshot()
	m := managerWith(&snapshot)

	m.Evaluate()

	assert.Empty(t, m.List(true))
	assert.Equal(t, 0, m.Summarize().Active)
}

func TestLowSuccessRateFiresWarn(t *testing.T) {
	snapshot := healthySnapshot()
	snapshot.OverallSuccessRate = 0.7
	m := managerWith(&snapshot)

	m.Evaluate()

	active := m.List(true)
	require.Len(t, active, 1)
	assert.Equal(t, "low_success_rate", active[0].Type)
	assert.Equal(t, SeverityWarn, active[0].Severity)
	assert.True(t, active[0].Active)
}

func TestNoTrafficDoesNotFire(t *testing.T) {
	snapshot := metrics.Snapshot{FragmentsTotal: 0, OverallSuccessRate: 0}
	m := managerWith(&snapshot)

	m.Evaluate()

	assert.Empty(t, m.List(true))
}

func TestPhaseRuleCarriesPhaseLabel(t *testing.T) {
	snapshot := healthySnapshot()
	snapshot.Phases[domain.PhaseQuotes] = metrics.PhaseSnapshot{SuccessRate: 0.5, Succeeded: 5, Failed: 5}
	m := managerWith(&snapshot)

	m.Evaluate()

	active := m.List(true)
	require.Len(t, active, 1)
	assert.Equal(t, "phase_success_rate", active[0].Type)
	assert.Equal(t, domain.PhaseQuotes, active[0].Labels["phase"])
}

func TestBreakerOpenLongEnoughIsCritical(t *testing.T) {
	snapshot := healthySnapshot()
	snapshot.Breakers = []metrics.BreakerSnapshot{{Service: "llm", State: 2, For: 30 * time.Second}}
	m := managerWith(&snapshot)

	// Not yet past the 60 s threshold.
	m.Evaluate()
	assert.Empty(t, m.List(true))

	snapshot.Breakers[0].For = 2 * time.Minute
	m.Evaluate()

	active := m.List(true)
	require.Len(t, active, 1)
	assert.Equal(t, SeverityCritical, active[0].Severity)
	assert.Equal(t, "llm", active[0].Labels["service"])
}

func TestPersistenceFailureRateIsCritical(t *testing.T) {
	snapshot := healthySnapshot()
	snapshot.PersistFailureRate = 0.25
	m := managerWith(&snapshot)

	m.Evaluate()

	active := m.List(true)
	require.Len(t, active, 1)
	assert.Equal(t, "persistence_failures", active[0].Type)
	assert.Equal(t, SeverityCritical, active[0].Severity)
}

func TestAlertResolvesWhenConditionClears(t *testing.T) {
	snapshot := healthySnapshot()
	snapshot.OverallSuccessRate = 0.7
	m := managerWith(&snapshot)

	m.Evaluate()
	require.Len(t, m.List(true), 1)

	snapshot.OverallSuccessRate = 0.99
	m.Evaluate()

	assert.Empty(t, m.List(true))
	// History keeps both the firing and the resolution.
	history := m.List(false)
	require.Len(t, history, 2)
	summary := m.Summarize()
	assert.Equal(t, 0, summary.Active)
	assert.Equal(t, 2, summary.Total)
}

func TestRefiringKeepsOriginalTimestamp(t *testing.T) {
	snapshot := healthySnapshot()
	snapshot.OverallSuccessRate = 0.7
	m := managerWith(&snapshot)

	m.Evaluate()
	first := m.List(true)[0].Timestamp

	time.Sleep(5 * time.Millisecond)
	m.Evaluate()

	assert.Equal(t, first, m.List(true)[0].Timestamp)
	assert.Len(t, m.List(false), 1)
}

func TestFireInjectsTestAlert(t *testing.T) {
	snapshot := healthySnapshot()
	m := managerWith(&snapshot)

	m.Fire(Alert{Type: "test_alert", Severity: SeverityWarn, Title: "Test"})

	active := m.List(true)
	require.Len(t, active, 1)
	assert.Equal(t, "test_alert", active[0].Type)
	assert.False(t, active[0].Timestamp.IsZero())
}
