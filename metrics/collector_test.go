package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prensadata/rotativa/domain"
)

func fragmentResult(successes map[string]bool) *domain.FragmentResult {
	durations := make(map[string]float64, len(successes))
	for phase := range successes {
		durations[phase] = 0.05
	}
	return &domain.FragmentResult{
		FragmentID: "frag-1",
		Metrics: domain.FragmentMetrics{
			PerPhaseSuccess:   successes,
			PerPhaseDurations: durations,
			TotalDuration:     0.2,
			ElementCounts:     map[string]int{"facts": 2, "entities": 3},
		},
		Persistence: domain.Persistence{OK: true},
	}
}

func allOK() map[string]bool {
	return map[string]bool{
		domain.PhaseTriage:    true,
		domain.PhaseElements:  true,
		domain.PhaseQuotes:    true,
		domain.PhaseNormalize: true,
	}
}

func TestObserveFragment_Counters(t *testing.T) {
	c := NewCollector()

	c.IncArticles()
	c.ObserveFragment(fragmentResult(allOK()))

	assert.Equal(t, float64(1), testutil.ToFloat64(c.articlesProcessed))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.fragmentsProcessed))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.phaseSuccess.WithLabelValues(domain.PhaseTriage)))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.phaseFailure.WithLabelValues(domain.PhaseTriage)))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.persistSuccess))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.elementsExtracted.WithLabelValues("facts")))
}

func TestObserveFragment_FallbacksCountAsFailure(t *testing.T) {
	c := NewCollector()

	successes := allOK()
	successes[domain.PhaseElements] = false
	c.ObserveFragment(fragmentResult(successes))

	assert.Equal(t, float64(1), testutil.ToFloat64(c.phaseFailure.WithLabelValues(domain.PhaseElements)))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.phaseSuccess.WithLabelValues(domain.PhaseQuotes)))
}

func TestSnapshot_SuccessRates(t *testing.T) {
	c := NewCollector()

	for i := 0; i < 8; i++ {
		c.ObserveFragment(fragmentResult(allOK()))
	}
	failed := allOK()
	failed[domain.PhaseQuotes] = false
	for i := 0; i < 2; i++ {
		c.ObserveFragment(fragmentResult(failed))
	}

	s := c.Snapshot()

	assert.Equal(t, float64(10), s.FragmentsTotal)
	assert.InDelta(t, 0.8, s.Phases[domain.PhaseQuotes].SuccessRate, 0.001)
	assert.InDelta(t, 1.0, s.Phases[domain.PhaseTriage].SuccessRate, 0.001)
	// 38 of 40 phase executions succeeded.
	assert.InDelta(t, 0.95, s.OverallSuccessRate, 0.001)
}

func TestSnapshot_PersistenceFailureRate(t *testing.T) {
	c := NewCollector()

	for i := 0; i < 9; i++ {
		c.ObservePersistence(true)
	}
	c.ObservePersistence(false)

	s := c.Snapshot()
	assert.InDelta(t, 0.1, s.PersistFailureRate, 0.001)
}

func TestSnapshot_LatencyPercentiles(t *testing.T) {
	c := NewCollector()

	for i := 1; i <= 100; i++ {
		c.ObserveRequestLatency(time.Duration(i) * time.Millisecond)
	}

	s := c.Snapshot()
	assert.InDelta(t, 0.050, s.LatencyP50, 0.005)
	assert.InDelta(t, 0.095, s.LatencyP95, 0.005)
	assert.InDelta(t, 0.099, s.LatencyP99, 0.005)
}

func TestBreakerStateTracking(t *testing.T) {
	c := NewCollector()

	c.SetBreakerState("llm", 2)
	time.Sleep(10 * time.Millisecond)

	s := c.Snapshot()
	require.Len(t, s.Breakers, 1)
	assert.Equal(t, "llm", s.Breakers[0].Service)
	assert.Equal(t, float64(2), s.Breakers[0].State)
	assert.Greater(t, s.Breakers[0].For, time.Duration(0))

	// Same value does not reset the since timestamp.
	before := s.Breakers[0].For
	c.SetBreakerState("llm", 2)
	s = c.Snapshot()
	assert.GreaterOrEqual(t, s.Breakers[0].For, before)
}

func TestExposition_ContainsRequiredSeries(t *testing.T) {
	c := NewCollector()
	c.IncArticles()
	c.ObserveFragment(fragmentResult(allOK()))
	c.IncError("llm_unavailable")
	c.SetBreakerState("datastore", 0)
	c.SetActiveJobs(3)

	families, err := c.Gatherer().Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, " ")

	for _, want := range []string{
		"articles_processed_total",
		"fragments_processed_total",
		"phase_success_total",
		"persistence_success_total",
		"errors_total",
		"phase_duration_seconds",
		"total_duration_seconds",
		"uptime_seconds",
		"active_jobs",
		"circuit_breaker_state",
	} {
		assert.Contains(t, joined, want)
	}
}

func TestRollingCounterWindow(t *testing.T) {
	var rc rollingCounter
	now := time.Now()

	rc.incAt(now.Add(-10*time.Minute), 5)
	rc.incAt(now, 3)

	assert.Equal(t, float64(8), rc.Total())
	assert.Equal(t, float64(3), rc.sumLastAt(now, 5*time.Minute))
	assert.Equal(t, float64(8), rc.sumLastAt(now, time.Hour))
}
