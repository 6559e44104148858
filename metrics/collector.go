// Package metrics maintains the pipeline's process-wide counters, histograms,
// and gauges. Prometheus series live in a dedicated (non-global) registry;
// dashboard aggregates are kept in lock-striped rolling structures, one
// stripe per metric family, and read as consistent snapshots.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/prensadata/rotativa/domain"
)

// durationEWMAAlpha weights recent phase durations for the dashboard.
const durationEWMAAlpha = 0.2

// latencyRingCapacity bounds the percentile window.
const latencyRingCapacity = 4096

// Collector owns every metric the pipeline emits. Construct once at startup
// and inject; there is no package-level singleton.
type Collector struct {
	registry  *prometheus.Registry
	startTime time.Time

	// Prometheus series.
	articlesProcessed  prometheus.Counter
	fragmentsProcessed prometheus.Counter
	phaseSuccess       *prometheus.CounterVec
	phaseFailure       *prometheus.CounterVec
	persistSuccess     prometheus.Counter
	persistFailure     prometheus.Counter
	errorsTotal        *prometheus.CounterVec
	elementsExtracted  *prometheus.CounterVec
	phaseDuration      *prometheus.HistogramVec
	totalDuration      prometheus.Histogram
	requestLatency     prometheus.Histogram
	poolWait           prometheus.Histogram
	activeJobs         prometheus.Gauge
	breakerState       *prometheus.GaugeVec

	// Dashboard aggregates, striped per family.
	articlesRate     rollingCounter
	fragmentsRate    rollingCounter
	phaseOK          map[string]*rollingCounter
	phaseKO          map[string]*rollingCounter
	persistOKRate    rollingCounter
	persistKORate    rollingCounter
	latencies        *latencyRing
	phaseEWMA        map[string]*ewma
	totalDurationAvg *ewma

	// Breaker bookkeeping for the open-duration alert rule.
	breakerMu    sync.Mutex
	breakerSince map[string]breakerStatus
}

type breakerStatus struct {
	value float64
	since time.Time
}

// NewCollector creates and registers all metric series.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry:  registry,
		startTime: time.Now(),

		articlesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "articles_processed_total",
			Help: "Articles accepted for processing.",
		}),
		fragmentsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fragments_processed_total",
			Help: "Fragments run through the four-phase chain.",
		}),
		phaseSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phase_success_total",
			Help: "Phase executions that completed without fallback.",
		}, []string{"phase"}),
		phaseFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phase_failure_total",
			Help: "Phase executions that fell back.",
		}, []string{"phase"}),
		persistSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "persistence_success_total",
			Help: "Fragment inserts accepted by the datastore.",
		}),
		persistFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "persistence_failure_total",
			Help: "Fragment inserts rejected or failed.",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Errors by taxonomy kind.",
		}, []string{"type"}),
		elementsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "elements_extracted_total",
			Help: "Extracted elements by type, summed without deduplication.",
		}, []string{"type"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "phase_duration_seconds",
			Help:    "Wall-clock duration per phase.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),
		totalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "total_duration_seconds",
			Help:    "End-to-end fragment processing duration.",
			Buckets: prometheus.DefBuckets,
		}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "request_latency_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}),
		poolWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "datastore_pool_wait_seconds",
			Help:    "Time spent waiting for a datastore pool permit.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .2, .5},
		}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_jobs",
			Help: "Jobs currently pending or running.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Breaker state per service: 0=CLOSED, 1=HALF_OPEN, 2=OPEN.",
		}, []string{"service"}),

		phaseOK:          make(map[string]*rollingCounter),
		phaseKO:          make(map[string]*rollingCounter),
		latencies:        newLatencyRing(latencyRingCapacity),
		phaseEWMA:        make(map[string]*ewma),
		totalDurationAvg: newEWMA(durationEWMAAlpha),
		breakerSince:     make(map[string]breakerStatus),
	}

	for _, phase := range domain.PhaseNames {
		c.phaseOK[phase] = &rollingCounter{}
		c.phaseKO[phase] = &rollingCounter{}
		c.phaseEWMA[phase] = newEWMA(durationEWMAAlpha)
	}

	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "uptime_seconds",
		Help: "Seconds since process start.",
	}, func() float64 {
		return time.Since(c.startTime).Seconds()
	})

	registry.MustRegister(
		c.articlesProcessed, c.fragmentsProcessed,
		c.phaseSuccess, c.phaseFailure,
		c.persistSuccess, c.persistFailure,
		c.errorsTotal, c.elementsExtracted,
		c.phaseDuration, c.totalDuration, c.requestLatency, c.poolWait,
		uptime, c.activeJobs, c.breakerState,
	)

	return c
}

// Gatherer exposes the registry for the /metrics handler.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.registry
}

// IncArticles counts one accepted article.
func (c *Collector) IncArticles() {
	c.articlesProcessed.Inc()
	c.articlesRate.Inc(1)
}

// ObserveFragment records every series derived from one fragment result.
func (c *Collector) ObserveFragment(result *domain.FragmentResult) {
	c.fragmentsProcessed.Inc()
	c.fragmentsRate.Inc(1)

	for phase, ok := range result.Metrics.PerPhaseSuccess {
		if ok {
			c.phaseSuccess.WithLabelValues(phase).Inc()
			if rc := c.phaseOK[phase]; rc != nil {
				rc.Inc(1)
			}
		} else {
			c.phaseFailure.WithLabelValues(phase).Inc()
			if rc := c.phaseKO[phase]; rc != nil {
				rc.Inc(1)
			}
		}
	}

	for phase, seconds := range result.Metrics.PerPhaseDurations {
		c.phaseDuration.WithLabelValues(phase).Observe(seconds)
		if e := c.phaseEWMA[phase]; e != nil {
			e.Observe(seconds)
		}
	}

	c.totalDuration.Observe(result.Metrics.TotalDuration)
	c.totalDurationAvg.Observe(result.Metrics.TotalDuration)

	for typ, n := range result.Metrics.ElementCounts {
		c.elementsExtracted.WithLabelValues(typ).Add(float64(n))
	}

	if !result.Persistence.Skipped {
		c.ObservePersistence(result.Persistence.OK)
	}
}

// ObservePersistence counts one datastore insert outcome.
func (c *Collector) ObservePersistence(ok bool) {
	if ok {
		c.persistSuccess.Inc()
		c.persistOKRate.Inc(1)
	} else {
		c.persistFailure.Inc()
		c.persistKORate.Inc(1)
	}
}

// IncError counts one error by taxonomy kind.
func (c *Collector) IncError(kind string) {
	c.errorsTotal.WithLabelValues(kind).Inc()
}

// ObserveRequestLatency records one HTTP request duration.
func (c *Collector) ObserveRequestLatency(d time.Duration) {
	c.requestLatency.Observe(d.Seconds())
	c.latencies.Observe(d.Seconds())
}

// ObservePoolWait records one datastore pool acquisition wait.
func (c *Collector) ObservePoolWait(d time.Duration) {
	c.poolWait.Observe(d.Seconds())
}

// SetActiveJobs updates the active-jobs gauge.
func (c *Collector) SetActiveJobs(n int) {
	c.activeJobs.Set(float64(n))
}

// SetBreakerState updates the per-service breaker gauge
// (0=CLOSED, 1=HALF_OPEN, 2=OPEN).
func (c *Collector) SetBreakerState(service string, value float64) {
	c.breakerState.WithLabelValues(service).Set(value)

	c.breakerMu.Lock()
	defer c.breakerMu.Unlock()
	prev, exists := c.breakerSince[service]
	if !exists || prev.value != value {
		c.breakerSince[service] = breakerStatus{value: value, since: time.Now()}
	}
}

// BreakerSnapshot reports one service's breaker state and how long it has
// been in that state.
type BreakerSnapshot struct {
	Service string        `json:"service"`
	State   float64       `json:"state"`
	For     time.Duration `json:"-"`
}

// PhaseSnapshot reports one phase's recent behavior.
type PhaseSnapshot struct {
	SuccessRate     float64 `json:"success_rate"`
	TypicalDuration float64 `json:"typical_duration_seconds"`
	Succeeded       float64 `json:"succeeded"`
	Failed          float64 `json:"failed"`
}

// Snapshot is a point-in-time read of the dashboard aggregates. It is
// computed from the current counters, never cached.
type Snapshot struct {
	UptimeSeconds      float64
	ArticlesTotal      float64
	FragmentsTotal     float64
	ArticlesPerHour    float64
	FragmentsPerHour   float64
	LatencyP50         float64
	LatencyP95         float64
	LatencyP99         float64
	AvgTotalDuration   float64
	Phases             map[string]PhaseSnapshot
	OverallSuccessRate float64
	PersistFailureRate float64
	Breakers           []BreakerSnapshot
}

// successWindow is the lookback for the dashboard and alert success rates.
const successWindow = 5 * time.Minute

// Snapshot computes the current aggregates.
func (c *Collector) Snapshot() Snapshot {
	p := c.latencies.Percentiles(50, 95, 99)

	s := Snapshot{
		UptimeSeconds:    time.Since(c.startTime).Seconds(),
		ArticlesTotal:    c.articlesRate.Total(),
		FragmentsTotal:   c.fragmentsRate.Total(),
		ArticlesPerHour:  c.articlesRate.SumLast(time.Hour),
		FragmentsPerHour: c.fragmentsRate.SumLast(time.Hour),
		LatencyP50:       p[0],
		LatencyP95:       p[1],
		LatencyP99:       p[2],
		AvgTotalDuration: c.totalDurationAvg.Value(),
		Phases:           make(map[string]PhaseSnapshot, len(domain.PhaseNames)),
	}

	var ok, total float64
	for _, phase := range domain.PhaseNames {
		succeeded := c.phaseOK[phase].SumLast(successWindow)
		failed := c.phaseKO[phase].SumLast(successWindow)

		rate := 1.0
		if succeeded+failed > 0 {
			rate = succeeded / (succeeded + failed)
		}
		s.Phases[phase] = PhaseSnapshot{
			SuccessRate:     rate,
			TypicalDuration: c.phaseEWMA[phase].Value(),
			Succeeded:       succeeded,
			Failed:          failed,
		}
		ok += succeeded
		total += succeeded + failed
	}
	s.OverallSuccessRate = 1.0
	if total > 0 {
		s.OverallSuccessRate = ok / total
	}

	pOK := c.persistOKRate.SumLast(successWindow)
	pKO := c.persistKORate.SumLast(successWindow)
	if pOK+pKO > 0 {
		s.PersistFailureRate = pKO / (pOK + pKO)
	}

	c.breakerMu.Lock()
	for service, st := range c.breakerSince {
		s.Breakers = append(s.Breakers, BreakerSnapshot{
			Service: service,
			State:   st.value,
			For:     time.Since(st.since),
		})
	}
	c.breakerMu.Unlock()

	return s
}
