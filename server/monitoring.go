package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prensadata/rotativa/alerts"
	"github.com/prensadata/rotativa/domain"
)

// dashboardBody is the /monitoring/dashboard response.
type dashboardBody struct {
	UptimeSeconds float64              `json:"uptime_seconds"`
	Throughput    throughputBody       `json:"throughput"`
	Latency       latencyBody          `json:"latency"`
	Phases        map[string]phaseBody `json:"phases"`
	Totals        totalsBody           `json:"totals"`
	Dependencies  map[string]string    `json:"dependencies"`
	Resources     resourcesBody        `json:"resources"`
	SuccessRate   float64              `json:"overall_success_rate"`
}

type throughputBody struct {
	ArticlesPerHour  float64 `json:"articles_per_hour"`
	FragmentsPerHour float64 `json:"fragments_per_hour"`
}

type latencyBody struct {
	P50MS float64 `json:"p50_ms"`
	P95MS float64 `json:"p95_ms"`
	P99MS float64 `json:"p99_ms"`
}

type phaseBody struct {
	SuccessRate       float64 `json:"success_rate"`
	TypicalDurationMS float64 `json:"typical_duration_ms"`
}

type totalsBody struct {
	Articles  float64 `json:"articles"`
	Fragments float64 `json:"fragments"`
}

type resourcesBody struct {
	Goroutines int    `json:"goroutines"`
	HeapBytes  uint64 `json:"heap_bytes"`
	NumGC      uint32 `json:"num_gc"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snapshot := s.metrics.Snapshot()

	phases := make(map[string]phaseBody, len(snapshot.Phases))
	for name, p := range snapshot.Phases {
		phases[name] = phaseBody{
			SuccessRate:       p.SuccessRate,
			TypicalDurationMS: p.TypicalDuration * 1000,
		}
	}

	deps := make(map[string]string, len(snapshot.Breakers))
	for _, b := range snapshot.Breakers {
		deps[b.Service] = breakerStateName(b.State)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, dashboardBody{
		UptimeSeconds: snapshot.UptimeSeconds,
		Throughput: throughputBody{
			ArticlesPerHour:  snapshot.ArticlesPerHour,
			FragmentsPerHour: snapshot.FragmentsPerHour,
		},
		Latency: latencyBody{
			P50MS: snapshot.LatencyP50 * 1000,
			P95MS: snapshot.LatencyP95 * 1000,
			P99MS: snapshot.LatencyP99 * 1000,
		},
		Phases: phases,
		Totals: totalsBody{
			Articles:  snapshot.ArticlesTotal,
			Fragments: snapshot.FragmentsTotal,
		},
		Dependencies: deps,
		Resources: resourcesBody{
			Goroutines: runtime.NumGoroutine(),
			HeapBytes:  mem.HeapAlloc,
			NumGC:      mem.NumGC,
		},
		SuccessRate: snapshot.OverallSuccessRate,
	})
}

// pipelinePhaseBody describes one phase on /monitoring/pipeline-status.
type pipelinePhaseBody struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Dependencies      []string `json:"dependencies"`
	SuccessRate       float64  `json:"success_rate"`
	TypicalDurationMS float64  `json:"typical_duration_ms"`
}

// phaseCatalog is the static phase topology.
var phaseCatalog = []struct {
	name, description string
	dependencies      []string
}{
	{domain.PhaseTriage, "triaje y limpieza de texto", []string{"llm"}},
	{domain.PhaseElements, "extracción de hechos y entidades", []string{"llm"}},
	{domain.PhaseQuotes, "extracción de citas y datos cuantitativos", []string{"llm"}},
	{domain.PhaseNormalize, "normalización de entidades y relaciones", []string{"llm", "datastore"}},
}

func (s *Server) handlePipelineStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := s.metrics.Snapshot()

	out := make([]pipelinePhaseBody, 0, len(phaseCatalog))
	for _, entry := range phaseCatalog {
		p := snapshot.Phases[entry.name]
		out = append(out, pipelinePhaseBody{
			Name:              entry.name,
			Description:       entry.description,
			Dependencies:      entry.dependencies,
			SuccessRate:       p.SuccessRate,
			TypicalDurationMS: p.TypicalDuration * 1000,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"phases":       out,
		"generated_at": time.Now().UTC(),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "1"
	list := s.alerts.List(activeOnly)
	if list == nil {
		list = []alerts.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": list})
}

func (s *Server) handleAlertsSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.alerts.Summarize())
}

// handleAlertsTest fires a synthetic alert so operators can verify the alert
// path end to end.
func (s *Server) handleAlertsTest(w http.ResponseWriter, r *http.Request) {
	alert := alerts.Alert{
		Type:        "test_alert",
		Severity:    alerts.SeverityWarn,
		Title:       "Test alert",
		Description: "synthetic alert fired via /monitoring/alerts/test",
		Labels:      map[string]string{"origin": "manual"},
	}
	s.alerts.Fire(alert)
	writeJSON(w, http.StatusOK, alert)
}

func breakerStateName(state float64) string {
	switch state {
	case 2:
		return "open"
	case 1:
		return "half_open"
	default:
		return "closed"
	}
}
