package domain

// PhaseOutputs groups the four phase results for one fragment. A nil entry
// means the phase never ran (cannot happen for a completed fragment: the
// chain is best-effort and every phase produces at least a fallback result).
type PhaseOutputs struct {
	Triage    *TriageResult    `json:"phase1,omitempty"`
	Elements  *ElementsResult  `json:"phase2,omitempty"`
	Quotes    *QuotesResult    `json:"phase3,omitempty"`
	Normalize *NormalizeResult `json:"phase4,omitempty"`
}

// FragmentMetrics aggregates per-fragment processing measurements. Durations
// are monotonic seconds.
type FragmentMetrics struct {
	PerPhaseDurations  map[string]float64 `json:"per_phase_durations"`
	PerPhaseSuccess    map[string]bool    `json:"per_phase_success"`
	TotalDuration      float64            `json:"total_duration"`
	ElementCounts      map[string]int     `json:"element_counts"`
	OverallSuccessRate float64            `json:"overall_success_rate"`
}

// Persistence reports the outcome of the datastore insert for one fragment.
// A failed insert does not fail the request; it is recorded here.
type Persistence struct {
	OK             bool           `json:"ok"`
	Skipped        bool           `json:"skipped,omitempty"`
	InsertedCounts map[string]int `json:"inserted_counts,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// FragmentResult is the full outcome of processing one fragment through the
// four-phase chain.
type FragmentResult struct {
	RequestID         string          `json:"request_id"`
	FragmentID        string          `json:"fragment_id"`
	FragmentUUID      string          `json:"fragment_uuid"`
	Phases            PhaseOutputs    `json:"phase_outputs"`
	Metrics           FragmentMetrics `json:"metrics"`
	Persistence       Persistence     `json:"persistence"`
	PartialProcessing bool            `json:"partial_processing"`
	Warnings          []string        `json:"warnings"`
}

// ArticleResult aggregates the fragment results of one article.
type ArticleResult struct {
	RequestID         string            `json:"request_id"`
	ArticleID         string            `json:"article_id"`
	Fragments         []*FragmentResult `json:"fragments"`
	PartialProcessing bool              `json:"partial_processing"`
	Warnings          []string          `json:"warnings"`
	TotalDuration     float64           `json:"total_duration"`
}
