package domain

// Phase names, in execution order.
const (
	PhaseTriage    = "phase1"
	PhaseElements  = "phase2"
	PhaseQuotes    = "phase3"
	PhaseNormalize = "phase4"
)

// PhaseNames lists the four phases in execution order.
var PhaseNames = []string{PhaseTriage, PhaseElements, PhaseQuotes, PhaseNormalize}

// Triage decisions.
const (
	DecisionProcess = "PROCESS"
	DecisionDiscard = "DISCARD"
	// DecisionFallbackPreprocessing marks a fragment accepted because the
	// preprocessor failed before relevance could be judged.
	DecisionFallbackPreprocessing = "FALLBACK_ACCEPTED_PREPROCESSING_ERROR"
	// DecisionFallbackLLM marks a fragment accepted because the relevance
	// call to the LLM failed.
	DecisionFallbackLLM = "FALLBACK_ACCEPTED_LLM_ERROR"
)

// ModelMetadata records which model produced a phase output.
type ModelMetadata struct {
	Model      string `json:"model,omitempty"`
	Provider   string `json:"provider,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// TriageResult is the phase-1 output.
type TriageResult struct {
	IsRelevant           bool          `json:"is_relevant"`
	Decision             string        `json:"decision"`
	Justification        string        `json:"justification,omitempty"`
	Category             string        `json:"category,omitempty"`
	Keywords             []string      `json:"keywords,omitempty"`
	Score                float64       `json:"score"`
	CleanedText          string        `json:"cleaned_text"`
	Language             string        `json:"language,omitempty"`
	TranslationAttempted bool          `json:"translation_attempted"`
	ModelMetadata        ModelMetadata `json:"model_metadata"`
}

// ElementsResult is the phase-2 output.
type ElementsResult struct {
	Facts    []Fact         `json:"facts"`
	Entities []Entity       `json:"entities"`
	Summary  string         `json:"summary,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QuotesResult is the phase-3 output.
type QuotesResult struct {
	Quotes   []Quote        `json:"quotes"`
	Data     []Datum        `json:"quantitative_data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Normalization statuses for phase 4.
const (
	NormalizationCompleted        = "completed"
	NormalizationWithoutDatastore = "completed_without_normalization"
)

// NormalizeResult is the phase-4 output. Entities carries phase-2 entities
// with normalized references attached where the datastore found a match.
type NormalizeResult struct {
	Entities  []Entity       `json:"entities_with_normalized_refs"`
	Relations Relations      `json:"relations"`
	Status    string         `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
