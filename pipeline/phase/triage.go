package phase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/prensadata/rotativa/domain"
	"github.com/prensadata/rotativa/llm"
)

// triageTemperature keeps the relevance judgment near-deterministic.
var triageTemperature = 0.1

// Triage is phase 1: text preprocessing plus the LLM relevance judgment.
// Fallbacks always accept the fragment; triage never discards on error.
type Triage struct {
	llm    llm.Completer
	logger *slog.Logger
}

// NewTriage creates the phase.
func NewTriage(completer llm.Completer, logger *slog.Logger) *Triage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Triage{llm: completer, logger: logger}
}

// triageWire is the JSON shape the model answers with.
type triageWire struct {
	IsRelevant    bool     `json:"is_relevant"`
	Decision      string   `json:"decision"`
	Justification string   `json:"justification"`
	Category      string   `json:"category"`
	Keywords      []string `json:"keywords"`
	Score         float64  `json:"score"`
}

// Run executes phase 1. Preprocessing failure and LLM failure each map to an
// accept-by-default fallback; only a successful LLM answer can discard.
func (t *Triage) Run(ctx context.Context, in Input) Outcome[domain.TriageResult] {
	cleaned, err := cleanText(in.Fragment.TextoOriginal)
	if err != nil {
		t.logger.Warn("triage preprocessing failed, accepting fragment",
			"phase", domain.PhaseTriage,
			"fragment_id", in.Fragment.ID,
			"error", err)
		return Degraded(&domain.TriageResult{
			IsRelevant:  true,
			Decision:    domain.DecisionFallbackPreprocessing,
			CleanedText: placeholderText(in),
			Score:       0,
		}, CausePreprocessing)
	}

	language := detectLanguage(cleaned)
	translationAttempted := false
	if language != "es" {
		translated, ok := t.translate(ctx, cleaned)
		translationAttempted = ok
		if ok {
			cleaned = translated
			language = "es"
		}
	}

	resp, err := t.llm.Complete(ctx, llm.Request{
		System:      TriageSystemPrompt(),
		Prompt:      cleaned,
		Temperature: &triageTemperature,
	})
	if err != nil {
		cause := classify(err)
		t.logger.Warn("triage relevance call failed, accepting fragment",
			"phase", domain.PhaseTriage,
			"fragment_id", in.Fragment.ID,
			"error_type", cause,
			"error", err)
		return Degraded(&domain.TriageResult{
			IsRelevant:           true,
			Decision:             domain.DecisionFallbackLLM,
			CleanedText:          cleaned,
			Language:             language,
			TranslationAttempted: translationAttempted,
			Score:                0,
		}, cause)
	}

	var wire triageWire
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Content)), &wire); err != nil {
		t.logger.Warn("triage response was not valid JSON, accepting fragment",
			"phase", domain.PhaseTriage,
			"fragment_id", in.Fragment.ID,
			"error", err)
		return Degraded(&domain.TriageResult{
			IsRelevant:           true,
			Decision:             domain.DecisionFallbackLLM,
			CleanedText:          cleaned,
			Language:             language,
			TranslationAttempted: translationAttempted,
			Score:                0,
		}, CauseProcessing)
	}

	decision := domain.DecisionProcess
	if !wire.IsRelevant || wire.Decision == domain.DecisionDiscard {
		decision = domain.DecisionDiscard
	}

	return Ok(&domain.TriageResult{
		IsRelevant:           decision == domain.DecisionProcess,
		Decision:             decision,
		Justification:        wire.Justification,
		Category:             wire.Category,
		Keywords:             wire.Keywords,
		Score:                clamp01(wire.Score),
		CleanedText:          cleaned,
		Language:             language,
		TranslationAttempted: translationAttempted,
		ModelMetadata: domain.ModelMetadata{
			Model:      resp.Model,
			TokensUsed: resp.TokensUsed,
		},
	})
}

// translate asks the model for a Spanish rendition. Failure is non-fatal:
// the caller continues with the original text.
func (t *Triage) translate(ctx context.Context, text string) (string, bool) {
	resp, err := t.llm.Complete(ctx, llm.Request{Prompt: TranslatePrompt(text)})
	if err != nil || resp.Content == "" {
		t.logger.Warn("translation attempt failed, continuing with original text",
			"phase", domain.PhaseTriage,
			"error", err)
		return "", false
	}
	return resp.Content, true
}

func placeholderText(in Input) string {
	return fmt.Sprintf("[texto no disponible: error de preprocesamiento] %s", in.headline())
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
