package phase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/prensadata/rotativa/domain"
	"github.com/prensadata/rotativa/llm"
)

// fallbackConfidence marks synthesized fallback elements as low-trust.
const fallbackConfidence = 0.3

var extractTemperature = 0.2

// Elements is phase 2: fact and entity extraction.
type Elements struct {
	llm    llm.Completer
	logger *slog.Logger
}

// NewElements creates the phase.
func NewElements(completer llm.Completer, logger *slog.Logger) *Elements {
	if logger == nil {
		logger = slog.Default()
	}
	return &Elements{llm: completer, logger: logger}
}

type elementsWire struct {
	Facts []struct {
		Text              string  `json:"text"`
		Confidence        float64 `json:"confidence"`
		Type              string  `json:"type"`
		TemporalPrecision string  `json:"temporal_precision"`
	} `json:"facts"`
	Entities []struct {
		Text        string   `json:"text"`
		Type        string   `json:"type"`
		Relevance   float64  `json:"relevance"`
		Descriptors []string `json:"descriptors"`
	} `json:"entities"`
	Summary string `json:"summary"`
}

// Run executes phase 2 on the triaged text. Fact and entity IDs are dense
// integers starting at 1, scoped to the fragment.
func (e *Elements) Run(ctx context.Context, in Input, triage *domain.TriageResult) Outcome[domain.ElementsResult] {
	resp, err := e.llm.Complete(ctx, llm.Request{
		System:      ElementsSystemPrompt(),
		Prompt:      triage.CleanedText,
		Temperature: &extractTemperature,
	})
	if err != nil {
		cause := classify(err)
		e.logger.Warn("element extraction failed, synthesizing fallback elements",
			"phase", domain.PhaseElements,
			"fragment_id", in.Fragment.ID,
			"error_type", cause,
			"error", err)
		return Degraded(e.fallback(in), cause)
	}

	var wire elementsWire
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Content)), &wire); err != nil {
		e.logger.Warn("element extraction response was not valid JSON, synthesizing fallback elements",
			"phase", domain.PhaseElements,
			"fragment_id", in.Fragment.ID,
			"error", err)
		return Degraded(e.fallback(in), CauseProcessing)
	}

	result := &domain.ElementsResult{
		Facts:    make([]domain.Fact, 0, len(wire.Facts)),
		Entities: make([]domain.Entity, 0, len(wire.Entities)),
		Summary:  wire.Summary,
	}
	for _, f := range wire.Facts {
		if f.Text == "" {
			continue
		}
		result.Facts = append(result.Facts, domain.Fact{
			ID:                len(result.Facts) + 1,
			SourceFragmentID:  in.Fragment.ID,
			Text:              f.Text,
			Confidence:        clamp01(f.Confidence),
			Type:              factType(f.Type),
			TemporalPrecision: f.TemporalPrecision,
		})
	}
	for _, ent := range wire.Entities {
		if ent.Text == "" {
			continue
		}
		result.Entities = append(result.Entities, domain.Entity{
			ID:               len(result.Entities) + 1,
			SourceFragmentID: in.Fragment.ID,
			Text:             ent.Text,
			Type:             entityType(ent.Type),
			Relevance:        clamp01(ent.Relevance),
			Descriptors:      ent.Descriptors,
		})
	}

	return Ok(result)
}

// fallback synthesizes one fact from the headline and one entity from the
// medium name, both marked low-confidence.
func (e *Elements) fallback(in Input) *domain.ElementsResult {
	result := &domain.ElementsResult{
		Facts: []domain.Fact{{
			ID:               1,
			SourceFragmentID: in.Fragment.ID,
			Text:             in.headline(),
			Confidence:       fallbackConfidence,
			Type:             domain.FactOther,
		}},
		Metadata: map[string]any{"is_fallback": true},
	}
	if in.Medio != "" {
		result.Entities = []domain.Entity{{
			ID:               1,
			SourceFragmentID: in.Fragment.ID,
			Text:             in.Medio,
			Type:             domain.EntityOrganization,
			Relevance:        fallbackConfidence,
		}}
		result.Summary = fmt.Sprintf("%s (%s)", in.headline(), in.Medio)
	} else {
		result.Entities = []domain.Entity{}
		result.Summary = in.headline()
	}
	return result
}

func factType(t string) string {
	switch t {
	case domain.FactEvent, domain.FactStatement, domain.FactAnnouncement:
		return t
	default:
		return domain.FactOther
	}
}

func entityType(t string) string {
	switch t {
	case domain.EntityPerson, domain.EntityOrganization, domain.EntityPlace:
		return t
	default:
		return domain.EntityOther
	}
}
