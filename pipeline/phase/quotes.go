package phase

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/prensadata/rotativa/domain"
	"github.com/prensadata/rotativa/llm"
)

// Quotes is phase 3: verbatim quotes and quantitative data. Non-critical:
// its fallback is simply empty lists.
type Quotes struct {
	llm    llm.Completer
	logger *slog.Logger
}

// NewQuotes creates the phase.
func NewQuotes(completer llm.Completer, logger *slog.Logger) *Quotes {
	if logger == nil {
		logger = slog.Default()
	}
	return &Quotes{llm: completer, logger: logger}
}

type quotesWire struct {
	Quotes []struct {
		Text          string  `json:"text"`
		SpeakerText   string  `json:"speaker_text"`
		CitedEntityID int     `json:"cited_entity_id"`
		Context       string  `json:"context"`
		Relevance     float64 `json:"relevance"`
	} `json:"quotes"`
	Data []struct {
		Description     string  `json:"description"`
		Value           float64 `json:"value"`
		Unit            string  `json:"unit"`
		PeriodReference string  `json:"period_reference"`
		Category        string  `json:"category"`
		Trend           string  `json:"trend"`
	} `json:"quantitative_data"`
}

// Run executes phase 3. cited_entity_id values outside the phase-2 entity
// list are dropped to zero so relations never dangle.
func (q *Quotes) Run(ctx context.Context, in Input, triage *domain.TriageResult, elements *domain.ElementsResult) Outcome[domain.QuotesResult] {
	resp, err := q.llm.Complete(ctx, llm.Request{
		System:      QuotesSystemPrompt(),
		Prompt:      QuotesPrompt(triage.CleanedText, elements.Entities),
		Temperature: &extractTemperature,
	})
	if err != nil {
		cause := classify(err)
		q.logger.Warn("quote extraction failed, continuing without quotes",
			"phase", domain.PhaseQuotes,
			"fragment_id", in.Fragment.ID,
			"error_type", cause,
			"error", err)
		return Degraded(emptyQuotes(), cause)
	}

	var wire quotesWire
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Content)), &wire); err != nil {
		q.logger.Warn("quote extraction response was not valid JSON, continuing without quotes",
			"phase", domain.PhaseQuotes,
			"fragment_id", in.Fragment.ID,
			"error", err)
		return Degraded(emptyQuotes(), CauseProcessing)
	}

	result := &domain.QuotesResult{
		Quotes: make([]domain.Quote, 0, len(wire.Quotes)),
		Data:   make([]domain.Datum, 0, len(wire.Data)),
	}
	for _, quote := range wire.Quotes {
		if quote.Text == "" {
			continue
		}
		cited := quote.CitedEntityID
		if cited < 0 || cited > len(elements.Entities) {
			cited = 0
		}
		result.Quotes = append(result.Quotes, domain.Quote{
			ID:               len(result.Quotes) + 1,
			SourceFragmentID: in.Fragment.ID,
			Text:             quote.Text,
			SpeakerText:      quote.SpeakerText,
			CitedEntityID:    cited,
			Context:          quote.Context,
			Relevance:        clamp01(quote.Relevance),
		})
	}
	for _, d := range wire.Data {
		if d.Description == "" {
			continue
		}
		result.Data = append(result.Data, domain.Datum{
			ID:               len(result.Data) + 1,
			SourceFragmentID: in.Fragment.ID,
			Description:      d.Description,
			Value:            d.Value,
			Unit:             d.Unit,
			PeriodReference:  d.PeriodReference,
			Category:         d.Category,
			Trend:            d.Trend,
		})
	}

	return Ok(result)
}

func emptyQuotes() *domain.QuotesResult {
	return &domain.QuotesResult{
		Quotes: []domain.Quote{},
		Data:   []domain.Datum{},
	}
}
