package phase

import (
	"fmt"
	"strings"

	"github.com/prensadata/rotativa/domain"
)

// TriageSystemPrompt returns the system prompt for the relevance judgment.
func TriageSystemPrompt() string {
	return `You are a news triage analyst for a Spanish-language media monitoring pipeline.

## Your Objective

Decide whether the given news text contains verifiable informational content
worth extracting: concrete facts, named entities, attributable statements, or
quantitative data. Opinion pieces, horoscopes, listings, and content-free
teasers are not relevant.

## Output Format

Respond with JSON only:

` + "```json" + `
{
  "is_relevant": true,
  "decision": "PROCESS" | "DISCARD",
  "justification": "One sentence explaining the decision",
  "category": "politica" | "economia" | "sociedad" | "internacional" | "deportes" | "cultura" | "otros",
  "keywords": ["up to 5 topical keywords in Spanish"],
  "score": 0.0
}
` + "```" + `

## Guidelines

- score is your relevance confidence between 0.0 and 1.0
- decision must be PROCESS when is_relevant is true, DISCARD otherwise
- keywords come from the text itself, lowercase, no duplicates`
}

// TranslatePrompt builds the prompt asking for a Spanish translation.
func TranslatePrompt(text string) string {
	return fmt.Sprintf(`Translate the following news text to Spanish. Preserve names, figures, and quotes exactly. Respond with the translation only, no commentary.

%s`, text)
}

// ElementsSystemPrompt returns the system prompt for fact and entity
// extraction.
func ElementsSystemPrompt() string {
	return `You are an information extraction engine for Spanish-language news.

## Your Objective

Extract the discrete facts and the named entities present in the text. A fact
is one verifiable assertion; an entity is a person, organization, or place
the text names.

## Output Format

Respond with JSON only:

` + "```json" + `
{
  "facts": [
    {
      "text": "One self-contained assertion, in Spanish",
      "confidence": 0.0,
      "type": "EVENT" | "STATEMENT" | "ANNOUNCEMENT" | "OTHER",
      "temporal_precision": "exact_date" | "approximate" | "undated"
    }
  ],
  "entities": [
    {
      "text": "Name exactly as it appears",
      "type": "PERSON" | "ORGANIZATION" | "PLACE" | "OTHER",
      "relevance": 0.0,
      "descriptors": ["roles or qualifiers the text gives, if any"]
    }
  ],
  "summary": "Two-sentence summary of the text in Spanish"
}
` + "```" + `

## Guidelines

- Each fact must stand alone without the surrounding text
- Do not invent information absent from the text
- confidence and relevance are between 0.0 and 1.0
- Deduplicate entities; keep the most complete surface form`
}

// QuotesSystemPrompt returns the system prompt for quote and quantitative
// data extraction. The entity list gives the model stable integer IDs to
// reference in cited_entity_id.
func QuotesSystemPrompt() string {
	return `You are an information extraction engine for Spanish-language news.

## Your Objective

Extract verbatim quotes with their speakers, and quantitative data points
(figures, percentages, amounts) with their units and context.

## Output Format

Respond with JSON only:

` + "```json" + `
{
  "quotes": [
    {
      "text": "The verbatim quoted words, without quotation marks",
      "speaker_text": "Speaker as named in the text",
      "cited_entity_id": 0,
      "context": "What the quote is about",
      "relevance": 0.0
    }
  ],
  "quantitative_data": [
    {
      "description": "What the figure measures",
      "value": 0.0,
      "unit": "%" | "EUR" | "USD" | "personas" | "...",
      "period_reference": "The time period the figure refers to, if stated",
      "category": "Topic of the figure",
      "trend": "up" | "down" | "stable" | ""
    }
  ]
}
` + "```" + `

## Guidelines

- Only direct quotations count; reported speech is not a quote
- cited_entity_id references the numbered entity list when the speaker is
  one of them, otherwise 0
- value is the numeric magnitude; the unit carries the scale`
}

// QuotesPrompt builds the phase-3 user prompt: the cleaned text plus the
// numbered entity list extracted in phase 2.
func QuotesPrompt(text string, entities []domain.Entity) string {
	var b strings.Builder
	b.WriteString("## Known Entities\n\n")
	if len(entities) == 0 {
		b.WriteString("(none)\n")
	}
	for _, e := range entities {
		fmt.Fprintf(&b, "%d. %s (%s)\n", e.ID, e.Text, e.Type)
	}
	b.WriteString("\n## Text\n\n")
	b.WriteString(text)
	return b.String()
}

// RelationsSystemPrompt returns the system prompt for the phase-4 relation
// derivation call.
func RelationsSystemPrompt() string {
	return `You are an analyst linking the extracted elements of one news fragment.

## Your Objective

Given numbered facts and entities, identify relations between facts, relations
between entities, and contradictions between facts. Only relate elements from
the provided lists, referenced by their integer IDs.

## Output Format

Respond with JSON only:

` + "```json" + `
{
  "fact_fact": [
    {"fact_a": 1, "fact_b": 2, "type": "elaborates" | "causes" | "follows" | "contextualizes", "strength": 0.0, "description": "optional"}
  ],
  "entity_entity": [
    {"entity_a": 1, "entity_b": 2, "type": "member_of" | "leads" | "opposes" | "related", "strength": 0.0}
  ],
  "contradictions": [
    {"fact_a": 1, "fact_b": 2, "description": "How they conflict"}
  ]
}
` + "```" + `

## Guidelines

- Empty arrays are valid answers; do not force relations
- strength is between 0.0 and 1.0
- Never reference an ID outside the provided lists`
}

// RelationsPrompt builds the phase-4 user prompt from the numbered facts and
// entities.
func RelationsPrompt(facts []domain.Fact, entities []domain.Entity) string {
	var b strings.Builder
	b.WriteString("## Facts\n\n")
	if len(facts) == 0 {
		b.WriteString("(none)\n")
	}
	for _, f := range facts {
		fmt.Fprintf(&b, "%d. %s\n", f.ID, f.Text)
	}
	b.WriteString("\n## Entities\n\n")
	if len(entities) == 0 {
		b.WriteString("(none)\n")
	}
	for _, e := range entities {
		fmt.Fprintf(&b, "%d. %s (%s)\n", e.ID, e.Text, e.Type)
	}
	return b.String()
}
