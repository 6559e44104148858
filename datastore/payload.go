package datastore

import (
	"github.com/prensadata/rotativa/domain"
)

// FragmentPayload is the single document sent to insert_whole_fragment. It
// carries the fragment and every element extracted from it, cross-referenced
// by the integer IDs assigned during extraction. The datastore maps those to
// stable IDs on insert.
type FragmentPayload struct {
	FragmentID      string           `json:"fragment_id"`
	SourceArticleID string           `json:"source_article_id"`
	RequestID       string           `json:"request_id"`
	OriginalText    string           `json:"original_text"`
	CleanedText     string           `json:"cleaned_text,omitempty"`
	Category        string           `json:"category,omitempty"`
	Keywords        []string         `json:"keywords,omitempty"`
	Summary         string           `json:"summary,omitempty"`
	Facts           []domain.Fact    `json:"facts"`
	Entities        []domain.Entity  `json:"entities"`
	Quotes          []domain.Quote   `json:"quotes"`
	Data            []domain.Datum   `json:"quantitative_data"`
	Relations       domain.Relations `json:"relations"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
}

// BuildFragmentPayload shapes the phase outputs of one fragment into the
// insert document. Entities come from phase 4 when normalization ran (they
// carry normalized references); otherwise the raw phase-2 entities are used.
func BuildFragmentPayload(requestID string, fragment *domain.Fragment, phases *domain.PhaseOutputs) *FragmentPayload {
	p := &FragmentPayload{
		FragmentID:      fragment.ID,
		SourceArticleID: fragment.ArticuloFuente,
		RequestID:       requestID,
		OriginalText:    fragment.TextoOriginal,
		Facts:           []domain.Fact{},
		Entities:        []domain.Entity{},
		Quotes:          []domain.Quote{},
		Data:            []domain.Datum{},
		Relations: domain.Relations{
			FactFact:       []domain.FactRelation{},
			EntityEntity:   []domain.EntityRelation{},
			Contradictions: []domain.Contradiction{},
		},
	}

	if t := phases.Triage; t != nil {
		p.CleanedText = t.CleanedText
		p.Category = t.Category
		p.Keywords = t.Keywords
	}

	if e := phases.Elements; e != nil {
		p.Summary = e.Summary
		p.Facts = append(p.Facts, e.Facts...)
		p.Entities = append(p.Entities, e.Entities...)
	}

	if q := phases.Quotes; q != nil {
		p.Quotes = append(p.Quotes, q.Quotes...)
		p.Data = append(p.Data, q.Data...)
	}

	if n := phases.Normalize; n != nil {
		if len(n.Entities) > 0 {
			p.Entities = n.Entities
		}
		p.Relations = n.Relations
	}

	return p
}

// ElementCounts sums the payload's elements per type, for metrics and the
// result body.
func (p *FragmentPayload) ElementCounts() map[string]int {
	return map[string]int{
		"facts":             len(p.Facts),
		"entities":          len(p.Entities),
		"quotes":            len(p.Quotes),
		"quantitative_data": len(p.Data),
		"relations": len(p.Relations.FactFact) +
			len(p.Relations.EntityEntity) +
			len(p.Relations.Contradictions),
	}
}
