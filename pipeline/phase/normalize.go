package phase

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/prensadata/rotativa/datastore"
	"github.com/prensadata/rotativa/domain"
	"github.com/prensadata/rotativa/llm"
)

// DefaultSimilarityThreshold is the minimum match score to adopt a canonical
// entity reference.
const DefaultSimilarityThreshold = 0.85

// EntityFinder is the slice of the datastore the phase depends on.
type EntityFinder interface {
	FindSimilarEntity(ctx context.Context, name, entityType string, threshold float64) ([]datastore.EntityMatch, error)
}

// Normalize is phase 4: entity normalization against the datastore followed
// by an LLM call deriving relations between the extracted elements. The
// relations call runs unconditionally, even over empty element lists.
type Normalize struct {
	llm       llm.Completer
	finder    EntityFinder
	threshold float64
	logger    *slog.Logger
}

// NewNormalize creates the phase. threshold ≤ 0 uses the default.
func NewNormalize(completer llm.Completer, finder EntityFinder, threshold float64, logger *slog.Logger) *Normalize {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalize{llm: completer, finder: finder, threshold: threshold, logger: logger}
}

// Run executes phase 4. Normalization and relation derivation degrade
// independently; either failure marks the phase as fallback.
func (n *Normalize) Run(ctx context.Context, in Input, elements *domain.ElementsResult, quotes *domain.QuotesResult) Outcome[domain.NormalizeResult] {
	entities, normalized := n.normalizeEntities(ctx, in, elements.Entities)

	relations, relationsOK := n.deriveRelations(ctx, in, elements.Facts, entities)

	result := &domain.NormalizeResult{
		Entities:  entities,
		Relations: relations,
		Status:    domain.NormalizationCompleted,
	}

	if !normalized {
		result.Status = domain.NormalizationWithoutDatastore
		return Degraded(result, CauseDatastore)
	}
	if !relationsOK {
		return Degraded(result, CauseLLMUnavailable)
	}
	return Ok(result)
}

// normalizeEntities looks up each entity in the datastore and attaches the
// canonical reference when the best match clears the threshold. The second
// return is false when the datastore was unreachable; remaining entities are
// then left unnormalized.
func (n *Normalize) normalizeEntities(ctx context.Context, in Input, entities []domain.Entity) ([]domain.Entity, bool) {
	out := make([]domain.Entity, len(entities))
	copy(out, entities)

	for i := range out {
		matches, err := n.finder.FindSimilarEntity(ctx, out[i].Text, out[i].Type, n.threshold)
		if err != nil {
			n.logger.Warn("entity normalization unavailable, treating entities as new",
				"phase", domain.PhaseNormalize,
				"fragment_id", in.Fragment.ID,
				"error", err)
			return out, false
		}
		if len(matches) == 0 || matches[0].Similarity < n.threshold {
			continue
		}
		out[i].NormalizedID = matches[0].ID
		out[i].NormalizedName = matches[0].NormalizedName
		out[i].NormalizationSimilarity = matches[0].Similarity
	}
	return out, true
}

// deriveRelations asks the model to link the numbered elements. References
// outside the element ID ranges are discarded.
func (n *Normalize) deriveRelations(ctx context.Context, in Input, facts []domain.Fact, entities []domain.Entity) (domain.Relations, bool) {
	empty := domain.Relations{
		FactFact:       []domain.FactRelation{},
		EntityEntity:   []domain.EntityRelation{},
		Contradictions: []domain.Contradiction{},
	}

	resp, err := n.llm.Complete(ctx, llm.Request{
		System:      RelationsSystemPrompt(),
		Prompt:      RelationsPrompt(facts, entities),
		Temperature: &extractTemperature,
	})
	if err != nil {
		n.logger.Warn("relation derivation failed, continuing without relations",
			"phase", domain.PhaseNormalize,
			"fragment_id", in.Fragment.ID,
			"error_type", classify(err),
			"error", err)
		return empty, false
	}

	var wire domain.Relations
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Content)), &wire); err != nil {
		n.logger.Warn("relation derivation response was not valid JSON, continuing without relations",
			"phase", domain.PhaseNormalize,
			"fragment_id", in.Fragment.ID,
			"error", err)
		return empty, false
	}

	out := empty
	for _, r := range wire.FactFact {
		if validID(r.FactA, len(facts)) && validID(r.FactB, len(facts)) {
			r.Strength = clamp01(r.Strength)
			out.FactFact = append(out.FactFact, r)
		}
	}
	for _, r := range wire.EntityEntity {
		if validID(r.EntityA, len(entities)) && validID(r.EntityB, len(entities)) {
			r.Strength = clamp01(r.Strength)
			out.EntityEntity = append(out.EntityEntity, r)
		}
	}
	for _, c := range wire.Contradictions {
		if validID(c.FactA, len(facts)) && validID(c.FactB, len(facts)) {
			out.Contradictions = append(out.Contradictions, c)
		}
	}
	return out, true
}

func validID(id, n int) bool {
	return id >= 1 && id <= n
}
