package phase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prensadata/rotativa/datastore"
	"github.com/prensadata/rotativa/domain"
	"github.com/prensadata/rotativa/llm"
	"github.com/prensadata/rotativa/llm/testutil"
)

type stubFinder struct {
	matches map[string][]datastore.EntityMatch
	err     error
	calls   int
}

func (s *stubFinder) FindSimilarEntity(_ context.Context, name, _ string, _ float64) ([]datastore.EntityMatch, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.matches[name], nil
}

func emptyRelationsJSON() *llm.Response {
	return &llm.Response{Content: `{"fact_fact": [], "entity_entity": [], "contradictions": []}`}
}

func TestNormalizeAttachesCanonicalReference(t *testing.T) {
	finder := &stubFinder{matches: map[string][]datastore.EntityMatch{
		"Ministerio de Hacienda": {{ID: "ent-42", NormalizedName: "Ministerio de Hacienda", Similarity: 0.97}},
	}}
	mock := &testutil.MockLLM{Responses: []*llm.Response{emptyRelationsJSON()}}

	out := NewNormalize(mock, finder, 0.85, nil).Run(context.Background(), testInput(spanishText), extracted(), emptyQuotes())

	require.False(t, out.Fallback)
	assert.Equal(t, domain.NormalizationCompleted, out.Result.Status)
	require.Len(t, out.Result.Entities, 1)
	assert.Equal(t, "ent-42", out.Result.Entities[0].NormalizedID)
	assert.InDelta(t, 0.97, out.Result.Entities[0].NormalizationSimilarity, 0.001)
}

func TestNormalizeBelowThresholdLeavesEntityNew(t *testing.T) {
	finder := &stubFinder{matches: map[string][]datastore.EntityMatch{
		"Ministerio de Hacienda": {{ID: "ent-1", Similarity: 0.6}},
	}}
	mock := &testutil.MockLLM{Responses: []*llm.Response{emptyRelationsJSON()}}

	out := NewNormalize(mock, finder, 0.85, nil).Run(context.Background(), testInput(spanishText), extracted(), emptyQuotes())

	require.False(t, out.Fallback)
	assert.Empty(t, out.Result.Entities[0].NormalizedID)
	assert.Zero(t, out.Result.Entities[0].NormalizationSimilarity)
}

func TestNormalizeDatastoreFailure(t *testing.T) {
	finder := &stubFinder{err: errors.New("connection refused")}
	mock := &testutil.MockLLM{Responses: []*llm.Response{emptyRelationsJSON()}}

	out := NewNormalize(mock, finder, 0.85, nil).Run(context.Background(), testInput(spanishText), extracted(), emptyQuotes())

	require.True(t, out.Fallback)
	assert.Equal(t, CauseDatastore, out.Cause)
	assert.Equal(t, domain.NormalizationWithoutDatastore, out.Result.Status)
	assert.Empty(t, out.Result.Entities[0].NormalizedID)
	// The relations call still runs.
	assert.Equal(t, 1, mock.CallCount())
}

func TestNormalizeRelations(t *testing.T) {
	elements := &domain.ElementsResult{
		Facts: []domain.Fact{
			{ID: 1, Text: "hecho uno"},
			{ID: 2, Text: "hecho dos"},
		},
		Entities: []domain.Entity{
			{ID: 1, Text: "Entidad", Type: domain.EntityOrganization},
		},
	}
	mock := &testutil.MockLLM{Responses: []*llm.Response{{
		Content: `{
			"fact_fact": [
				{"fact_a": 1, "fact_b": 2, "type": "elaborates", "strength": 0.7},
				{"fact_a": 1, "fact_b": 9, "type": "causes", "strength": 0.5}
			],
			"entity_entity": [],
			"contradictions": [{"fact_a": 1, "fact_b": 2, "description": "se contradicen"}]
		}`,
	}}}

	out := NewNormalize(mock, &stubFinder{}, 0.85, nil).Run(context.Background(), testInput(spanishText), elements, emptyQuotes())

	require.False(t, out.Fallback)
	// The relation referencing fact 9 is dropped.
	require.Len(t, out.Result.Relations.FactFact, 1)
	assert.Equal(t, "elaborates", out.Result.Relations.FactFact[0].Type)
	require.Len(t, out.Result.Relations.Contradictions, 1)
}

func TestNormalizeRelationsFailureKeepsNormalization(t *testing.T) {
	finder := &stubFinder{matches: map[string][]datastore.EntityMatch{
		"Ministerio de Hacienda": {{ID: "ent-42", Similarity: 0.9}},
	}}
	mock := &testutil.MockLLM{Err: &llm.UnavailableError{}}

	out := NewNormalize(mock, finder, 0.85, nil).Run(context.Background(), testInput(spanishText), extracted(), emptyQuotes())

	require.True(t, out.Fallback)
	assert.Equal(t, CauseLLMUnavailable, out.Cause)
	// Normalization result survives the relations failure.
	assert.Equal(t, domain.NormalizationCompleted, out.Result.Status)
	assert.Equal(t, "ent-42", out.Result.Entities[0].NormalizedID)
	assert.Empty(t, out.Result.Relations.FactFact)
}

func TestNormalizeRunsRelationsOverEmptyElements(t *testing.T) {
	mock := &testutil.MockLLM{Responses: []*llm.Response{emptyRelationsJSON()}}
	empty := &domain.ElementsResult{Facts: []domain.Fact{}, Entities: []domain.Entity{}}

	out := NewNormalize(mock, &stubFinder{}, 0.85, nil).Run(context.Background(), testInput(spanishText), empty, emptyQuotes())

	require.False(t, out.Fallback)
	assert.Equal(t, 1, mock.CallCount())
}
