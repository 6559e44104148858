package phase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prensadata/rotativa/domain"
	"github.com/prensadata/rotativa/llm"
	"github.com/prensadata/rotativa/llm/testutil"
)

func extracted() *domain.ElementsResult {
	return &domain.ElementsResult{
		Facts: []domain.Fact{
			{ID: 1, SourceFragmentID: "frag-1", Text: "El ministro anunció una reducción del IVA"},
		},
		Entities: []domain.Entity{
			{ID: 1, SourceFragmentID: "frag-1", Text: "Ministerio de Hacienda", Type: domain.EntityOrganization},
		},
	}
}

func TestQuotesExtraction(t *testing.T) {
	mock := &testutil.MockLLM{Responses: []*llm.Response{{
		Content: `{
			"quotes": [
				{"text": "La rebaja llegará a todos los hogares", "speaker_text": "el ministro",
				 "cited_entity_id": 1, "context": "anuncio fiscal", "relevance": 0.8}
			],
			"quantitative_data": [
				{"description": "reducción del IVA", "value": 4, "unit": "%",
				 "period_reference": "próximo trimestre", "category": "fiscal", "trend": "down"}
			]
		}`,
	}}}

	out := NewQuotes(mock, nil).Run(context.Background(), testInput(spanishText), triaged(), extracted())

	require.False(t, out.Fallback)
	require.Len(t, out.Result.Quotes, 1)
	require.Len(t, out.Result.Data, 1)

	assert.Equal(t, 1, out.Result.Quotes[0].ID)
	assert.Equal(t, 1, out.Result.Quotes[0].CitedEntityID)
	assert.Equal(t, "frag-1", out.Result.Quotes[0].SourceFragmentID)
	assert.InDelta(t, 4.0, out.Result.Data[0].Value, 0.001)
	assert.Equal(t, "%", out.Result.Data[0].Unit)
}

func TestQuotesPromptCarriesEntityList(t *testing.T) {
	mock := &testutil.MockLLM{Responses: []*llm.Response{{Content: `{"quotes": [], "quantitative_data": []}`}}}

	NewQuotes(mock, nil).Run(context.Background(), testInput(spanishText), triaged(), extracted())

	require.Equal(t, 1, mock.CallCount())
	assert.Contains(t, mock.Prompts()[0], "1. Ministerio de Hacienda (ORGANIZATION)")
}

func TestQuotesDanglingEntityReferenceIsDropped(t *testing.T) {
	mock := &testutil.MockLLM{Responses: []*llm.Response{{
		Content: `{"quotes": [{"text": "cita", "speaker_text": "alguien", "cited_entity_id": 9, "relevance": 0.5}],
			"quantitative_data": []}`,
	}}}

	out := NewQuotes(mock, nil).Run(context.Background(), testInput(spanishText), triaged(), extracted())

	require.False(t, out.Fallback)
	assert.Equal(t, 0, out.Result.Quotes[0].CitedEntityID)
}

func TestQuotesBlankEntriesKeepIDsDense(t *testing.T) {
	mock := &testutil.MockLLM{Responses: []*llm.Response{{
		Content: `{
			"quotes": [{"text": ""}, {"text": "cita real", "speaker_text": "el ministro", "cited_entity_id": 1, "relevance": 0.7}],
			"quantitative_data": [{"description": ""}, {"description": "dato real", "value": 4, "unit": "%"}]
		}`,
	}}}

	out := NewQuotes(mock, nil).Run(context.Background(), testInput(spanishText), triaged(), extracted())

	require.False(t, out.Fallback)
	require.Len(t, out.Result.Quotes, 1)
	require.Len(t, out.Result.Data, 1)

	// IDs stay dense from 1 even when blank wire entries are skipped.
	assert.Equal(t, 1, out.Result.Quotes[0].ID)
	assert.Equal(t, 1, out.Result.Data[0].ID)
}

func TestQuotesFailureReturnsEmptyLists(t *testing.T) {
	mock := &testutil.MockLLM{Err: errors.New("boom")}

	out := NewQuotes(mock, nil).Run(context.Background(), testInput(spanishText), triaged(), extracted())

	require.True(t, out.Fallback)
	assert.NotNil(t, out.Result.Quotes)
	assert.NotNil(t, out.Result.Data)
	assert.Empty(t, out.Result.Quotes)
	assert.Empty(t, out.Result.Data)
}
