package phase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prensadata/rotativa/domain"
	"github.com/prensadata/rotativa/llm"
	"github.com/prensadata/rotativa/llm/testutil"
)

const spanishText = "El ministro de Hacienda anunció este lunes una reducción del IVA " +
	"que se aplicará a los productos de la cesta básica durante el próximo trimestre."

func testInput(text string) Input {
	return Input{
		Fragment: &domain.Fragment{
			ID:             "frag-1",
			TextoOriginal:  text,
			ArticuloFuente: "art-1",
		},
		Titular: "Ministro anuncia reducción del IVA",
		Medio:   "El Diario",
	}
}

func TestTriageRelevant(t *testing.T) {
	mock := &testutil.MockLLM{Responses: []*llm.Response{{
		Content: `{"is_relevant": true, "decision": "PROCESS", "justification": "hechos concretos",
			"category": "economia", "keywords": ["iva", "hacienda"], "score": 0.9}`,
		Model:      "test-model",
		TokensUsed: 120,
	}}}

	out := NewTriage(mock, nil).Run(context.Background(), testInput(spanishText))

	require.False(t, out.Fallback)
	assert.True(t, out.Result.IsRelevant)
	assert.Equal(t, domain.DecisionProcess, out.Result.Decision)
	assert.Equal(t, "economia", out.Result.Category)
	assert.InDelta(t, 0.9, out.Result.Score, 0.001)
	assert.Equal(t, "es", out.Result.Language)
	assert.Equal(t, "test-model", out.Result.ModelMetadata.Model)
	// Spanish input: no translation call, one relevance call.
	assert.Equal(t, 1, mock.CallCount())
}

func TestTriageDiscard(t *testing.T) {
	mock := &testutil.MockLLM{Responses: []*llm.Response{{
		Content: `{"is_relevant": false, "decision": "DISCARD", "score": 0.1}`,
	}}}

	out := NewTriage(mock, nil).Run(context.Background(), testInput(spanishText))

	require.False(t, out.Fallback)
	assert.False(t, out.Result.IsRelevant)
	assert.Equal(t, domain.DecisionDiscard, out.Result.Decision)
}

func TestTriageLLMFailureAcceptsFragment(t *testing.T) {
	mock := &testutil.MockLLM{Err: &llm.UnavailableError{}}

	out := NewTriage(mock, nil).Run(context.Background(), testInput(spanishText))

	require.True(t, out.Fallback)
	assert.Equal(t, CauseLLMUnavailable, out.Cause)
	assert.True(t, out.Result.IsRelevant)
	assert.Equal(t, domain.DecisionFallbackLLM, out.Result.Decision)
	assert.NotEmpty(t, out.Result.CleanedText)
}

func TestTriageMalformedJSONAcceptsFragment(t *testing.T) {
	mock := &testutil.MockLLM{Responses: []*llm.Response{{Content: "not json at all"}}}

	out := NewTriage(mock, nil).Run(context.Background(), testInput(spanishText))

	require.True(t, out.Fallback)
	assert.Equal(t, CauseProcessing, out.Cause)
	assert.Equal(t, domain.DecisionFallbackLLM, out.Result.Decision)
}

func TestTriageShortContentAcceptsWithPlaceholder(t *testing.T) {
	mock := &testutil.MockLLM{}

	out := NewTriage(mock, nil).Run(context.Background(), testInput("muy corto"))

	require.True(t, out.Fallback)
	assert.Equal(t, CausePreprocessing, out.Cause)
	assert.Equal(t, domain.DecisionFallbackPreprocessing, out.Result.Decision)
	assert.Contains(t, out.Result.CleanedText, "Ministro anuncia")
	// Never reached the LLM.
	assert.Equal(t, 0, mock.CallCount())
}

func TestTriageTranslatesNonSpanishInput(t *testing.T) {
	english := "The finance minister announced a VAT cut on Monday affecting basic goods " +
		"throughout the next quarter according to government sources."
	mock := &testutil.MockLLM{Responses: []*llm.Response{
		{Content: spanishText},
		{Content: `{"is_relevant": true, "decision": "PROCESS", "score": 0.8}`},
	}}

	out := NewTriage(mock, nil).Run(context.Background(), testInput(english))

	require.False(t, out.Fallback)
	assert.True(t, out.Result.TranslationAttempted)
	assert.Equal(t, "es", out.Result.Language)
	assert.Contains(t, out.Result.CleanedText, "ministro de Hacienda")
	assert.Equal(t, 2, mock.CallCount())
	assert.True(t, strings.Contains(mock.Prompts()[0], "Translate"))
}

func TestCleanTextNormalizesWhitespace(t *testing.T) {
	cleaned, err := cleanText("  El   ministro\t\tanunció\n\nuna reducción del IVA para la cesta básica.  ")
	require.NoError(t, err)
	assert.Equal(t, "El ministro anunció una reducción del IVA para la cesta básica.", cleaned)
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "es", detectLanguage(spanishText))
	assert.Equal(t, "unknown", detectLanguage("quarterly results exceeded forecasts across all business segments"))
	assert.Equal(t, "unknown", detectLanguage(""))
}
