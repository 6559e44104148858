package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prensadata/rotativa/datastore"
	"github.com/prensadata/rotativa/domain"
	"github.com/prensadata/rotativa/llm"
	"github.com/prensadata/rotativa/llm/testutil"
	"github.com/prensadata/rotativa/metrics"
)

type stubStore struct {
	findErr   error
	insertErr error
	matches   []datastore.EntityMatch
	inserted  []*datastore.FragmentPayload
}

func (s *stubStore) FindSimilarEntity(_ context.Context, _, _ string, _ float64) ([]datastore.EntityMatch, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.matches, nil
}

func (s *stubStore) InsertWholeFragment(_ context.Context, payload *datastore.FragmentPayload) (*datastore.InsertResult, error) {
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	s.inserted = append(s.inserted, payload)
	return &datastore.InsertResult{
		FragmentID:   payload.FragmentID,
		CountsByType: payload.ElementCounts(),
	}, nil
}

func testArticle() *domain.Article {
	return &domain.Article{
		Medio:            "El Diario",
		Pais:             "ES",
		TipoMedio:        "prensa",
		Titular:          "Ministro anuncia reducción del IVA",
		FechaPublicacion: "2026-08-24",
		ContenidoTexto: "El ministro de Hacienda anunció este lunes una reducción del IVA " +
			"que se aplicará a los productos de la cesta básica durante el próximo trimestre.",
	}
}

// happyLLM answers the four chain calls in order: triage, elements, quotes,
// relations.
func happyLLM() *testutil.MockLLM {
	return &testutil.MockLLM{Responses: []*llm.Response{
		{Content: `{"is_relevant": true, "decision": "PROCESS", "category": "economia", "score": 0.9}`, Model: "m"},
		{Content: `{"facts": [{"text": "El ministro anunció una reducción del IVA", "confidence": 0.9, "type": "ANNOUNCEMENT"}],
			"entities": [{"text": "Ministerio de Hacienda", "type": "ORGANIZATION", "relevance": 0.9}],
			"summary": "resumen"}`},
		{Content: `{"quotes": [], "quantitative_data": [{"description": "reducción", "value": 4, "unit": "%"}]}`},
		{Content: `{"fact_fact": [], "entity_entity": [], "contradictions": []}`},
	}}
}

func newTestController(mock llm.Completer, store datastore.Store) *Controller {
	return New(Deps{
		LLM:     mock,
		Store:   store,
		Metrics: metrics.NewCollector(),
	})
}

func TestProcessArticleHappyPath(t *testing.T) {
	store := &stubStore{matches: []datastore.EntityMatch{{ID: "ent-1", Similarity: 0.95}}}
	ctrl := newTestController(happyLLM(), store)

	result, err := ctrl.ProcessArticle(context.Background(), testArticle())
	require.NoError(t, err)
	require.Len(t, result.Fragments, 1)

	fr := result.Fragments[0]
	assert.True(t, strings.HasPrefix(fr.RequestID, "FRAG-"))
	assert.False(t, result.PartialProcessing)
	assert.Empty(t, result.Warnings)

	for _, name := range domain.PhaseNames {
		assert.True(t, fr.Metrics.PerPhaseSuccess[name], name)
		assert.GreaterOrEqual(t, fr.Metrics.PerPhaseDurations[name], 0.0)
	}
	assert.Equal(t, 1.0, fr.Metrics.OverallSuccessRate)
	assert.Equal(t, 1, fr.Metrics.ElementCounts["facts"])
	assert.Equal(t, 1, fr.Metrics.ElementCounts["entities"])
	assert.Equal(t, 1, fr.Metrics.ElementCounts["quantitative_data"])

	require.True(t, fr.Persistence.OK)
	// Metrics counts and persisted counts come from the same payload.
	assert.Equal(t, fr.Persistence.InsertedCounts, fr.Metrics.ElementCounts)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, "ent-1", store.inserted[0].Entities[0].NormalizedID)
}

func TestFallbackCascade(t *testing.T) {
	mock := &testutil.MockLLM{Err: &llm.UnavailableError{}}
	store := &stubStore{}
	ctrl := newTestController(mock, store)

	result, err := ctrl.ProcessArticle(context.Background(), testArticle())
	require.NoError(t, err)

	fr := result.Fragments[0]
	assert.True(t, fr.PartialProcessing)

	// Warnings appear in phase order.
	require.Len(t, fr.Warnings, 4)
	for i, w := range fr.Warnings {
		assert.True(t, strings.HasPrefix(w, "fase "+string(rune('1'+i))+" fallback"), w)
	}

	// Phase 2 synthesized exactly one fact from the headline.
	require.Len(t, fr.Phases.Elements.Facts, 1)
	assert.Equal(t, "Ministro anuncia reducción del IVA", fr.Phases.Elements.Facts[0].Text)

	// Phase 4 produced empty relations.
	assert.Empty(t, fr.Phases.Normalize.Relations.FactFact)
	assert.Empty(t, fr.Phases.Normalize.Relations.EntityEntity)

	// The fallback elements are still worth persisting.
	assert.True(t, fr.Persistence.OK)
	assert.Equal(t, 0.0, fr.Metrics.OverallSuccessRate)
}

func TestWarningsMatchFallbackCount(t *testing.T) {
	// Only the quotes call fails.
	mock := &testutil.MockLLM{Responses: []*llm.Response{
		{Content: `{"is_relevant": true, "decision": "PROCESS", "score": 0.9}`},
		{Content: `{"facts": [{"text": "hecho", "confidence": 0.9, "type": "EVENT"}], "entities": [], "summary": ""}`},
		{Content: `no json`},
		{Content: `{"fact_fact": [], "entity_entity": [], "contradictions": []}`},
	}}
	ctrl := newTestController(mock, &stubStore{})

	result, err := ctrl.ProcessArticle(context.Background(), testArticle())
	require.NoError(t, err)

	fr := result.Fragments[0]
	fallbacks := 0
	for _, ok := range fr.Metrics.PerPhaseSuccess {
		if !ok {
			fallbacks++
		}
	}
	assert.Equal(t, fallbacks, len(fr.Warnings))
	assert.Equal(t, 0.75, fr.Metrics.OverallSuccessRate)
	assert.True(t, fr.PartialProcessing)
}

func TestPersistenceFailureIsolation(t *testing.T) {
	store := &stubStore{insertErr: errors.New("insert_whole_fragment: connection refused")}
	ctrl := newTestController(happyLLM(), store)

	result, err := ctrl.ProcessArticle(context.Background(), testArticle())
	require.NoError(t, err)

	fr := result.Fragments[0]
	assert.Equal(t, 1.0, fr.Metrics.OverallSuccessRate)
	assert.False(t, fr.Persistence.OK)
	assert.Contains(t, fr.Persistence.Error, "connection refused")
	assert.Equal(t, 1, fr.Metrics.ElementCounts["facts"])
}

func TestNoDataSkipsPersistence(t *testing.T) {
	mock := &testutil.MockLLM{Responses: []*llm.Response{
		{Content: `{"is_relevant": true, "decision": "PROCESS", "score": 0.6}`},
		{Content: `{"facts": [], "entities": [], "summary": ""}`},
		{Content: `{"quotes": [], "quantitative_data": []}`},
		{Content: `{"fact_fact": [], "entity_entity": [], "contradictions": []}`},
	}}
	store := &stubStore{}
	ctrl := newTestController(mock, store)

	result, err := ctrl.ProcessArticle(context.Background(), testArticle())
	require.NoError(t, err)

	fr := result.Fragments[0]
	assert.True(t, fr.Persistence.Skipped)
	assert.False(t, fr.Persistence.OK)
	assert.Contains(t, fr.Warnings, WarningNoData)
	assert.Empty(t, store.inserted)
	// The skip is not a processing failure.
	assert.Equal(t, 1.0, fr.Metrics.OverallSuccessRate)
}

func TestTriageDiscardShortCircuits(t *testing.T) {
	mock := &testutil.MockLLM{Responses: []*llm.Response{
		{Content: `{"is_relevant": false, "decision": "DISCARD", "justification": "sin contenido informativo", "score": 0.1}`},
	}}
	ctrl := newTestController(mock, &stubStore{})

	result, err := ctrl.ProcessArticle(context.Background(), testArticle())
	require.NoError(t, err)

	fr := result.Fragments[0]
	assert.Equal(t, 1, mock.CallCount())
	assert.Nil(t, fr.Phases.Elements)
	assert.True(t, fr.Persistence.Skipped)
	assert.Contains(t, fr.Warnings, WarningDiscarded)
	assert.Equal(t, 0.25, fr.Metrics.OverallSuccessRate)
}

func TestProcessArticleValidation(t *testing.T) {
	article := testArticle()
	article.Titular = ""
	ctrl := newTestController(happyLLM(), &stubStore{})

	_, err := ctrl.ProcessArticle(context.Background(), article)
	require.Error(t, err)

	ve, ok := IsValidationError(err)
	require.True(t, ok)
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, "titular", ve.Fields[0].Field)
	assert.Equal(t, "required", ve.Fields[0].Error)
}

func TestValidateArticleDateAndLength(t *testing.T) {
	ctrl := newTestController(happyLLM(), &stubStore{})

	article := testArticle()
	article.FechaPublicacion = "ayer"
	article.ContenidoTexto = "corto"

	fieldErrs := ctrl.ValidateArticle(article)
	require.Len(t, fieldErrs, 2)
	assert.Equal(t, "fecha_publicacion", fieldErrs[0].Field)
	assert.Equal(t, "contenido_texto", fieldErrs[1].Field)
}

func TestProcessFragmentDirect(t *testing.T) {
	ctrl := newTestController(happyLLM(), &stubStore{})

	fr, err := ctrl.ProcessFragment(context.Background(), &domain.Fragment{
		ID:             "frag-9",
		ArticuloFuente: "art-9",
		TextoOriginal: "El ministro de Hacienda anunció este lunes una reducción del IVA " +
			"que se aplicará a los productos de la cesta básica.",
	})
	require.NoError(t, err)
	assert.Equal(t, "frag-9", fr.FragmentID)
	assert.NotEmpty(t, fr.FragmentUUID)
	assert.True(t, fr.Persistence.OK)
}

func TestProcessFragmentValidation(t *testing.T) {
	ctrl := newTestController(happyLLM(), &stubStore{})

	_, err := ctrl.ProcessFragment(context.Background(), &domain.Fragment{ID: "frag-1"})
	require.Error(t, err)

	ve, ok := IsValidationError(err)
	require.True(t, ok)
	fields := make([]string, len(ve.Fields))
	for i, f := range ve.Fields {
		fields[i] = f.Field
	}
	assert.Contains(t, fields, "texto_original")
	assert.Contains(t, fields, "id_articulo_fuente")
}

func TestResultHookReceivesFragmentResults(t *testing.T) {
	var got []*domain.FragmentResult
	ctrl := New(Deps{
		LLM:     happyLLM(),
		Store:   &stubStore{},
		Metrics: metrics.NewCollector(),
	}, WithResultHook(func(fr *domain.FragmentResult) {
		got = append(got, fr)
	}))

	_, err := ctrl.ProcessArticle(context.Background(), testArticle())
	require.NoError(t, err)
	require.Len(t, got, 1)
}
