// Package pipeline contains the phase orchestrator: it runs the four-phase
// extraction chain over fragments, applies fallback policies, persists the
// outcome, and emits metrics.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/prensadata/rotativa/datastore"
	"github.com/prensadata/rotativa/domain"
	"github.com/prensadata/rotativa/llm"
	"github.com/prensadata/rotativa/metrics"
	"github.com/prensadata/rotativa/pipeline/phase"
)

// WarningNoData is appended when phase 2 produced nothing worth persisting.
const WarningNoData = "no data worth persisting"

// WarningDiscarded is appended when triage rejects the fragment.
const WarningDiscarded = "fragmento descartado en triaje"

// Deps wires the controller's collaborators. All fields are required except
// Logger and SimilarityThreshold.
type Deps struct {
	LLM     llm.Completer
	Store   datastore.Store
	Metrics *metrics.Collector
	Logger  *slog.Logger

	// SimilarityThreshold gates phase-4 normalization matches. ≤0 uses the
	// phase default.
	SimilarityThreshold float64
	// MinContentLength is the validation floor for article text. ≤0 uses 50.
	MinContentLength int
}

// Controller runs the chain. One instance serves all workers; it holds no
// per-request state.
type Controller struct {
	triage    *phase.Triage
	elements  *phase.Elements
	quotes    *phase.Quotes
	normalize *phase.Normalize

	store      datastore.Store
	metrics    *metrics.Collector
	validate   *validator.Validate
	logger     *slog.Logger
	minContent int

	// onResult, when set, receives every fragment result after metrics are
	// recorded. Used for the event feed.
	onResult func(*domain.FragmentResult)
}

// Option configures a Controller.
type Option func(*Controller)

// WithResultHook registers a callback invoked with each fragment result.
func WithResultHook(fn func(*domain.FragmentResult)) Option {
	return func(c *Controller) {
		c.onResult = fn
	}
}

// New creates a controller.
func New(deps Deps, opts ...Option) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	minContent := deps.MinContentLength
	if minContent <= 0 {
		minContent = 50
	}

	c := &Controller{
		triage:     phase.NewTriage(deps.LLM, logger),
		elements:   phase.NewElements(deps.LLM, logger),
		quotes:     phase.NewQuotes(deps.LLM, logger),
		normalize:  phase.NewNormalize(deps.LLM, deps.Store, deps.SimilarityThreshold, logger),
		store:      deps.Store,
		metrics:    deps.Metrics,
		validate:   newValidator(),
		logger:     logger,
		minContent: minContent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProcessArticle validates the article, splits it into fragments (one in the
// base case), runs each through the chain, and aggregates the results.
func (c *Controller) ProcessArticle(ctx context.Context, article *domain.Article) (*domain.ArticleResult, error) {
	if fieldErrs := c.ValidateArticle(article); len(fieldErrs) > 0 {
		return nil, &ValidationError{Fields: fieldErrs}
	}

	start := time.Now()
	articleID := "art-" + uuid.Must(uuid.NewV7()).String()

	result := &domain.ArticleResult{
		RequestID: "ART-" + uuid.Must(uuid.NewV7()).String(),
		ArticleID: articleID,
		Warnings:  []string{},
	}

	for _, fragment := range fragmentArticle(article, articleID) {
		fr := c.runChain(ctx, phase.Input{
			Fragment: fragment,
			Titular:  article.Titular,
			Medio:    article.Medio,
		})
		result.Fragments = append(result.Fragments, fr)
		result.Warnings = append(result.Warnings, fr.Warnings...)
		if fr.PartialProcessing {
			result.PartialProcessing = true
		}
	}

	result.TotalDuration = time.Since(start).Seconds()
	c.metrics.IncArticles()
	return result, nil
}

// ProcessFragment validates and runs one connector-supplied fragment.
func (c *Controller) ProcessFragment(ctx context.Context, fragment *domain.Fragment) (*domain.FragmentResult, error) {
	if fieldErrs := c.ValidateFragment(fragment); len(fieldErrs) > 0 {
		return nil, &ValidationError{Fields: fieldErrs}
	}
	return c.runChain(ctx, phase.Input{Fragment: fragment}), nil
}

// runChain executes phases 1→4 for one fragment. No phase failure aborts the
// chain; every phase yields at least a fallback result. Persistence failures
// are recorded in the result, never raised.
func (c *Controller) runChain(ctx context.Context, in phase.Input) *domain.FragmentResult {
	start := time.Now()

	result := &domain.FragmentResult{
		RequestID:    "FRAG-" + uuid.Must(uuid.NewV7()).String(),
		FragmentID:   in.Fragment.ID,
		FragmentUUID: uuid.Must(uuid.NewV7()).String(),
		Metrics: domain.FragmentMetrics{
			PerPhaseDurations: make(map[string]float64, 4),
			PerPhaseSuccess:   make(map[string]bool, 4),
			ElementCounts:     make(map[string]int, 5),
		},
		Warnings: []string{},
	}

	logger := c.logger.With("request_id", result.RequestID, "fragment_id", in.Fragment.ID)

	t0 := time.Now()
	triageOut := c.triage.Run(ctx, in)
	c.record(result, domain.PhaseTriage, t0, triageOut.Fallback, triageOut.Cause)
	result.Phases.Triage = triageOut.Result

	if triageOut.Result.Decision == domain.DecisionDiscard {
		logger.Info("fragment discarded by triage",
			"score", triageOut.Result.Score,
			"justification", triageOut.Result.Justification)
		result.Persistence = domain.Persistence{Skipped: true}
		result.Warnings = append(result.Warnings, WarningDiscarded)
		c.finalize(result, start)
		return result
	}

	t0 = time.Now()
	elementsOut := c.elements.Run(ctx, in, triageOut.Result)
	c.record(result, domain.PhaseElements, t0, elementsOut.Fallback, elementsOut.Cause)
	result.Phases.Elements = elementsOut.Result

	t0 = time.Now()
	quotesOut := c.quotes.Run(ctx, in, triageOut.Result, elementsOut.Result)
	c.record(result, domain.PhaseQuotes, t0, quotesOut.Fallback, quotesOut.Cause)
	result.Phases.Quotes = quotesOut.Result

	t0 = time.Now()
	normalizeOut := c.normalize.Run(ctx, in, elementsOut.Result, quotesOut.Result)
	c.record(result, domain.PhaseNormalize, t0, normalizeOut.Fallback, normalizeOut.Cause)
	result.Phases.Normalize = normalizeOut.Result

	payload := datastore.BuildFragmentPayload(result.RequestID, in.Fragment, &result.Phases)
	result.Metrics.ElementCounts = payload.ElementCounts()

	c.persist(ctx, payload, result, logger)
	c.finalize(result, start)

	logger.Info("fragment processed",
		"success_rate", result.Metrics.OverallSuccessRate,
		"partial", result.PartialProcessing,
		"persisted", result.Persistence.OK,
		"duration", result.Metrics.TotalDuration)
	return result
}

// record stores one phase's duration and success flag. Warnings accumulate
// in phase order because phases execute sequentially.
func (c *Controller) record(result *domain.FragmentResult, phaseName string, started time.Time, fellBack bool, cause string) {
	result.Metrics.PerPhaseDurations[phaseName] = time.Since(started).Seconds()
	result.Metrics.PerPhaseSuccess[phaseName] = !fellBack
	if fellBack {
		result.PartialProcessing = true
		result.Warnings = append(result.Warnings, phaseWarning(phaseName, cause))
		if c.metrics != nil {
			c.metrics.IncError(cause)
		}
	}
}

// persist inserts the payload unless phase 2 produced neither facts nor
// entities.
func (c *Controller) persist(ctx context.Context, payload *datastore.FragmentPayload, result *domain.FragmentResult, logger *slog.Logger) {
	elements := result.Phases.Elements
	if elements == nil || (len(elements.Facts) == 0 && len(elements.Entities) == 0) {
		result.Persistence = domain.Persistence{Skipped: true}
		result.Warnings = append(result.Warnings, WarningNoData)
		return
	}

	inserted, err := c.store.InsertWholeFragment(ctx, payload)
	if err != nil {
		logger.Error("fragment persistence failed",
			"error_type", "datastore_unavailable",
			"error", err)
		result.Persistence = domain.Persistence{Error: err.Error()}
		return
	}
	result.Persistence = domain.Persistence{OK: true, InsertedCounts: inserted.CountsByType}
}

// finalize computes totals and emits the fragment's metrics.
func (c *Controller) finalize(result *domain.FragmentResult, started time.Time) {
	result.Metrics.TotalDuration = time.Since(started).Seconds()

	succeeded := 0
	for _, ok := range result.Metrics.PerPhaseSuccess {
		if ok {
			succeeded++
		}
	}
	result.Metrics.OverallSuccessRate = float64(succeeded) / float64(len(domain.PhaseNames))

	if c.metrics != nil {
		c.metrics.ObserveFragment(result)
	}
	if c.onResult != nil {
		c.onResult(result)
	}
}

// fragmentArticle splits an article into fragments. The base case is one
// fragment per article carrying the full text.
func fragmentArticle(article *domain.Article, articleID string) []*domain.Fragment {
	return []*domain.Fragment{{
		ID:             articleID + "-f1",
		TextoOriginal:  article.ContenidoTexto,
		ArticuloFuente: articleID,
		Orden:          1,
	}}
}

// phaseWarning formats the per-phase fallback warning surfaced to callers.
func phaseWarning(phaseName, cause string) string {
	n := 0
	for i, name := range domain.PhaseNames {
		if name == phaseName {
			n = i + 1
			break
		}
	}
	return fmt.Sprintf("fase %d fallback: %s", n, cause)
}
