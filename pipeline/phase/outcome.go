// Package phase implements the four processing phases of the extraction
// chain: triage, element extraction, quotes and quantitative data, and
// normalization. Each phase returns an Outcome that is either primary output
// or a degraded fallback; phases never return errors to the controller.
package phase

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/prensadata/rotativa/breaker"
	"github.com/prensadata/rotativa/domain"
	"github.com/prensadata/rotativa/llm"
)

// Fallback causes, surfaced in warnings and error logs.
const (
	CauseLLMUnavailable = "llm_unavailable"
	CauseProcessing     = "processing_error"
	CauseCancelled      = "cancelled"
	CausePreprocessing  = "preprocessing_error"
	CauseDatastore      = "datastore_unavailable"
)

// Outcome is the result of one phase run. Fallback reports whether the
// primary computation failed and Result holds the degraded substitute;
// Result is never nil either way.
type Outcome[T any] struct {
	Result   *T
	Fallback bool
	Cause    string
}

// Ok wraps a primary result.
func Ok[T any](result *T) Outcome[T] {
	return Outcome[T]{Result: result}
}

// Degraded wraps a fallback result with its cause.
func Degraded[T any](result *T, cause string) Outcome[T] {
	return Outcome[T]{Result: result, Fallback: true, Cause: cause}
}

// Input carries the fragment and the article context phases may need for
// fallback synthesis. Titular and Medio are empty for direct fragment
// submissions.
type Input struct {
	Fragment *domain.Fragment
	Titular  string
	Medio    string
}

// headline returns the article headline, or the fragment's opening words
// when no article context is available.
func (in Input) headline() string {
	if in.Titular != "" {
		return in.Titular
	}
	text := in.Fragment.TextoOriginal
	if len(text) > 120 {
		// Back off to a rune boundary so the cut never splits a
		// multi-byte character.
		cut := 120
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

// classify maps an adapter error to a fallback cause.
func classify(err error) string {
	switch {
	case breaker.IsServiceUnavailable(err), llm.IsUnavailable(err):
		return CauseLLMUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CauseCancelled
	default:
		return CauseProcessing
	}
}
