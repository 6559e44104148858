package phase

import (
	"errors"
	"strings"
	"unicode"
)

// minContentLength is the minimum cleaned-text length considered processable.
const minContentLength = 50

var errContentTooShort = errors.New("cleaned text below minimum length")

// cleanText normalizes whitespace and strips control characters. Returns an
// error when the remaining text is too short to analyze.
func cleanText(text string) (string, error) {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := true
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		case unicode.IsControl(r):
			// drop
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if len(cleaned) < minContentLength {
		return cleaned, errContentTooShort
	}
	return cleaned, nil
}

// spanishStopwords are high-frequency Spanish function words used by the
// language heuristic.
var spanishStopwords = map[string]struct{}{
	"el": {}, "la": {}, "los": {}, "las": {}, "de": {}, "del": {},
	"que": {}, "y": {}, "en": {}, "un": {}, "una": {}, "por": {},
	"con": {}, "para": {}, "se": {}, "su": {}, "al": {}, "es": {},
	"no": {}, "como": {}, "más": {}, "pero": {}, "sus": {}, "le": {},
}

// detectLanguage is a cheap stopword-ratio heuristic. It answers "es" when
// enough Spanish function words appear, otherwise "unknown". It is only used
// to decide whether a translation attempt is worthwhile.
func detectLanguage(text string) string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return "unknown"
	}

	sample := words
	if len(sample) > 200 {
		sample = sample[:200]
	}

	hits := 0
	for _, w := range sample {
		w = strings.Trim(w, ".,;:¡!¿?\"'()")
		if _, ok := spanishStopwords[w]; ok {
			hits++
		}
	}

	if float64(hits)/float64(len(sample)) >= 0.08 {
		return "es"
	}
	return "unknown"
}
