// Package phonetic implements the [transcript.PhoneticMatcher] interface using
// Double Metaphone phonetic encoding combined with Jaro-Winkler string
// similarity for ranked candidate selection.
//
// Matching proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word of the input and of every vocabulary term. A term whose code
//     set overlaps the input's becomes a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates the term with the
//     highest similarity (case-insensitive) wins, provided its score reaches
//     the phonetic threshold. When no phonetic candidate qualifies, a second
//     pass accepts pure string similarity above the stricter fuzzy threshold.
//
// Multi-word terms such as "Living Room Lamp" are scored on the full phrase,
// the phrase with spaces removed and the best pairwise word score.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate exists. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is a phonetic vocabulary matcher. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// term is a vocabulary entry with its phonetic codes precomputed.
type term struct {
	canonical string
	lower     string
	tokens    []string
	codes     map[string]struct{}
}

// Vocabulary is a prepared term list. Preparing once avoids recomputing
// Double Metaphone codes for every window of every transcript.
type Vocabulary struct {
	terms    []term
	maxWords int
}

// Prepare computes phonetic codes for terms. Blank entries and
// case-insensitive duplicates are dropped; the first spelling wins.
func Prepare(terms []string) *Vocabulary {
	v := &Vocabulary{terms: make([]term, 0, len(terms))}
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		canonical := strings.TrimSpace(t)
		lower := strings.ToLower(canonical)
		if lower == "" {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		tokens := strings.Fields(lower)
		v.terms = append(v.terms, term{
			canonical: canonical,
			lower:     lower,
			tokens:    tokens,
			codes:     codesForTokens(tokens),
		})
		v.maxWords = max(v.maxWords, len(tokens))
	}
	return v
}

// Len reports the number of distinct terms.
func (v *Vocabulary) Len() int { return len(v.terms) }

// MaxWords reports the word count of the longest term, or 0 when empty.
func (v *Vocabulary) MaxWords() int { return v.maxWords }

// Match finds the term in vocabulary that is most similar to word. It
// prepares vocabulary on every call; use [Matcher.MatchPrepared] when the
// same list is matched repeatedly.
//
// When matched is false, corrected equals word and confidence is 0.
func (m *Matcher) Match(word string, vocabulary []string) (corrected string, confidence float64, matched bool) {
	return m.MatchPrepared(word, Prepare(vocabulary))
}

// MatchPrepared is [Matcher.Match] against a prepared vocabulary.
func (m *Matcher) MatchPrepared(word string, v *Vocabulary) (corrected string, confidence float64, matched bool) {
	if v == nil || len(v.terms) == 0 || strings.TrimSpace(word) == "" {
		return word, 0, false
	}

	wordLower := strings.ToLower(strings.TrimSpace(word))
	wordTokens := strings.Fields(wordLower)
	inputCodes := codesForTokens(wordTokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, t := range v.terms {
		score := bestJWScore(wordTokens, t.tokens, wordLower, t.lower)
		if codesOverlap(inputCodes, t.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t.canonical, score, true
			}
			continue
		}
		if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = t.canonical, score
		}
	}

	if best == "" {
		return word, 0, false
	}
	return best, bestScore, true
}

// codesForTokens returns the union of Double Metaphone codes for tokens.
// Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the highest Jaro-Winkler similarity over the full strings,
// the space-stripped strings and every input/term token pair.
func bestJWScore(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(termTokens, ""), false); s > score {
			score = s
		}
	}

	for _, it := range inputTokens {
		for _, tt := range termTokens {
			if s := matchr.JaroWinkler(it, tt, false); s > score {
				score = s
			}
		}
	}
	return score
}
