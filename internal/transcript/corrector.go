package transcript

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/ensotalk/internal/observe"
	"github.com/MrWong99/ensotalk/internal/transcript/llmcorrect"
	"github.com/MrWong99/ensotalk/internal/transcript/phonetic"
)

const (
	// minSpanSimilarity is the Jaro-Winkler score a window must reach against
	// the term once spaces are removed.
	minSpanSimilarity = 0.80

	// A window may be at most this much shorter or longer than the term it
	// replaces, counted in letters.
	minLengthRatio = 0.6
	maxLengthRatio = 1.6
)

// Option configures a [Corrector].
type Option func(*Corrector)

// WithPhoneticMatcher enables the phonetic stage.
func WithPhoneticMatcher(m PhoneticMatcher) Option {
	return func(c *Corrector) {
		c.phonetic = m
	}
}

// WithLLMCorrector enables the LLM stage. It runs after the phonetic stage on
// every transcript and adds a model round-trip to each utterance.
func WithLLMCorrector(l *llmcorrect.Corrector) Option {
	return func(c *Corrector) {
		c.llm = l
	}
}

// Corrector fixes vocabulary terms in transcripts. Both stages are optional;
// with neither configured text passes through unchanged. It is safe for
// concurrent use.
type Corrector struct {
	phonetic PhoneticMatcher
	llm      *llmcorrect.Corrector

	mu       sync.Mutex
	cacheKey string
	prepared *phonetic.Vocabulary
}

// New returns a [Corrector] with the supplied stages.
func New(opts ...Option) *Corrector {
	c := &Corrector{}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct returns text with vocabulary terms fixed. An LLM failure is logged
// and the phonetic result is returned instead, so the error is only non-nil
// when no stage produced anything usable.
func (c *Corrector) Correct(ctx context.Context, text string, vocabulary []string) (string, error) {
	res, err := c.Apply(ctx, text, vocabulary)
	if err != nil {
		if res == nil {
			return text, err
		}
		observe.Logger(ctx).Warn("llm transcript correction failed", "err", err)
	}
	return res.Corrected, nil
}

// Apply runs the configured stages and reports every substitution. When the
// LLM stage fails, Apply returns the phonetic result together with the error.
func (c *Corrector) Apply(ctx context.Context, text string, vocabulary []string) (*Result, error) {
	res := &Result{Original: text, Corrected: text, Corrections: []Correction{}}
	if len(vocabulary) == 0 || strings.TrimSpace(text) == "" {
		return res, nil
	}

	if c.phonetic != nil {
		corrected, corrections := c.applyPhonetic(text, vocabulary)
		res.Corrected = corrected
		res.Corrections = append(res.Corrections, corrections...)
	}

	if c.llm != nil {
		corrected, corrections, err := c.llm.Correct(ctx, res.Corrected, vocabulary)
		if err != nil {
			return res, err
		}
		res.Corrected = corrected
		for _, lc := range corrections {
			res.Corrections = append(res.Corrections, Correction{
				Original:   lc.Original,
				Corrected:  lc.Corrected,
				Confidence: lc.Confidence,
				Method:     MethodLLM,
			})
		}
	}
	return res, nil
}

// applyPhonetic slides windows over the tokens, longest first, and replaces
// the first window that matches a term. Windows run one word longer than the
// longest term because recognisers often split a single name in two.
func (c *Corrector) applyPhonetic(text string, vocabulary []string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	match, maxWords := c.matchFunc(vocabulary)
	if maxWords == 0 {
		return text, nil
	}
	maxWindow := maxWords + 1

	out := make([]string, 0, len(tokens))
	var corrections []Correction

	for i := 0; i < len(tokens); {
		n := min(maxWindow, len(tokens)-i)
		consumed := 0
		for ; n >= 1; n-- {
			words := bareWords(tokens[i : i+n])
			if words == nil {
				continue
			}
			window := strings.Join(words, " ")
			term, conf, ok := match(window)
			if !ok || !tight(words, term) {
				continue
			}
			consumed = n
			lead, trail := leadingPunct(tokens[i]), trailingPunct(tokens[i+n-1])
			out = append(out, lead+term+trail)
			if window != term {
				corrections = append(corrections, Correction{
					Original:   window,
					Corrected:  term,
					Confidence: conf,
					Method:     MethodPhonetic,
				})
			}
			break
		}
		if consumed == 0 {
			out = append(out, tokens[i])
			consumed = 1
		}
		i += consumed
	}

	return strings.Join(out, " "), corrections
}

// matchFunc returns a matcher bound to vocabulary. The built-in matcher
// reuses a prepared vocabulary until the list changes.
func (c *Corrector) matchFunc(vocabulary []string) (func(string) (string, float64, bool), int) {
	pm, ok := c.phonetic.(*phonetic.Matcher)
	if !ok {
		return func(w string) (string, float64, bool) {
			return c.phonetic.Match(w, vocabulary)
		}, maxWordCount(vocabulary)
	}

	v := c.prepare(vocabulary)
	return func(w string) (string, float64, bool) {
		return pm.MatchPrepared(w, v)
	}, v.MaxWords()
}

func (c *Corrector) prepare(vocabulary []string) *phonetic.Vocabulary {
	key := strings.Join(vocabulary, "\x00")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prepared == nil || c.cacheKey != key {
		c.prepared = phonetic.Prepare(vocabulary)
		c.cacheKey = key
	}
	return c.prepared
}

// tight rejects windows that only resemble term through part of their
// words: the letters must be of comparable length, and dropping the first
// or last word must not bring the window closer to the term.
func tight(words []string, term string) bool {
	target := compact(term)
	span := compact(strings.Join(words, ""))
	if len(target) == 0 {
		return false
	}
	ratio := float64(len([]rune(span))) / float64(len([]rune(target)))
	if ratio < minLengthRatio || ratio > maxLengthRatio {
		return false
	}
	score := matchr.JaroWinkler(span, target, false)
	if score < minSpanSimilarity {
		return false
	}
	if len(words) > 1 {
		if matchr.JaroWinkler(compact(strings.Join(words[1:], "")), target, false) > score ||
			matchr.JaroWinkler(compact(strings.Join(words[:len(words)-1], "")), target, false) > score {
			return false
		}
	}
	return true
}

// compact lowercases s and drops spaces.
func compact(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// bareWords strips surrounding punctuation from tokens. It returns nil when
// a token is punctuation only.
func bareWords(tokens []string) []string {
	words := make([]string, len(tokens))
	for i, t := range tokens {
		w := strings.TrimFunc(t, unicode.IsPunct)
		if w == "" {
			return nil
		}
		words[i] = w
	}
	return words
}

func leadingPunct(token string) string {
	return token[:len(token)-len(strings.TrimLeftFunc(token, unicode.IsPunct))]
}

func trailingPunct(token string) string {
	return token[len(strings.TrimRightFunc(token, unicode.IsPunct)):]
}

// maxWordCount returns the word count of the longest term.
func maxWordCount(vocabulary []string) int {
	n := 0
	for _, term := range vocabulary {
		n = max(n, len(strings.Fields(term)))
	}
	return n
}
