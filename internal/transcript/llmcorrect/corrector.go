// Package llmcorrect implements a language-model transcript correction stage
// for vocabulary terms the phonetic matcher could not resolve.
//
// The [Corrector] sends the transcript to an [llm.Provider] together with the
// user's vocabulary and asks for a JSON response holding the corrected text
// and an itemised list of substitutions. Every change in the returned text
// must be backed by a declared substitution; undeclared edits are reverted.
// An unparseable response leaves the transcript unchanged.
package llmcorrect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/ensotalk/pkg/provider/llm"
)

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 512
)

// systemPromptTemplate receives the vocabulary list at call time.
const systemPromptTemplate = `You correct speech-to-text transcripts of commands spoken to a voice assistant.

Your task: fix misrecognised vocabulary terms in the provided transcript.

Rules:
- ONLY correct words that appear to be misheard versions of the vocabulary terms listed below.
- Do NOT change ordinary words, grammar, punctuation, or sentence structure.
- If you are not confident a word is a misheard vocabulary term, leave it unchanged.
- Corrected terms must use the exact spelling from the vocabulary list.

Vocabulary:
%s
Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "corrected_text": "<full corrected transcript>",
  "corrections": [
    {"original": "<original words>", "corrected": "<vocabulary term>", "confidence": <0.0-1.0>}
  ]
}

If no corrections are needed, return an empty corrections array and corrected_text equal to the input.`

// Correction is a single substitution reported by the model and confirmed
// against the returned text.
type Correction struct {
	// Original is the span as it appeared in the input transcript.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the model's reported confidence (0.0-1.0).
	Confidence float64
}

type llmResponse struct {
	CorrectedText string `json:"corrected_text"`
	Corrections   []struct {
		Original   string  `json:"original"`
		Corrected  string  `json:"corrected"`
		Confidence float64 `json:"confidence"`
	} `json:"corrections"`
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithTemperature sets the sampling temperature. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(c *Corrector) {
		c.temperature = temp
	}
}

// WithMaxTokens caps the completion length. Default: 512.
func WithMaxTokens(n int) Option {
	return func(c *Corrector) {
		c.maxTokens = n
	}
}

// WithAPIKey sets the credential sent with every correction request. When
// empty the provider's own credential is used.
func WithAPIKey(key string) Option {
	return func(c *Corrector) {
		c.apiKey = key
	}
}

// Corrector uses an [llm.Provider] to fix misrecognised vocabulary terms.
// It is safe for concurrent use.
type Corrector struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
	apiKey      string
}

// New returns a [Corrector] backed by provider.
func New(provider llm.Provider, opts ...Option) *Corrector {
	c := &Corrector{
		llm:         provider,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct asks the model to fix vocabulary terms in text. With an empty
// vocabulary the model is not called.
//
// Transport errors and context cancellation are returned. An unparseable
// response yields text unchanged with a nil error.
func (c *Corrector) Correct(ctx context.Context, text string, vocabulary []string) (string, []Correction, error) {
	if len(vocabulary) == 0 || strings.TrimSpace(text) == "" {
		return text, nil, nil
	}

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(vocabulary),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: text}},
		Temperature:  c.temperature,
		MaxTokens:    c.maxTokens,
		APIKey:       c.apiKey,
	})
	if err != nil {
		return text, nil, fmt.Errorf("llm corrector: complete: %w", err)
	}

	corrected, corrections, err := parseResponse(resp.Content, text)
	if err != nil {
		return text, nil, nil //nolint:nilerr // unparseable output leaves the transcript as is
	}
	return corrected, corrections, nil
}

func buildSystemPrompt(vocabulary []string) string {
	var sb strings.Builder
	for _, term := range vocabulary {
		sb.WriteString("- ")
		sb.WriteString(term)
		sb.WriteByte('\n')
	}
	return fmt.Sprintf(systemPromptTemplate, sb.String())
}

// parseResponse decodes the model output and verifies the corrected text
// against the declared corrections.
func parseResponse(content, originalText string) (string, []Correction, error) {
	var r llmResponse
	if err := json.Unmarshal([]byte(stripMarkdown(content)), &r); err != nil {
		return "", nil, fmt.Errorf("llm corrector: parse response: %w", err)
	}

	if strings.TrimSpace(r.CorrectedText) == "" {
		return originalText, nil, nil
	}

	declared := make([]Correction, 0, len(r.Corrections))
	for _, c := range r.Corrections {
		if c.Original == "" || c.Original == c.Corrected {
			continue
		}
		declared = append(declared, Correction{
			Original:   c.Original,
			Corrected:  c.Corrected,
			Confidence: c.Confidence,
		})
	}

	text, verified := verifyCorrectedText(originalText, r.CorrectedText, declared)
	return text, verified, nil
}

// stripMarkdown removes the code fences some models wrap JSON output in.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
