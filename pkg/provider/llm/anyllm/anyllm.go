// Package anyllm provides a universal LLM provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	p, err := anyllm.New("anthropic", "claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-..."))
//	p, err := anyllm.NewOllama("llama3")
//
// A request that carries its own llm.CompletionRequest.APIKey is served by a
// backend created for that key; backends are cached per key.
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/ensotalk/pkg/provider/llm"
)

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

type factory func(opts ...anyllmlib.Option) (anyllmlib.Provider, error)

// Provider implements llm.Provider by wrapping github.com/mozilla-ai/any-llm-go.
type Provider struct {
	name    string
	model   string
	newFunc factory
	opts    []anyllmlib.Option

	// defaultBackend is built from opts alone; defaultErr records why that
	// failed (typically a missing API key in the environment).
	defaultBackend anyllmlib.Provider
	defaultErr     error

	mu    sync.Mutex
	byKey map[string]anyllmlib.Provider
}

// New creates a new Provider backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama", "deepseek",
// "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "gpt-4o", "claude-3-5-sonnet-latest").
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey, anyllmlib.WithBaseURL).
// If no API key option is provided, the backend falls back to the relevant
// environment variable (e.g., OPENAI_API_KEY). When that is missing too, New
// still succeeds and only requests without their own key fail.
func New(providerName string, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	newFunc, err := backendFactory(providerName)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %w", err)
	}

	p := &Provider{
		name:    strings.ToLower(providerName),
		model:   model,
		newFunc: newFunc,
		opts:    opts,
		byKey:   map[string]anyllmlib.Provider{},
	}
	p.defaultBackend, p.defaultErr = newFunc(opts...)
	return p, nil
}

// NewOpenAI creates a Provider backed by OpenAI.
func NewOpenAI(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("openai", model, opts...)
}

// NewAnthropic creates a Provider backed by Anthropic.
func NewAnthropic(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("anthropic", model, opts...)
}

// NewGemini creates a Provider backed by Google Gemini.
func NewGemini(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("gemini", model, opts...)
}

// NewOllama creates a Provider backed by Ollama (local inference).
// Without options, it connects to http://localhost:11434.
func NewOllama(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("ollama", model, opts...)
}

// NewLlamaCpp creates a Provider backed by a running llama.cpp server.
func NewLlamaCpp(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("llamacpp", model, opts...)
}

// backendFactory returns the any-llm-go constructor for the given provider name.
func backendFactory(providerName string) (factory, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return wrap(anyllmoai.New), nil
	case "anthropic":
		return wrap(anthropic.New), nil
	case "gemini":
		return wrap(gemini.New), nil
	case "ollama":
		return wrap(ollama.New), nil
	case "deepseek":
		return wrap(deepseek.New), nil
	case "mistral":
		return wrap(mistral.New), nil
	case "groq":
		return wrap(groq.New), nil
	case "llamacpp":
		return wrap(llamacpp.New), nil
	case "llamafile":
		return wrap(llamafile.New), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// wrap adapts a concrete any-llm-go constructor to the factory signature.
func wrap[P anyllmlib.Provider](fn func(...anyllmlib.Option) (P, error)) factory {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
		return fn(opts...)
	}
}

// backend returns the backend serving apiKey. An empty key selects the
// default backend.
func (p *Provider) backend(apiKey string) (anyllmlib.Provider, error) {
	if apiKey == "" {
		if p.defaultErr != nil {
			return nil, errors.Join(llm.ErrMissingAPIKey, p.defaultErr)
		}
		return p.defaultBackend, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.byKey[apiKey]; ok {
		return b, nil
	}
	opts := append(append([]anyllmlib.Option(nil), p.opts...), anyllmlib.WithAPIKey(apiKey))
	b, err := p.newFunc(opts...)
	if err != nil {
		return nil, fmt.Errorf("create %q backend: %w", p.name, err)
	}
	p.byKey[apiKey] = b
	return b, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	backend, err := p.backend(req.APIKey)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %w", err)
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("anyllm: no messages")
	}

	resp, err := backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: no reply from %s: %w", p.name, llm.ErrEmptyReply)
	}

	result := &llm.CompletionResponse{
		Content: resp.Choices[0].Message.ContentString(),
	}
	if resp.Usage != nil {
		result.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

// buildParams converts our CompletionRequest into anyllm CompletionParams.
func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message

	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}
	return params
}
