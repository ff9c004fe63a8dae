// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local chat API (the OpenClaw gateway, the
// OpenAI API, Anthropic, a local Ollama instance, ...) and exposes a single
// non-streaming completion call. EnsoTalk sends one user turn per utterance
// and speaks the complete reply, so streaming and tool calling are not part of
// the contract.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
	"errors"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrMissingAPIKey is returned when a backend that requires a credential
	// has none configured.
	ErrMissingAPIKey = errors.New("llm: api key not configured")

	// ErrEmptyReply is returned when the backend answered without any choice.
	ErrEmptyReply = errors.New("llm: no reply")
)

// Message is a single message in an LLM conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the user and drives the response.
	Messages []Message

	// SystemPrompt is an optional instruction injected before Messages.
	SystemPrompt string

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// means use the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means use the
	// provider default.
	MaxTokens int

	// APIKey overrides the credential the provider was constructed with.
	APIKey string
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or if ctx is cancelled before
	// the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
