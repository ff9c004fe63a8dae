// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., the OpenAI speech API,
// ElevenLabs, a Coqui server, or the operating system's own voice) and turns
// one finished reply into one playable audio file. The returned bytes are an
// encoded container (MP3 or WAV) that an audio.Player can play directly.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrMissingAPIKey is returned by providers that require a credential when
// neither the request nor the provider configuration carries one.
var ErrMissingAPIKey = errors.New("tts: api key not configured")

// ErrEmptyText is returned when Synthesize is called with blank text.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Request is a single synthesis job.
type Request struct {
	// Text is the reply to speak.
	Text string

	// Voice selects a provider-specific voice (e.g., "nova", an ElevenLabs
	// voice ID, a Coqui speaker). Empty selects the provider default.
	Voice string

	// Language is an optional BCP-47 hint for multilingual voices.
	Language string

	// APIKey overrides the credential the provider was constructed with.
	APIKey string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders req.Text and returns the encoded audio. It blocks
	// until the whole reply is available or ctx is cancelled.
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}
