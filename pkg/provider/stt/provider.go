// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., the OpenAI Whisper API,
// Deepgram, or a local whisper.cpp server) and exposes a uniform batch
// interface: one finished utterance in, one transcript out. EnsoTalk captures
// an utterance to completion before transcribing it, so no streaming session
// is needed.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrMissingAPIKey is returned by providers that require a credential when
// neither the request nor the provider configuration carries one.
var ErrMissingAPIKey = errors.New("stt: api key not configured")

// Request is a single transcription job.
type Request struct {
	// Audio is the encoded utterance, usually a WAV file.
	Audio []byte

	// Filename is the name the audio is uploaded under. Services that sniff the
	// container from the extension rely on it. Defaults to "audio.wav".
	Filename string

	// Language is a BCP-47 hint (e.g., "en", "de"). Empty lets the provider
	// auto-detect or use its configured default.
	Language string

	// Keywords is a list of uncommon words (names, jargon) the speaker is likely
	// to use. Providers pass them on as a prompt or keyword boost where the
	// service supports it and ignore them otherwise.
	Keywords []string

	// APIKey overrides the credential the provider was constructed with.
	APIKey string
}

// FilenameOrDefault returns r.Filename, or "audio.wav" when it is empty.
func (r Request) FilenameOrDefault() string {
	if r.Filename == "" {
		return "audio.wav"
	}
	return r.Filename
}

// Provider is the abstraction over any Speech-to-Text backend.
type Provider interface {
	// Transcribe converts req.Audio to text. A successful call may return an
	// empty string when the audio contains no recognisable speech; callers
	// decide how to treat that.
	//
	// Transcribe must return promptly when ctx is cancelled.
	Transcribe(ctx context.Context, req Request) (string, error)
}
