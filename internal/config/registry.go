package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/ensotalk/pkg/audio"
	"github.com/MrWong99/ensotalk/pkg/provider/llm"
	"github.com/MrWong99/ensotalk/pkg/provider/stt"
	"github.com/MrWong99/ensotalk/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its configuration entry.
type Factory[T any] func(ProviderEntry) (T, error)

type factories[T any] map[string]Factory[T]

func (f factories[T]) create(kind string, entry ProviderEntry) (T, error) {
	factory, ok := f[entry.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("config: create %s/%s: %w", kind, entry.Name, err)
	}
	return p, nil
}

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	stt   factories[stt.Provider]
	llm   factories[llm.Provider]
	tts   factories[tts.Provider]
	audio factories[audio.Platform]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:   make(factories[stt.Provider]),
		llm:   make(factories[llm.Provider]),
		tts:   make(factories[tts.Provider]),
		audio: make(factories[audio.Platform]),
	}
}

// RegisterSTT registers a transcription provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = f
}

// RegisterLLM registers a chat provider factory under name.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = f
}

// RegisterTTS registers a synthesis provider factory under name.
func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = f
}

// RegisterAudio registers an audio backend factory under name.
func (r *Registry) RegisterAudio(name string, f Factory[audio.Platform]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = f
}

// CreateSTT instantiates the transcription provider registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create("stt", entry)
}

// CreateLLM instantiates the chat provider registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create("llm", entry)
}

// CreateTTS instantiates the synthesis provider registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.create("tts", entry)
}

// CreateAudio instantiates the audio backend registered under entry.Name.
func (r *Registry) CreateAudio(entry ProviderEntry) (audio.Platform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.audio.create("audio", entry)
}

// Names returns the sorted provider names registered for kind ("stt",
// "llm", "tts" or "audio").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "stt":
		names = keys(r.stt)
	case "llm":
		names = keys(r.llm)
	case "tts":
		names = keys(r.tts)
	case "audio":
		names = keys(r.audio)
	}
	slices.Sort(names)
	return names
}

func keys[T any](f factories[T]) []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	return out
}
