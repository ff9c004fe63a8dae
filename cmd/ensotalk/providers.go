package main

import (
	"fmt"
	"io"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/ensotalk/internal/app"
	"github.com/MrWong99/ensotalk/internal/config"
	"github.com/MrWong99/ensotalk/pkg/audio"
	audiolocal "github.com/MrWong99/ensotalk/pkg/audio/local"
	"github.com/MrWong99/ensotalk/pkg/provider/llm"
	"github.com/MrWong99/ensotalk/pkg/provider/llm/anyllm"
	llmopenai "github.com/MrWong99/ensotalk/pkg/provider/llm/openai"
	"github.com/MrWong99/ensotalk/pkg/provider/stt"
	"github.com/MrWong99/ensotalk/pkg/provider/stt/deepgram"
	sttopenai "github.com/MrWong99/ensotalk/pkg/provider/stt/openai"
	"github.com/MrWong99/ensotalk/pkg/provider/stt/whisper"
	"github.com/MrWong99/ensotalk/pkg/provider/tts"
	"github.com/MrWong99/ensotalk/pkg/provider/tts/coqui"
	"github.com/MrWong99/ensotalk/pkg/provider/tts/elevenlabs"
	ttslocal "github.com/MrWong99/ensotalk/pkg/provider/tts/local"
	ttsopenai "github.com/MrWong99/ensotalk/pkg/provider/tts/openai"
)

// anyLLMBackends are the chat backends served through any-llm-go. "openai"
// and "openclaw" use the OpenAI SDK directly.
var anyLLMBackends = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq",
	"ollama", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.Model != "" {
			opts = append(opts, sttopenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		return sttopenai.New(entry.APIKey, opts...), nil
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.NativeOption
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(entry.StringOption("model_path", entry.Model), opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openclaw", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		return llmopenai.NewOpenClaw(entry.APIKey, entry.StringOption("agent_id", ""), opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.StringOption("organization", ""); org != "" {
			opts = append(opts, llmopenai.WithOrganization(org))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// The any-llm-go backends share the same pattern: optional APIKey +
	// optional BaseURL. Local servers simply leave the key empty.
	for _, providerName := range anyLLMBackends {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.Model != "" {
			opts = append(opts, ttsopenai.WithModel(entry.Model))
		}
		if entry.Voice != "" {
			opts = append(opts, ttsopenai.WithVoice(entry.Voice))
		}
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		return ttsopenai.New(entry.APIKey, opts...), nil
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.Voice != "" {
			opts = append(opts, elevenlabs.WithVoice(entry.Voice))
		}
		if outputFmt := entry.StringOption("output_format", ""); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...), nil
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := entry.StringOption("api_mode", ""); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if entry.Voice != "" {
			opts = append(opts, coqui.WithSpeaker(entry.Voice))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("local", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttslocal.Option
		if entry.Voice != "" {
			opts = append(opts, ttslocal.WithVoice(entry.Voice))
		}
		if rate := optInt(entry.Options, "rate"); rate > 0 {
			opts = append(opts, ttslocal.WithRate(rate))
		}
		return ttslocal.New(opts...), nil
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("local", func(entry config.ProviderEntry) (audio.Platform, error) {
		var opts []audiolocal.Option
		if hz := optInt(entry.Options, "sample_rate"); hz > 0 {
			opts = append(opts, audiolocal.WithSampleRate(hz))
		}
		return audiolocal.New(opts...), nil
	})

	for _, kind := range []string{"stt", "llm", "tts", "audio"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// builtProviders is the output of buildProviders: the chains for the app plus
// the providers that hold resources until shutdown.
type builtProviders struct {
	*app.Providers
	closers []io.Closer
}

// buildProviders instantiates every provider named in cfg. Each fallback
// entry gets its own credential resolved from secrets.
func buildProviders(cfg *config.Config, reg *config.Registry, secrets config.Secrets) (*builtProviders, error) {
	out := &builtProviders{Providers: &app.Providers{}}
	p := cfg.Providers

	a, err := reg.CreateAudio(p.Audio)
	if err != nil {
		return nil, err
	}
	out.Audio = a
	slog.Info("provider created", "kind", "audio", "name", p.Audio.Name)

	out.STT, err = buildChain(out, "stt", p.STT, p.STTFallbacks, secrets, reg.CreateSTT)
	if err != nil {
		return nil, err
	}
	out.LLM, err = buildChain(out, "llm", p.LLM, p.LLMFallbacks, secrets, reg.CreateLLM)
	if err != nil {
		return nil, err
	}
	out.TTS, err = buildChain(out, "tts", p.TTS, p.TTSFallbacks, secrets, reg.CreateTTS)
	if err != nil {
		return nil, err
	}

	if p.LocalTTS.Name != "" {
		local, err := reg.CreateTTS(p.LocalTTS)
		if err != nil {
			// The local voice is a convenience; the session still works
			// whenever the synthesis credential is present.
			slog.Warn("local synthesizer unavailable", "name", p.LocalTTS.Name, "err", err)
		} else {
			out.LocalTTS = local
			slog.Info("provider created", "kind", "local_tts", "name", p.LocalTTS.Name)
		}
	}

	if cc := cfg.Session.Correction; cc.LLM && cc.LLMProvider.Name != "" {
		entry := cc.LLMProvider
		entry.APIKey = config.EntryKey("llm", entry, secrets)
		corr, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("create correction provider %q: %w", entry.Name, err)
		}
		out.Correction = corr
		slog.Info("provider created", "kind", "correction", "name", entry.Name)
	}

	return out, nil
}

// buildChain creates the primary entry followed by its fallbacks.
func buildChain[T any](
	out *builtProviders,
	kind string,
	primary config.ProviderEntry,
	fallbacks []config.ProviderEntry,
	secrets config.Secrets,
	create func(config.ProviderEntry) (T, error),
) ([]app.Backend[T], error) {
	entries := append([]config.ProviderEntry{primary}, fallbacks...)
	chain := make([]app.Backend[T], 0, len(entries))
	for i, entry := range entries {
		entry.APIKey = config.EntryKey(kind, entry, secrets)
		p, err := create(entry)
		if err != nil {
			return nil, err
		}
		if c, ok := any(p).(io.Closer); ok {
			out.closers = append(out.closers, c)
		}
		chain = append(chain, app.Backend[T]{Name: entry.Name, Provider: p})
		slog.Info("provider created", "kind", kind, "name", entry.Name, "fallback", i > 0)
	}
	return chain, nil
}

// optInt extracts an integer from a provider Options map. YAML decodes whole
// numbers as int; anything else yields 0.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
