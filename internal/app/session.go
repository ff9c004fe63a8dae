package app

import (
	"context"
	"fmt"

	"github.com/MrWong99/ensotalk/internal/config"
	"github.com/MrWong99/ensotalk/internal/voice"
	"github.com/MrWong99/ensotalk/pkg/provider/llm"
	"github.com/MrWong99/ensotalk/pkg/provider/stt"
	"github.com/MrWong99/ensotalk/pkg/provider/tts"
	"github.com/MrWong99/ensotalk/pkg/provider/vad"
)

// voiceConfig maps the session section onto the controller config. VAD
// fields left at zero keep the detector defaults.
func voiceConfig(cfg *config.Config) (voice.Config, error) {
	mode, err := voice.ParseListenMode(cfg.Session.ListenMode)
	if err != nil {
		return voice.Config{}, fmt.Errorf("app: %w", err)
	}

	v := vad.DefaultConfig()
	if o := cfg.Session.VAD; o != (config.VADConfig{}) {
		if o.ThresholdDB != 0 {
			v.ThresholdDB = o.ThresholdDB
		}
		if o.SilenceDebounce > 0 {
			v.SilenceDebounce = o.SilenceDebounce
		}
		if o.MinUtterance > 0 {
			v.MinUtterance = o.MinUtterance
		}
		if o.SampleInterval > 0 {
			v.SampleInterval = o.SampleInterval
		}
	}

	return voice.Config{
		VAD:                  v,
		Mode:                 mode,
		SystemPrompt:         cfg.Session.SystemPrompt,
		Voice:                cfg.Providers.TTS.Voice,
		Language:             cfg.Session.Language,
		Vocabulary:           cfg.Session.Vocabulary,
		PreRoll:              cfg.Session.VAD.PreRoll,
		ChatService:          serviceName("llm", cfg.Providers.LLM.Name),
		TranscriptionService: serviceName("stt", cfg.Providers.STT.Name),
	}, nil
}

// serviceName is the backend name shown in user-facing errors.
func serviceName(kind, provider string) string {
	switch {
	case provider == "openclaw":
		return "OpenClaw"
	case kind == "stt" && (provider == "openai" || provider == "whisper" || provider == "whisper-native"):
		return "Whisper"
	case provider == "openai":
		return "OpenAI"
	default:
		return provider
	}
}

func voiceCredentials(cfg *config.Config, c config.Credentials) voice.Credentials {
	p := cfg.Providers
	return voice.Credentials{
		Transcription:        c.Transcription,
		Chat:                 c.Chat,
		Synthesis:            c.Synthesis,
		TranscriptionKeyless: config.Keyless("stt", p.STT.Name),
		ChatKeyless:          config.Keyless("llm", p.LLM.Name),
		SynthesisKeyless:     config.Keyless("tts", p.TTS.Name),
	}
}

// The controller sends the primary backend's credential with every request.
// Failover backends were built with their own key, so these wrappers drop
// the per-request override before delegating.

type ownKeySTT struct{ p stt.Provider }

func (o ownKeySTT) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	req.APIKey = ""
	return o.p.Transcribe(ctx, req)
}

type ownKeyLLM struct{ p llm.Provider }

func (o ownKeyLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	req.APIKey = ""
	return o.p.Complete(ctx, req)
}

type ownKeyTTS struct{ p tts.Provider }

func (o ownKeyTTS) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	req.APIKey = ""
	return o.p.Synthesize(ctx, req)
}
