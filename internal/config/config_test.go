package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/ensotalk/internal/config"
	"github.com/MrWong99/ensotalk/pkg/provider/stt"
	sttmock "github.com/MrWong99/ensotalk/pkg/provider/stt/mock"
)

const validYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
session:
  listen_mode: always_listening
  system_prompt: "Answer in one sentence."
  language: en
  vad:
    threshold_db: -35
    silence_debounce: 1.2s
    min_utterance: 400ms
    sample_interval: 50ms
  vocabulary:
    - OpenClaw
    - Kubernetes
  correction:
    llm: true
providers:
  stt:
    name: deepgram
    api_key: dg-key
    model: nova-2
  llm:
    name: anthropic
    model: claude-sonnet-4
  tts:
    name: elevenlabs
    voice: 21m00Tcm4TlvDq8ikWAM
  stt_fallbacks:
    - name: whisper
      base_url: http://localhost:8080
journal:
  postgres_dsn: "postgres://localhost/ensotalk"
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q, want debug", cfg.Server.LogLevel)
	}
	vad := cfg.Session.VAD
	if vad.ThresholdDB != -35 || vad.SilenceDebounce != 1200*time.Millisecond ||
		vad.MinUtterance != 400*time.Millisecond || vad.SampleInterval != 50*time.Millisecond {
		t.Errorf("vad = %+v", vad)
	}
	if len(cfg.Session.Vocabulary) != 2 || cfg.Session.Vocabulary[0] != "OpenClaw" {
		t.Errorf("vocabulary = %v", cfg.Session.Vocabulary)
	}
	if !cfg.Session.Correction.LLM {
		t.Error("correction.llm = false, want true")
	}
	if cfg.Providers.STT.Name != "deepgram" || cfg.Providers.STT.Model != "nova-2" {
		t.Errorf("stt = %+v", cfg.Providers.STT)
	}
	if len(cfg.Providers.STTFallbacks) != 1 || cfg.Providers.STTFallbacks[0].Name != "whisper" {
		t.Errorf("stt_fallbacks = %+v", cfg.Providers.STTFallbacks)
	}
	if cfg.Providers.LLM.BaseURL != "" {
		t.Errorf("non-gateway llm got base_url %q", cfg.Providers.LLM.BaseURL)
	}
	if cfg.Providers.Audio.Name != config.DefaultAudioBackend {
		t.Errorf("audio = %q, want default", cfg.Providers.Audio.Name)
	}
}

func TestLoadFromReader_EmptyIsDefault(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	p := cfg.Providers
	checks := []struct {
		name, got, want string
	}{
		{"stt", p.STT.Name, "openai"},
		{"stt model", p.STT.Model, "whisper-1"},
		{"llm", p.LLM.Name, "openclaw"},
		{"llm base_url", p.LLM.BaseURL, "http://127.0.0.1:18789/v1"},
		{"llm agent", p.LLM.StringOption("agent_id", ""), "main"},
		{"tts", p.TTS.Name, "openai"},
		{"tts model", p.TTS.Model, "tts-1"},
		{"tts voice", p.TTS.Voice, "nova"},
		{"audio", p.Audio.Name, "local"},
		{"local_tts", p.LocalTTS.Name, "local"},
		{"listen_mode", cfg.Session.ListenMode, "push_to_talk"},
		{"openclaw_config", cfg.Credentials.OpenClawConfig, "~/.openclaw/openclaw.json"},
		{"service_name", cfg.Telemetry.ServiceName, "ensotalk"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
	if !cfg.Telemetry.IsEnabled() {
		t.Error("telemetry disabled by default")
	}
}

func TestDefault_MatchesEmptyDocument(t *testing.T) {
	t.Parallel()
	fromReader, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	d := config.Default()
	if diff := config.Diff(d, fromReader); !diff.Empty() {
		t.Errorf("Default() differs from an empty document: %+v", diff)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("session:\n  listen_mood: ptt\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestTelemetry_ExplicitlyDisabled(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("telemetry:\n  enabled: false\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Telemetry.IsEnabled() {
		t.Error("IsEnabled() = true, want false")
	}
}

func TestStringOption(t *testing.T) {
	t.Parallel()
	e := config.ProviderEntry{Options: map[string]any{"agent_id": "home", "rate": 180}}
	if got := e.StringOption("agent_id", "main"); got != "home" {
		t.Errorf("agent_id = %q, want home", got)
	}
	if got := e.StringOption("rate", "x"); got != "x" {
		t.Errorf("non-string option = %q, want default", got)
	}
	if got := (config.ProviderEntry{}).StringOption("missing", "d"); got != "d" {
		t.Errorf("nil options = %q, want default", got)
	}
}

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()

	if _, err := r.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateLLM(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateTTS(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateAudio(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateAudio err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	want := &sttmock.Provider{Text: "hi"}

	var gotEntry config.ProviderEntry
	r.RegisterSTT("mock", func(e config.ProviderEntry) (stt.Provider, error) {
		gotEntry = e
		return want, nil
	})

	p, err := r.CreateSTT(config.ProviderEntry{Name: "mock", APIKey: "k"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p != want {
		t.Errorf("got %v, want the registered provider", p)
	}
	if gotEntry.APIKey != "k" {
		t.Errorf("factory saw entry %+v", gotEntry)
	}
	if names := r.Names("stt"); len(names) != 1 || names[0] != "mock" {
		t.Errorf("Names(stt) = %v", names)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	errBoom := errors.New("model file missing")
	r.RegisterSTT("whisper-native", func(config.ProviderEntry) (stt.Provider, error) {
		return nil, errBoom
	})

	_, err := r.CreateSTT(config.ProviderEntry{Name: "whisper-native"})
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want factory error wrapped", err)
	}
	if !strings.Contains(err.Error(), "stt/whisper-native") {
		t.Errorf("err = %v, want provider named", err)
	}
}
