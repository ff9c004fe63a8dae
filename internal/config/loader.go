package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":   {"openai", "whisper", "whisper-native", "deepgram"},
	"llm":   {"openclaw", "openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":   {"openai", "elevenlabs", "coqui", "local"},
	"audio": {"local"},
}

var listenModes = []string{"push_to_talk", "always_listening", "ptt", "always"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is [Load], except that a missing file yields [Default].
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("config file not found, using defaults", "path", path)
		return Default(), nil
	}
	return cfg, err
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document is the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	s := cfg.Session
	if s.ListenMode != "" && !slices.Contains(listenModes, strings.ToLower(s.ListenMode)) {
		errs = append(errs, fmt.Errorf("session.listen_mode %q is invalid; valid values: push_to_talk, always_listening", s.ListenMode))
	}
	if s.VAD.ThresholdDB > 0 || s.VAD.ThresholdDB < -160 {
		errs = append(errs, fmt.Errorf("session.vad.threshold_db %.1f is out of range [-160, 0]", s.VAD.ThresholdDB))
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"silence_debounce", s.VAD.SilenceDebounce},
		{"min_utterance", s.VAD.MinUtterance},
		{"sample_interval", s.VAD.SampleInterval},
		{"pre_roll", s.VAD.PreRoll},
	} {
		if d.v < 0 {
			errs = append(errs, fmt.Errorf("session.vad.%s %s must not be negative", d.name, d.v))
		}
	}
	for _, th := range []struct {
		name string
		v    float64
	}{
		{"phonetic_threshold", s.Correction.PhoneticThreshold},
		{"fuzzy_threshold", s.Correction.FuzzyThreshold},
	} {
		if th.v < 0 || th.v > 1 {
			errs = append(errs, fmt.Errorf("session.correction.%s %.2f is out of range [0, 1]", th.name, th.v))
		}
	}
	for i, w := range s.Vocabulary {
		if strings.TrimSpace(w) == "" {
			errs = append(errs, fmt.Errorf("session.vocabulary[%d] is blank", i))
		}
	}

	p := cfg.Providers
	for _, e := range []struct {
		kind, field string
		entry       ProviderEntry
	}{
		{"stt", "providers.stt", p.STT},
		{"llm", "providers.llm", p.LLM},
		{"tts", "providers.tts", p.TTS},
		{"audio", "providers.audio", p.Audio},
		{"tts", "providers.local_tts", p.LocalTTS},
	} {
		if e.entry.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", e.field))
			continue
		}
		validateProviderName(e.kind, e.entry.Name)
	}
	errs = append(errs, validateFallbacks("stt", p.STTFallbacks)...)
	errs = append(errs, validateFallbacks("llm", p.LLMFallbacks)...)
	errs = append(errs, validateFallbacks("tts", p.TTSFallbacks)...)

	if p.STT.Name == "whisper-native" && p.STT.StringOption("model_path", "") == "" {
		errs = append(errs, errors.New("providers.stt: whisper-native requires options.model_path"))
	}
	if s.Correction.LLMProvider.Name != "" {
		validateProviderName("llm", s.Correction.LLMProvider.Name)
	}

	if cfg.Journal.MemoryLimit < 0 {
		errs = append(errs, fmt.Errorf("journal.memory_limit %d must not be negative", cfg.Journal.MemoryLimit))
	}
	if dsn := cfg.Journal.PostgresDSN; dsn != "" && !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") && !strings.Contains(dsn, "=") {
		errs = append(errs, errors.New("journal.postgres_dsn is neither a URL nor a key=value DSN"))
	}

	return errors.Join(errs...)
}

func validateFallbacks(kind string, entries []ProviderEntry) []error {
	var errs []error
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		prefix := fmt.Sprintf("providers.%s_fallbacks[%d]", kind, i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		key := e.Name + "/" + e.Model + "/" + e.BaseURL
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("%s is a duplicate of providers.%s_fallbacks[%d]", prefix, kind, prev))
		}
		seen[key] = i
		validateProviderName(kind, e.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
