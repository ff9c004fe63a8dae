package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// whisperSkill is the OpenClaw skill entry holding the OpenAI key.
const whisperSkill = "openai-whisper-api"

// ErrOpenClawConfig is returned by [ReadOpenClaw] when the gateway
// configuration cannot be read or parsed.
var ErrOpenClawConfig = errors.New("config: could not load OpenClaw config")

// Secrets are the credentials found in the OpenClaw gateway configuration.
type Secrets struct {
	// GatewayToken authenticates chat requests to the gateway.
	GatewayToken string

	// OpenAIKey is the key of the Whisper skill. It is also used for speech
	// synthesis.
	OpenAIKey string
}

type openClawFile struct {
	Gateway struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	} `json:"gateway"`
	Skills struct {
		Entries map[string]struct {
			APIKey string `json:"apiKey"`
		} `json:"entries"`
	} `json:"skills"`
}

// ReadOpenClaw reads gateway secrets from the JSON file at path. Fields that
// are absent stay empty; only an unreadable or malformed file is an error.
func ReadOpenClaw(path string) (Secrets, error) {
	path, err := ExpandHome(path)
	if err != nil {
		return Secrets{}, fmt.Errorf("%w: %w", ErrOpenClawConfig, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Secrets{}, fmt.Errorf("%w: %w", ErrOpenClawConfig, err)
	}
	var f openClawFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Secrets{}, fmt.Errorf("%w: %s: %w", ErrOpenClawConfig, path, err)
	}
	return Secrets{
		GatewayToken: f.Gateway.Auth.Token,
		OpenAIKey:    f.Skills.Entries[whisperSkill].APIKey,
	}, nil
}

// Credentials are the per-stage secrets after resolution.
type Credentials struct {
	Transcription string
	Chat          string
	Synthesis     string
}

// ResolveCredentials combines the OpenClaw secrets with explicit api_key
// entries, which take precedence. See [EntryKey] for which secret each
// provider receives.
//
// The secrets are returned as well so fallback entries can resolve their own
// keys with [EntryKey].
//
// An unreadable OpenClaw file is reported alongside whatever could still be
// resolved. The caller decides whether that is fatal; missing credentials
// surface per stage at runtime.
func ResolveCredentials(cfg *Config) (Credentials, Secrets, error) {
	secrets, err := ReadOpenClaw(cfg.Credentials.OpenClawConfig)
	p := cfg.Providers
	return Credentials{
		Transcription: EntryKey("stt", p.STT, secrets),
		Chat:          EntryKey("llm", p.LLM, secrets),
		Synthesis:     EntryKey("tts", p.TTS, secrets),
	}, secrets, err
}

// EntryKey returns the credential for a provider entry: its explicit api_key,
// else the gateway token for the OpenClaw chat provider, else the Whisper
// skill key for OpenAI providers.
func EntryKey(kind string, e ProviderEntry, s Secrets) string {
	if e.APIKey != "" {
		return e.APIKey
	}
	switch {
	case kind == "llm" && e.Name == "openclaw":
		return s.GatewayToken
	case e.Name == "openai" && kind != "audio":
		return s.OpenAIKey
	}
	return ""
}

// Keyless reports whether the named provider works without a credential.
// Self-hosted and local backends need none.
func Keyless(kind, name string) bool {
	switch kind {
	case "stt":
		return name == "whisper" || name == "whisper-native"
	case "llm":
		return name == "ollama" || name == "llamacpp" || name == "llamafile"
	case "tts":
		return name == "coqui" || name == "local"
	}
	return false
}

// ExpandHome replaces a leading "~/" in path with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
