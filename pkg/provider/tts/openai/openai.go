// Package openai provides a TTS provider backed by the OpenAI speech API.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/ensotalk/pkg/provider/tts"
)

// Defaults used when no model or voice is configured.
const (
	DefaultModel = oai.SpeechModelTTS1
	DefaultVoice = "nova"
)

var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI API. Output is MP3.
type Provider struct {
	client oai.Client
	apiKey string
	model  string
	voice  string
	speed  float64
}

type config struct {
	baseURL string
	model   string
	voice   string
	speed   float64
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the speech model (e.g., "tts-1", "tts-1-hd").
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithVoice sets the default voice. Requests naming a voice override it.
func WithVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// WithSpeed sets the playback speed (0.25 to 4.0). Zero keeps the service default.
func WithSpeed(speed float64) Option {
	return func(c *config) { c.speed = speed }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs an OpenAI speech Provider. apiKey may be empty when every
// request carries its own key.
func New(apiKey string, opts ...Option) *Provider {
	cfg := &config{model: string(DefaultModel), voice: DefaultVoice}
	for _, o := range opts {
		o(cfg)
	}

	var reqOpts []option.RequestOption
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		apiKey: apiKey,
		model:  cfg.model,
		voice:  cfg.voice,
		speed:  cfg.speed,
	}
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("openai: %w", tts.ErrEmptyText)
	}
	key := req.APIKey
	if key == "" {
		key = p.apiKey
	}
	if key == "" {
		return nil, fmt.Errorf("openai: %w", tts.ErrMissingAPIKey)
	}

	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}
	params := oai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if p.speed > 0 {
		params.Speed = oai.Float(p.speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("openai: speech: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read speech: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("openai: speech: empty audio response")
	}
	return data, nil
}
