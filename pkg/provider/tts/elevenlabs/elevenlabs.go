// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs stream-input WebSocket API. The whole reply is sent as one text
// message and the streamed audio chunks are collected into a single MP3.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/ensotalk/pkg/provider/tts"
)

const (
	defaultEndpoint  = "wss://api.elevenlabs.io/v1/text-to-speech"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "mp3_44100_128"

	// DefaultVoice is the ElevenLabs "Rachel" premade voice.
	DefaultVoice = "21m00Tcm4TlvDq8ikWAM"
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format. It must be a container the
// player understands, so the mp3_* formats are the useful ones.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithVoice sets the default voice ID.
func WithVoice(voiceID string) Option {
	return func(p *Provider) {
		p.voice = voiceID
	}
}

// WithEndpoint overrides the WebSocket base URL. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = strings.TrimSuffix(endpoint, "/")
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	voice        string
	endpoint     string
}

// New creates a new ElevenLabs Provider. apiKey may be empty when every
// request carries its own key.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		voice:        DefaultVoice,
		endpoint:     defaultEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for a text fragment.
// An empty Text flushes the stream.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("elevenlabs: %w", tts.ErrEmptyText)
	}
	key := req.APIKey
	if key == "" {
		key = p.apiKey
	}
	if key == "" {
		return nil, fmt.Errorf("elevenlabs: %w", tts.ErrMissingAPIKey)
	}
	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}

	conn, _, err := websocket.Dial(ctx, p.buildURL(voice), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 22)

	// The opening message authenticates and must carry a single space.
	messages := []textMessage{
		{Text: " ", VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}, XiAPIKey: key},
		{Text: strings.TrimSpace(req.Text) + " "},
		{Text: ""},
	}
	for _, m := range messages {
		payload, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: encode message: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			return nil, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	audio, err := collectAudio(ctx, conn)
	if err != nil {
		return nil, err
	}
	conn.Close(websocket.StatusNormalClosure, "done")
	return audio, nil
}

// collectAudio reads until the final chunk or a normal close.
func collectAudio(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var buf bytes.Buffer
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure && buf.Len() > 0 {
				return buf.Bytes(), nil
			}
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}
		chunk, final, err := parseAudioResponse(msg)
		if err != nil {
			return nil, err
		}
		buf.Write(chunk)
		if final {
			if buf.Len() == 0 {
				return nil, errors.New("elevenlabs: stream finished without audio")
			}
			return buf.Bytes(), nil
		}
	}
}

// parseAudioResponse decodes one server message. Messages that are not JSON
// are skipped.
func parseAudioResponse(msg []byte) (chunk []byte, final bool, err error) {
	var resp audioResponse
	if json.Unmarshal(msg, &resp) != nil {
		return nil, false, nil
	}
	if resp.Error != "" {
		return nil, false, fmt.Errorf("elevenlabs: %s: %s", resp.Error, resp.Message)
	}
	if resp.Audio != "" {
		chunk, err = base64.StdEncoding.DecodeString(resp.Audio)
		if err != nil {
			return nil, false, fmt.Errorf("elevenlabs: decode audio: %w", err)
		}
	}
	return chunk, resp.IsFinal, nil
}

// buildURL constructs the stream-input WebSocket URL for a voice.
func (p *Provider) buildURL(voiceID string) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	return fmt.Sprintf("%s/%s/stream-input?%s", p.endpoint, url.PathEscape(voiceID), q.Encode())
}
