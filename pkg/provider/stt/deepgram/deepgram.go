// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
//
// Each Transcribe call opens a live session, streams the utterance in
// chunks, asks Deepgram to flush with a CloseStream message and joins the
// final results it receives before the server closes the connection.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/ensotalk/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// chunkSize is the number of audio bytes per binary WebSocket message.
	chunkSize = 8192
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a new Deepgram Provider. apiKey may be empty when every request
// carries its own key.
func New(apiKey string, opts ...Option) (*Provider, error) {
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	if p.model == "" {
		return nil, errors.New("deepgram: model must not be empty")
	}
	return p, nil
}

// Transcribe streams req.Audio to Deepgram and returns the joined final
// transcripts. The container is detected by Deepgram, so WAV input needs no
// encoding parameters.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	key := req.APIKey
	if key == "" {
		key = p.apiKey
	}
	if key == "" {
		return "", fmt.Errorf("deepgram: %w", stt.ErrMissingAPIKey)
	}
	if len(req.Audio) == 0 {
		return "", errors.New("deepgram: empty audio")
	}

	wsURL, err := p.buildURL(req)
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+key)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return "", fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	// Deepgram only answers after the audio is in, so writing everything
	// before reading cannot deadlock for utterance-sized inputs.
	for off := 0; off < len(req.Audio); off += chunkSize {
		end := min(off+chunkSize, len(req.Audio))
		if err := conn.Write(ctx, websocket.MessageBinary, req.Audio[off:end]); err != nil {
			return "", fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return "", fmt.Errorf("deepgram: send close: %w", err)
	}

	var parts []string
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return "", fmt.Errorf("deepgram: read: %w", err)
		}
		if isMetadata(msg) {
			break
		}
		text, final, ok := parseDeepgramResponse(msg)
		if ok && final && text != "" {
			parts = append(parts, text)
		}
	}
	conn.Close(websocket.StatusNormalClosure, "done")
	return strings.Join(parts, " "), nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the request.
func (p *Provider) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")

	// nova-3 replaced keyword boosting with key terms.
	param := "keywords"
	if strings.HasPrefix(p.model, "nova-3") {
		param = "keyterm"
	}
	for _, kw := range req.Keywords {
		q.Add(param, kw)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message. ok is false
// if the message should be ignored.
func parseDeepgramResponse(data []byte) (text string, final, ok bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", false, false
	}
	if resp.Type != "Results" {
		return "", false, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return "", false, false
	}
	return strings.TrimSpace(resp.Channel.Alternatives[0].Transcript), resp.IsFinal, true
}

// isMetadata reports whether msg is the Metadata event Deepgram sends after
// the stream has been flushed.
func isMetadata(msg []byte) bool {
	var head struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(msg, &head) == nil && head.Type == "Metadata"
}
