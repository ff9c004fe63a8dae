// Package coqui provides a TTS provider for a self-hosted Coqui server.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is GET /api/tts with query
//     parameters.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server. Synthesis is
//     POST /tts_to_audio/ with a JSON body and requires a speaker.
//
// Both servers render one request at a time, so a multi-sentence reply is split
// on sentence boundaries, the sentences are rendered concurrently and the WAV
// results are joined into one file.
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	wav, err := p.Synthesize(ctx, tts.Request{Text: reply})
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/ensotalk/pkg/audio"
	"github.com/MrWong99/ensotalk/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	xttsEndpoint    = "/tts_to_audio/"
	apiTTSEndpoint  = "/api/tts"

	// sentenceLookahead bounds the concurrent requests per reply.
	sentenceLookahead = 4
)

// APIMode selects which Coqui server API the provider targets.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode selects the server API. Defaults to APIModeStandard.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithSpeaker sets the default speaker (speaker_id in standard mode,
// speaker_wav in XTTS mode).
func WithSpeaker(speaker string) Option {
	return func(p *Provider) {
		p.speaker = speaker
	}
}

// Provider implements tts.Provider backed by a Coqui TTS server.
type Provider struct {
	serverURL  string
	language   string
	speaker    string
	apiMode    APIMode
	httpClient *http.Client
}

// New creates a Provider that targets the server at serverURL
// (e.g., "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if p.apiMode != APIModeStandard && p.apiMode != APIModeXTTS {
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.apiMode)
	}
	return p, nil
}

// xttsRequest is the JSON body sent to POST /tts_to_audio/.
type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize implements tts.Provider. The result is a WAV file. The server
// needs no credential so req.APIKey is ignored.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	sentences := splitSentences(req.Text)
	if len(sentences) == 0 {
		return nil, fmt.Errorf("coqui: %w", tts.ErrEmptyText)
	}
	speaker := req.Voice
	if speaker == "" {
		speaker = p.speaker
	}
	if p.apiMode == APIModeXTTS && speaker == "" {
		return nil, errors.New("coqui: xtts mode requires a speaker")
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	if len(sentences) == 1 {
		return p.synthesize(ctx, sentences[0], speaker, lang)
	}

	results := make([][]byte, len(sentences))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sentenceLookahead)
	for i, s := range sentences {
		g.Go(func() error {
			wav, err := p.synthesize(gctx, s, speaker, lang)
			if err != nil {
				return err
			}
			results[i] = wav
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return joinWAV(results)
}

func (p *Provider) synthesize(ctx context.Context, sentence, speaker, lang string) ([]byte, error) {
	var (
		req *http.Request
		err error
	)
	if p.apiMode == APIModeXTTS {
		req, err = p.xttsRequest(ctx, sentence, speaker, lang)
	} else {
		req, err = p.standardRequest(ctx, sentence, speaker, lang)
	}
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	if audio.DetectContainer(wav) != audio.ContainerWAV {
		return nil, fmt.Errorf("coqui: %w", audio.ErrNotWAV)
	}
	return wav, nil
}

// xttsRequest builds a POST /tts_to_audio/ request (XTTS v2 mode).
func (p *Provider) xttsRequest(ctx context.Context, sentence, speaker, lang string) (*http.Request, error) {
	data, err := json.Marshal(xttsRequest{Text: sentence, SpeakerWav: speaker, Language: lang})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+xttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// standardRequest builds a GET /api/tts request (standard server mode).
func (p *Provider) standardRequest(ctx context.Context, sentence, speaker, lang string) (*http.Request, error) {
	params := url.Values{}
	params.Set("text", sentence)
	if speaker != "" {
		params.Set("speaker_id", speaker)
	}
	if lang != "" {
		params.Set("language_id", lang)
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
}

// joinWAV concatenates the PCM of several WAV files with identical formats.
func joinWAV(parts [][]byte) ([]byte, error) {
	var (
		pcm   []byte
		first audio.Format
	)
	for i, part := range parts {
		data, f, err := audio.DecodeWAV(part)
		if err != nil {
			return nil, fmt.Errorf("coqui: sentence %d: %w", i, err)
		}
		if i == 0 {
			first = f
		} else if f != first {
			return nil, fmt.Errorf("coqui: sentence %d format %+v differs from %+v", i, f, first)
		}
		pcm = append(pcm, data...)
	}
	return audio.EncodeWAV(pcm, first), nil
}

// splitSentences splits s after each '.', '!' or '?' that ends the string or
// is followed by whitespace, so "Dr.Smith" and "3.14" stay intact. Blank
// pieces are dropped.
func splitSentences(s string) []string {
	var out []string
	for {
		s = strings.TrimSpace(s)
		if s == "" {
			return out
		}
		idx := findSentenceBoundary(s)
		if idx < 0 {
			return append(out, s)
		}
		out = append(out, s[:idx+1])
		s = s[idx+1:]
	}
}

func findSentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' || c == '!' || c == '?' {
			if i+1 >= len(s) || unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}
