package openai_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/ensotalk/pkg/provider/stt"
	"github.com/MrWong99/ensotalk/pkg/provider/stt/openai"
)

type captured struct {
	mu       sync.Mutex
	auth     string
	path     string
	filename string
	fields   map[string]string
}

func newServer(t *testing.T, status int, body string, c *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.auth = r.Header.Get("Authorization")
		c.path = r.URL.Path
		c.fields = map[string]string{}
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			for k, v := range r.MultipartForm.Value {
				c.fields[k] = v[0]
			}
			if fh := r.MultipartForm.File["file"]; len(fh) > 0 {
				c.filename = fh[0].Filename
			}
		}
		c.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTranscribe_SendsRequest(t *testing.T) {
	t.Parallel()
	var c captured
	srv := newServer(t, http.StatusOK, `{"text":" hi there "}`, &c)

	p := openai.New("default-key", openai.WithBaseURL(srv.URL), openai.WithLanguage("en"))
	text, err := p.Transcribe(context.Background(), stt.Request{
		Audio:    []byte("RIFF....WAVE"),
		Filename: "ensotalk_abc.wav",
		APIKey:   "request-key",
		Keywords: []string{"Enso"},
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hi there" {
		t.Errorf("text = %q, want %q", text, "hi there")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path != "/audio/transcriptions" {
		t.Errorf("path = %q, want /audio/transcriptions", c.path)
	}
	if c.auth != "Bearer request-key" {
		t.Errorf("Authorization = %q, want request key", c.auth)
	}
	if c.filename != "ensotalk_abc.wav" {
		t.Errorf("filename = %q", c.filename)
	}
	for k, want := range map[string]string{"model": "whisper-1", "language": "en", "prompt": "Enso"} {
		if c.fields[k] != want {
			t.Errorf("field %s = %q, want %q", k, c.fields[k], want)
		}
	}
}

func TestTranscribe_FallsBackToProviderKey(t *testing.T) {
	t.Parallel()
	var c captured
	srv := newServer(t, http.StatusOK, `{"text":"ok"}`, &c)

	p := openai.New("default-key", openai.WithBaseURL(srv.URL), openai.WithModel("gpt-4o-transcribe"))
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("x")}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.auth != "Bearer default-key" {
		t.Errorf("Authorization = %q, want provider key", c.auth)
	}
	if c.fields["model"] != "gpt-4o-transcribe" {
		t.Errorf("model = %q", c.fields["model"])
	}
	if _, ok := c.fields["language"]; ok {
		t.Error("language sent although none configured")
	}
}

func TestTranscribe_MissingKey(t *testing.T) {
	t.Parallel()
	p := openai.New("")
	_, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("x")})
	if !errors.Is(err, stt.ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestTranscribe_APIError(t *testing.T) {
	t.Parallel()
	var c captured
	srv := newServer(t, http.StatusBadRequest, `{"error":{"message":"bad audio","type":"invalid_request_error"}}`, &c)

	p := openai.New("key", openai.WithBaseURL(srv.URL))
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("x")}); err == nil {
		t.Fatal("expected error for HTTP 400")
	}
}
