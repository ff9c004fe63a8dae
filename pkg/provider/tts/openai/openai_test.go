package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/ensotalk/pkg/provider/tts"
	"github.com/MrWong99/ensotalk/pkg/provider/tts/openai"
)

type speechRecorder struct {
	mu   sync.Mutex
	path string
	auth string
	body map[string]any
}

func newSpeechServer(t *testing.T, status int, rec *speechRecorder) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.path = r.URL.Path
		rec.auth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &rec.body)
		rec.mu.Unlock()

		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"bad request"}}`))
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake-mp3"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSynthesize_Defaults(t *testing.T) {
	t.Parallel()
	var rec speechRecorder
	srv := newSpeechServer(t, http.StatusOK, &rec)

	p := openai.New("sk-default", openai.WithBaseURL(srv.URL))
	data, err := p.Synthesize(context.Background(), tts.Request{Text: "Good morning."})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(data) != "ID3fake-mp3" {
		t.Errorf("audio = %q", data)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.path != "/audio/speech" {
		t.Errorf("path = %q, want /audio/speech", rec.path)
	}
	if rec.auth != "Bearer sk-default" {
		t.Errorf("Authorization = %q", rec.auth)
	}
	want := map[string]any{"model": "tts-1", "voice": "nova", "response_format": "mp3", "input": "Good morning."}
	for k, v := range want {
		if rec.body[k] != v {
			t.Errorf("%s = %v, want %v", k, rec.body[k], v)
		}
	}
	if _, ok := rec.body["speed"]; ok {
		t.Error("speed must be omitted when unset")
	}
}

func TestSynthesize_RequestOverrides(t *testing.T) {
	t.Parallel()
	var rec speechRecorder
	srv := newSpeechServer(t, http.StatusOK, &rec)

	p := openai.New("", openai.WithBaseURL(srv.URL), openai.WithModel("tts-1-hd"), openai.WithSpeed(1.25))
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "hi", Voice: "alloy", APIKey: "sk-req"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.auth != "Bearer sk-req" {
		t.Errorf("Authorization = %q", rec.auth)
	}
	if rec.body["voice"] != "alloy" || rec.body["model"] != "tts-1-hd" {
		t.Errorf("body = %v", rec.body)
	}
	if rec.body["speed"] != 1.25 {
		t.Errorf("speed = %v, want 1.25", rec.body["speed"])
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()

	t.Run("missing key", func(t *testing.T) {
		p := openai.New("")
		_, err := p.Synthesize(context.Background(), tts.Request{Text: "hi"})
		if !errors.Is(err, tts.ErrMissingAPIKey) {
			t.Fatalf("err = %v, want ErrMissingAPIKey", err)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		p := openai.New("sk")
		_, err := p.Synthesize(context.Background(), tts.Request{Text: "  "})
		if !errors.Is(err, tts.ErrEmptyText) {
			t.Fatalf("err = %v, want ErrEmptyText", err)
		}
	})

	t.Run("http 400", func(t *testing.T) {
		var rec speechRecorder
		srv := newSpeechServer(t, http.StatusBadRequest, &rec)
		p := openai.New("sk", openai.WithBaseURL(srv.URL))
		if _, err := p.Synthesize(context.Background(), tts.Request{Text: "hi"}); err == nil {
			t.Fatal("expected error for HTTP 400")
		}
	})
}
