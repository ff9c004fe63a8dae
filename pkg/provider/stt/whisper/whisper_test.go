package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/ensotalk/pkg/audio"
	"github.com/MrWong99/ensotalk/pkg/provider/stt"
	"github.com/MrWong99/ensotalk/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// inferenceRequest captures the multipart fields the mock server received.
type inferenceRequest struct {
	filename string
	audio    []byte
	fields   map[string]string
}

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText. Every received request is stored in *got.
func newMockServer(t *testing.T, responseText string, got *atomic.Pointer[inferenceRequest]) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		req := &inferenceRequest{filename: hdr.Filename, audio: data, fields: map[string]string{}}
		for k, v := range r.MultipartForm.Value {
			req.fields[k] = v[0]
		}
		if got != nil {
			got.Store(req)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testWAV() []byte {
	return audio.EncodeWAV(make([]byte, 3200), audio.Format{SampleRate: 16000, Channels: 1})
}

// ---- tests ------------------------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestTranscribe_UploadsMultipart(t *testing.T) {
	var got atomic.Pointer[inferenceRequest]
	srv := newMockServer(t, "  hello world \n", &got)

	p, err := whisper.New(srv.URL+"/", whisper.WithModel("base.en"), whisper.WithLanguage("de"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	wav := testWAV()
	text, err := p.Transcribe(context.Background(), stt.Request{
		Audio:    wav,
		Filename: "ensotalk_x.wav",
		Keywords: []string{"Enso", "OpenClaw"},
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello world" {
		t.Errorf("text = %q, want %q", text, "hello world")
	}

	req := got.Load()
	if req == nil {
		t.Fatal("server received no request")
	}
	if req.filename != "ensotalk_x.wav" {
		t.Errorf("filename = %q, want ensotalk_x.wav", req.filename)
	}
	if len(req.audio) != len(wav) {
		t.Errorf("uploaded %d bytes, want %d", len(req.audio), len(wav))
	}
	want := map[string]string{
		"language":        "de",
		"model":           "base.en",
		"prompt":          "Enso, OpenClaw",
		"response_format": "json",
	}
	for k, v := range want {
		if req.fields[k] != v {
			t.Errorf("field %s = %q, want %q", k, req.fields[k], v)
		}
	}
}

func TestTranscribe_RequestLanguageOverridesDefault(t *testing.T) {
	var got atomic.Pointer[inferenceRequest]
	srv := newMockServer(t, "bonjour", &got)
	p, _ := whisper.New(srv.URL)

	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: testWAV(), Language: "fr"}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	req := got.Load()
	if req.fields["language"] != "fr" {
		t.Errorf("language = %q, want fr", req.fields["language"])
	}
	if req.filename != "audio.wav" {
		t.Errorf("filename = %q, want default audio.wav", req.filename)
	}
	if _, ok := req.fields["model"]; ok {
		t.Error("model field sent although none configured")
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: testWAV()}); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, _ := whisper.New("http://127.0.0.1:1")
	if _, err := p.Transcribe(context.Background(), stt.Request{}); err == nil {
		t.Fatal("expected error for empty audio")
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	srv := newMockServer(t, "never", nil)
	p, _ := whisper.New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, stt.Request{Audio: testWAV()}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
