package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/ensotalk/pkg/provider/tts"
)

func TestBuildURL(t *testing.T) {
	p := New("key", WithModel("eleven_turbo_v2"))
	raw := p.buildURL("voice-123")

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Scheme != "wss" || u.Host != "api.elevenlabs.io" {
		t.Errorf("unexpected host %q://%q", u.Scheme, u.Host)
	}
	if u.Path != "/v1/text-to-speech/voice-123/stream-input" {
		t.Errorf("path = %q", u.Path)
	}
	if got := u.Query().Get("model_id"); got != "eleven_turbo_v2" {
		t.Errorf("model_id = %q", got)
	}
	if got := u.Query().Get("output_format"); got != defaultOutputFmt {
		t.Errorf("output_format = %q", got)
	}
}

func TestTextMessage_Shape(t *testing.T) {
	data, err := json.Marshal(textMessage{Text: ""})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"text":""}` {
		t.Errorf("flush message = %s", data)
	}

	data, _ = json.Marshal(textMessage{
		Text:          " ",
		VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
		XiAPIKey:      "k",
	})
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	if m["xi_api_key"] != "k" {
		t.Errorf("xi_api_key = %v", m["xi_api_key"])
	}
	if _, ok := m["voice_settings"]; !ok {
		t.Error("expected voice_settings on the opening message")
	}
}

func TestParseAudioResponse(t *testing.T) {
	tests := []struct {
		name      string
		msg       string
		wantChunk string
		wantFinal bool
		wantErr   bool
	}{
		{name: "audio", msg: `{"audio":"` + base64.StdEncoding.EncodeToString([]byte("abc")) + `"}`, wantChunk: "abc"},
		{name: "final", msg: `{"audio":"","isFinal":true}`, wantFinal: true},
		{name: "not json", msg: `ping`},
		{name: "error", msg: `{"error":"quota_exceeded","message":"out of credits"}`, wantErr: true},
		{name: "bad base64", msg: `{"audio":"!!!"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk, final, err := parseAudioResponse([]byte(tt.msg))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if string(chunk) != tt.wantChunk || final != tt.wantFinal {
				t.Errorf("got (%q, %v), want (%q, %v)", chunk, final, tt.wantChunk, tt.wantFinal)
			}
		})
	}
}

func startServer(t *testing.T, handler func(ctx context.Context, conn *websocket.Conn, r *http.Request)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		handler(ctx, conn, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/text-to-speech"
}

func TestSynthesize_CollectsChunks(t *testing.T) {
	var (
		mu       sync.Mutex
		texts    []string
		firstKey string
		path     string
	)
	endpoint := startServer(t, func(ctx context.Context, conn *websocket.Conn, r *http.Request) {
		mu.Lock()
		path = r.URL.Path
		mu.Unlock()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var m textMessage
			_ = json.Unmarshal(data, &m)
			mu.Lock()
			if len(texts) == 0 {
				firstKey = m.XiAPIKey
			}
			texts = append(texts, m.Text)
			mu.Unlock()
			if m.Text == "" {
				break
			}
		}
		for _, part := range []string{"ID3", "-mp3", "-data"} {
			msg := `{"audio":"` + base64.StdEncoding.EncodeToString([]byte(part)) + `"}`
			_ = conn.Write(ctx, websocket.MessageText, []byte(msg))
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"isFinal":true}`))
	})

	p := New("", WithEndpoint(endpoint))
	data, err := p.Synthesize(context.Background(), tts.Request{Text: "Hello there.", Voice: "v1", APIKey: "req-key"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(data) != "ID3-mp3-data" {
		t.Errorf("audio = %q", data)
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/v1/text-to-speech/v1/stream-input" {
		t.Errorf("path = %q", path)
	}
	if firstKey != "req-key" {
		t.Errorf("xi_api_key = %q, want req-key", firstKey)
	}
	want := []string{" ", "Hello there. ", ""}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Errorf("texts = %q, want %q", texts, want)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	endpoint := startServer(t, func(ctx context.Context, conn *websocket.Conn, _ *http.Request) {
		_, _, _ = conn.Read(ctx)
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"error":"invalid_api_key","message":"bad key"}`))
	})

	p := New("bad", WithEndpoint(endpoint))
	_, err := p.Synthesize(context.Background(), tts.Request{Text: "hi"})
	if err == nil || !strings.Contains(err.Error(), "invalid_api_key") {
		t.Fatalf("err = %v, want invalid_api_key", err)
	}
}

func TestSynthesize_Validation(t *testing.T) {
	if _, err := New("").Synthesize(context.Background(), tts.Request{Text: "hi"}); !errors.Is(err, tts.ErrMissingAPIKey) {
		t.Errorf("err = %v, want ErrMissingAPIKey", err)
	}
	if _, err := New("k").Synthesize(context.Background(), tts.Request{Text: " "}); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("err = %v, want ErrEmptyText", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	p := New("k")
	if p.model != defaultModel || p.outputFormat != defaultOutputFmt || p.voice != DefaultVoice {
		t.Errorf("unexpected defaults: %+v", p)
	}
}
