package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/ensotalk/pkg/provider/llm"
	llmmock "github.com/MrWong99/ensotalk/pkg/provider/llm/mock"
	"github.com/MrWong99/ensotalk/pkg/provider/stt"
	sttmock "github.com/MrWong99/ensotalk/pkg/provider/stt/mock"
	"github.com/MrWong99/ensotalk/pkg/provider/tts"
	ttsmock "github.com/MrWong99/ensotalk/pkg/provider/tts/mock"
)

func TestSTTFallback_Transcribe(t *testing.T) {
	t.Run("primary", func(t *testing.T) {
		primary := &sttmock.Provider{Text: "turn on the lamp"}
		secondary := &sttmock.Provider{Text: "unused"}
		fb := NewSTTFallback(primary, "openai", testConfig())
		fb.AddFallback("whisper", secondary)

		text, err := fb.Transcribe(context.Background(), stt.Request{Audio: []byte("RIFF")})
		if err != nil {
			t.Fatalf("Transcribe: %v", err)
		}
		if text != "turn on the lamp" {
			t.Errorf("text = %q", text)
		}
		if secondary.CallCount() != 0 {
			t.Errorf("secondary called %d times, want 0", secondary.CallCount())
		}
	})

	t.Run("failover", func(t *testing.T) {
		primary := &sttmock.Provider{Err: errors.New("502 bad gateway")}
		secondary := &sttmock.Provider{Text: "what time is it"}
		fb := NewSTTFallback(primary, "openai", testConfig())
		fb.AddFallback("whisper", secondary)

		req := stt.Request{Audio: []byte("RIFF"), Language: "en"}
		text, err := fb.Transcribe(context.Background(), req)
		if err != nil {
			t.Fatalf("Transcribe: %v", err)
		}
		if text != "what time is it" {
			t.Errorf("text = %q", text)
		}
		if got := secondary.LastCall(); got.Language != "en" {
			t.Errorf("secondary request language = %q, want en", got.Language)
		}
	})

	t.Run("missing key survives wrapping", func(t *testing.T) {
		fb := NewSTTFallback(&sttmock.Provider{Err: stt.ErrMissingAPIKey}, "openai", testConfig())

		_, err := fb.Transcribe(context.Background(), stt.Request{})
		if !errors.Is(err, stt.ErrMissingAPIKey) {
			t.Fatalf("err = %v, want stt.ErrMissingAPIKey in chain", err)
		}
	})

	if s := NewSTTFallback(&sttmock.Provider{}, "openai", FallbackConfig{}).group.cfg.Kind; s != "stt" {
		t.Errorf("default kind = %q, want stt", s)
	}
}

func TestLLMFallback_Complete(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("connection refused")}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "It is noon."}}

	fb := NewLLMFallback(primary, "openclaw", testConfig())
	fb.AddFallback("ollama", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "what time is it"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "It is noon." {
		t.Errorf("Content = %q", resp.Content)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.CallCount(), secondary.CallCount())
	}

	status := fb.Status()
	if len(status) != 2 || status[0].Name != "openclaw" || status[1].Name != "ollama" {
		t.Errorf("Status() = %+v", status)
	}
}

func TestLLMFallback_EmptyReplyPropagates(t *testing.T) {
	fb := NewLLMFallback(&llmmock.Provider{CompleteErr: llm.ErrEmptyReply}, "openclaw", testConfig())

	_, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, llm.ErrEmptyReply) {
		t.Fatalf("err = %v, want llm.ErrEmptyReply in chain", err)
	}
}

func TestTTSFallback_Synthesize(t *testing.T) {
	tests := []struct {
		name      string
		primary   *ttsmock.Provider
		secondary *ttsmock.Provider
		want      string
		wantErr   error
	}{
		{
			name:      "primary",
			primary:   &ttsmock.Provider{Audio: []byte("mp3-primary")},
			secondary: &ttsmock.Provider{Audio: []byte("wav-local")},
			want:      "mp3-primary",
		},
		{
			name:      "error fails over",
			primary:   &ttsmock.Provider{Err: errors.New("quota exceeded")},
			secondary: &ttsmock.Provider{Audio: []byte("wav-local")},
			want:      "wav-local",
		},
		{
			name:      "empty audio fails over",
			primary:   &ttsmock.Provider{},
			secondary: &ttsmock.Provider{Audio: []byte("wav-local")},
			want:      "wav-local",
		},
		{
			name:      "all fail",
			primary:   &ttsmock.Provider{Err: tts.ErrMissingAPIKey},
			secondary: &ttsmock.Provider{},
			wantErr:   ErrAllFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := NewTTSFallback(tt.primary, "openai", testConfig())
			fb.AddFallback("local", tt.secondary)

			audio, err := fb.Synthesize(context.Background(), tts.Request{Text: "Hello", Voice: "nova"})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Synthesize: %v", err)
			}
			if string(audio) != tt.want {
				t.Errorf("audio = %q, want %q", audio, tt.want)
			}
			if tt.primary.LastCall().Text != "Hello" {
				t.Errorf("primary saw %+v, want the request", tt.primary.LastCall())
			}
		})
	}
}
