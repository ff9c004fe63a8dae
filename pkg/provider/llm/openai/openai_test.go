package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/ensotalk/pkg/provider/llm"
)

// TestConvertMessage checks role conversion.
func TestConvertMessage(t *testing.T) {
	tests := []struct {
		role    string
		wantErr bool
	}{
		{role: llm.RoleSystem},
		{role: llm.RoleUser},
		{role: llm.RoleAssistant},
		{role: "tool", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			param, err := convertMessage(llm.Message{Role: tt.role, Content: "x"})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error for unknown role")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch tt.role {
			case llm.RoleSystem:
				if param.OfSystem == nil {
					t.Error("expected OfSystem to be set")
				}
			case llm.RoleUser:
				if param.OfUser == nil {
					t.Error("expected OfUser to be set")
				}
			case llm.RoleAssistant:
				if param.OfAssistant == nil {
					t.Error("expected OfAssistant to be set")
				}
			}
		})
	}
}

func TestBuildParams(t *testing.T) {
	p, err := New("key", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Be brief.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature:  0.3,
		MaxTokens:    128,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 || params.Messages[0].OfSystem == nil {
		t.Fatalf("expected system prompt first, got %d messages", len(params.Messages))
	}
	if params.Temperature.Value != 0.3 {
		t.Errorf("temperature = %v", params.Temperature.Value)
	}
	if params.MaxCompletionTokens.Value != 128 {
		t.Errorf("max tokens = %v", params.MaxCompletionTokens.Value)
	}

	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Error("expected error for empty messages")
	}
}

func TestNew_MissingModel(t *testing.T) {
	if _, err := New("key", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

// gatewayRecorder records the last chat request received by the fake gateway.
type gatewayRecorder struct {
	mu     sync.Mutex
	path   string
	auth   string
	agent  string
	body   map[string]any
	status int
	reply  string
}

func (g *gatewayRecorder) handler(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.path = r.URL.Path
	g.auth = r.Header.Get("Authorization")
	g.agent = r.Header.Get(OpenClawAgentHeader)
	data, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(data, &g.body)

	w.Header().Set("Content-Type", "application/json")
	if g.status != 0 {
		w.WriteHeader(g.status)
		_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
		return
	}
	_, _ = w.Write([]byte(g.reply))
}

func newGateway(t *testing.T, g *gatewayRecorder) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(g.handler))
	t.Cleanup(srv.Close)
	return srv.URL + "/v1"
}

const okReply = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1,
	"model": "openclaw",
	"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Hello from the gateway"}}],
	"usage": {"prompt_tokens": 5, "completion_tokens": 4, "total_tokens": 9}
}`

func TestOpenClaw_Complete(t *testing.T) {
	g := &gatewayRecorder{reply: okReply}
	base := newGateway(t, g)

	p, err := NewOpenClaw("", "", WithBaseURL(base))
	if err != nil {
		t.Fatalf("NewOpenClaw: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
		APIKey:   "gw-token",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Hello from the gateway" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 9 {
		t.Errorf("TotalTokens = %d, want 9", resp.Usage.TotalTokens)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.path != "/v1/chat/completions" {
		t.Errorf("path = %q", g.path)
	}
	if g.auth != "Bearer gw-token" {
		t.Errorf("Authorization = %q", g.auth)
	}
	if g.agent != OpenClawAgentID {
		t.Errorf("%s = %q, want %q", OpenClawAgentHeader, g.agent, OpenClawAgentID)
	}
	if g.body["model"] != OpenClawModel {
		t.Errorf("model = %v, want %q", g.body["model"], OpenClawModel)
	}
	if _, ok := g.body["stream"]; ok {
		t.Error("request must not be streaming")
	}
}

func TestOpenClaw_MissingToken(t *testing.T) {
	p, _ := NewOpenClaw("", "")
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
	})
	if !errors.Is(err, llm.ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
	if !strings.Contains(err.Error(), "OpenClaw token not configured") {
		t.Errorf("err = %q, want mention of OpenClaw token", err)
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	g := &gatewayRecorder{reply: `{"id":"x","object":"chat.completion","created":1,"model":"openclaw","choices":[]}`}
	p, _ := NewOpenClaw("tok", "", WithBaseURL(newGateway(t, g)))

	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
	})
	if !errors.Is(err, llm.ErrEmptyReply) {
		t.Fatalf("err = %v, want ErrEmptyReply", err)
	}
	if !strings.Contains(err.Error(), "no reply from OpenClaw") {
		t.Errorf("err = %q", err)
	}
}

func TestComplete_HTTPError(t *testing.T) {
	g := &gatewayRecorder{status: http.StatusUnauthorized}
	p, _ := New("bad", "gpt-4o", WithBaseURL(newGateway(t, g)))

	if _, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
	}); err == nil {
		t.Fatal("expected error for HTTP 401")
	}
}
