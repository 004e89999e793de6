package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"
)

const anthropicReply = `{
  "id": "msg_01",
  "type": "message",
  "role": "assistant",
  "model": "claude-sonnet-4-5-20250929",
  "content": [{"type": "text", "text": "[\"Dice\", \"Coins\"]"}],
  "stop_reason": "end_turn",
  "usage": {"input_tokens": 812, "output_tokens": 9, "cache_creation_input_tokens": 0, "cache_read_input_tokens": 700}
}`

func newAnthropicTestServer(t *testing.T, status int, body string, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "sk-ant-test" {
			t.Errorf("missing api key header")
		}
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropicCompleter(t *testing.T) {
	var got map[string]any
	srv := newAnthropicTestServer(t, http.StatusOK, anthropicReply, &got)

	c := NewAnthropicCompleter("sk-ant-test", srv.Client(), option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	require.Equal(t, "anthropic", c.Provider())

	resp, err := c.Complete(context.Background(), Request{
		Model:       "claude-sonnet-4-5-20250929",
		System:      "Pick from the list.",
		User:        "Question Name: Two Dice",
		Temperature: Float(0.3),
		MaxTokens:   1000,
	})
	require.NoError(t, err)
	require.Equal(t, `["Dice", "Coins"]`, resp.Text)
	require.Equal(t, int64(812), resp.Usage.InputTokens)
	require.Equal(t, int64(9), resp.Usage.OutputTokens)
	require.Equal(t, int64(700), resp.Usage.CacheReadInputTokens)

	require.Equal(t, "claude-sonnet-4-5-20250929", got["model"])
	require.EqualValues(t, 1000, got["max_tokens"])
	require.InDelta(t, 0.3, got["temperature"], 1e-9)

	system, ok := got["system"].([]any)
	require.True(t, ok, "system prompt sent as content blocks: %v", got["system"])
	require.Len(t, system, 1)
	block := system[0].(map[string]any)
	require.Equal(t, "Pick from the list.", block["text"])
	require.Equal(t, map[string]any{"type": "ephemeral"}, block["cache_control"])

	messages := got["messages"].([]any)
	require.Len(t, messages, 1)
	require.Equal(t, "user", messages[0].(map[string]any)["role"])
}

func TestAnthropicCompleterDefaultsAndOmissions(t *testing.T) {
	var got map[string]any
	srv := newAnthropicTestServer(t, http.StatusOK, anthropicReply, &got)

	c := NewAnthropicCompleter("sk-ant-test", srv.Client(), option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	_, err := c.Complete(context.Background(), Request{Model: "claude-sonnet-4-5-20250929", User: "usr"})
	require.NoError(t, err)

	require.EqualValues(t, anthropicDefaultMaxTokens, got["max_tokens"])
	require.NotContains(t, got, "temperature")
	require.NotContains(t, got, "system")
}

func TestAnthropicCompleterErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "api error", status: http.StatusBadRequest, body: `{"type":"error","error":{"type":"invalid_request_error","message":"bad model"}}`, want: ErrTransport},
		{name: "no text block", status: http.StatusOK, body: `{"id":"msg_02","type":"message","role":"assistant","model":"m","content":[],"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":0}}`, want: ErrEmptyResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newAnthropicTestServer(t, tt.status, tt.body, nil)
			c := NewAnthropicCompleter("sk-ant-test", srv.Client(), option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
			_, err := c.Complete(context.Background(), Request{Model: "m", User: "u"})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestGeminiCompleter(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "candidates": [{"content": {"role": "model", "parts": [{"text": "[\"Calculus\"]"}]}, "finishReason": "STOP"}],
  "usageMetadata": {"promptTokenCount": 640, "candidatesTokenCount": 6, "cachedContentTokenCount": 512, "totalTokenCount": 646}
}`))
	}))
	defer srv.Close()

	c, err := NewGeminiCompleter(context.Background(), "gm-test", srv.Client(), WithGeminiBaseURL(srv.URL))
	require.NoError(t, err)
	require.Equal(t, "gemini", c.Provider())

	resp, err := c.Complete(context.Background(), Request{
		Model:       "gemini-2.5-flash",
		System:      "Pick from the list.",
		User:        "Question Name: Derivative",
		Temperature: Float(0.3),
		MaxTokens:   1000,
	})
	require.NoError(t, err)
	require.Equal(t, `["Calculus"]`, resp.Text)
	require.Equal(t, int64(640), resp.Usage.InputTokens)
	require.Equal(t, int64(6), resp.Usage.OutputTokens)
	require.Equal(t, int64(512), resp.Usage.CacheReadInputTokens)

	require.Contains(t, got, "systemInstruction")
	genCfg, ok := got["generationConfig"].(map[string]any)
	require.True(t, ok, "generation config sent: %v", got)
	require.EqualValues(t, 1000, genCfg["maxOutputTokens"])
	require.InDelta(t, 0.3, genCfg["temperature"], 1e-6)
}

func TestGeminiCompleterRequiresKey(t *testing.T) {
	_, err := NewGeminiCompleter(context.Background(), "", nil)
	require.Error(t, err)
}
