package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

type GeminiCompleter struct {
	client *genai.Client
}

// GeminiOption adjusts the client configuration before it is built.
type GeminiOption func(*genai.ClientConfig)

// WithGeminiBaseURL points the client at another endpoint.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(cfg *genai.ClientConfig) {
		cfg.HTTPOptions.BaseURL = url
	}
}

func NewGeminiCompleter(ctx context.Context, apiKey string, httpClient *http.Client, opts ...GeminiOption) (*GeminiCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClientOrDefault(httpClient),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiCompleter{client: client}, nil
}

func (c *GeminiCompleter) Provider() string { return "gemini" }

func (c *GeminiCompleter) Complete(ctx context.Context, r Request) (Response, error) {
	genCfg := &genai.GenerateContentConfig{}
	if r.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(r.System, genai.RoleUser)
	}
	if r.Temperature != nil {
		genCfg.Temperature = genai.Ptr(float32(*r.Temperature))
	}
	if r.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(r.MaxTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, r.Model, genai.Text(r.User), genCfg)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, fmt.Errorf("%w: Gemini API error: %v", ErrTransport, err)
	}

	usage := LLMUsage{}
	if resp.UsageMetadata != nil {
		usage.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
		usage.CacheReadInputTokens = int64(resp.UsageMetadata.CachedContentTokenCount)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return Response{Usage: usage}, fmt.Errorf("%w: no text in Gemini response", ErrEmptyResponse)
	}
	return Response{Text: text, Usage: usage}, nil
}
