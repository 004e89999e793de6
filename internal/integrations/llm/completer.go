package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"categorizer/internal/config"
	"categorizer/internal/domain"
	"categorizer/internal/httpx"
)

var (
	// ErrResponseInvalid means the model answered but the text is not a JSON
	// array of strings.
	ErrResponseInvalid = errors.New("llm response is not a JSON string array")
	// ErrTransport covers network failures and non-2xx API responses.
	ErrTransport = errors.New("llm transport error")
	// ErrEmptyResponse means the API returned no text.
	ErrEmptyResponse = errors.New("llm returned no content")
)

type LLMUsage = domain.LLMUsage

// Request is one chat completion. System may be empty. A nil Temperature
// leaves the provider default, which reasoning models require.
type Request struct {
	Model       string
	System      string
	User        string
	Temperature *float64
	MaxTokens   int
}

type Response struct {
	Text  string
	Usage LLMUsage
}

// Completer sends a single prompt to a hosted model.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Provider() string
}

// NewCompleter builds the client for cfg.LLMProvider.
func NewCompleter(ctx context.Context, cfg config.Config) (Completer, error) {
	client := httpx.ExternalHTTPClient()
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		return NewOpenAICompleter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, client), nil
	case config.ProviderAnthropic:
		return NewAnthropicCompleter(cfg.AnthropicAPIKey, client), nil
	case config.ProviderGemini:
		return NewGeminiCompleter(ctx, cfg.GeminiAPIKey, client)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

func Float(v float64) *float64 {
	return &v
}

func httpClientOrDefault(c *http.Client) *http.Client {
	if c == nil {
		return httpx.ExternalHTTPClient()
	}
	return c
}
