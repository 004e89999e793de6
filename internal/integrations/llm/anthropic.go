package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Reasoning-style calls leave MaxTokens unset; Anthropic still needs a cap.
const anthropicDefaultMaxTokens = 4096

type AnthropicCompleter struct {
	client anthropic.Client
}

// NewAnthropicCompleter builds the SDK client. Extra opts (base URL, retry
// policy) are applied after the key and HTTP client.
func NewAnthropicCompleter(apiKey string, httpClient *http.Client, opts ...option.RequestOption) *AnthropicCompleter {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClientOrDefault(httpClient)),
	}
	return &AnthropicCompleter{
		client: anthropic.NewClient(append(base, opts...)...),
	}
}

func (c *AnthropicCompleter) Provider() string { return "anthropic" }

func (c *AnthropicCompleter) Complete(ctx context.Context, r Request) (Response, error) {
	maxTokens := int64(r.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(r.User)),
		},
	}
	if r.System != "" {
		// The system prompt is identical for every question in a run.
		params.System = []anthropic.TextBlockParam{
			{Text: r.System, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		}
	}
	if r.Temperature != nil {
		params.Temperature = anthropic.Float(*r.Temperature)
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, fmt.Errorf("%w: Anthropic API error: %v", ErrTransport, err)
	}
	usage := LLMUsage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return Response{Text: block.Text, Usage: usage}, nil
		}
	}
	return Response{Usage: usage}, fmt.Errorf("%w: no text content in Anthropic response", ErrEmptyResponse)
}
