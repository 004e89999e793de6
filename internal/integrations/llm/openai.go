package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// OpenAICompleter talks to the chat completions endpoint over plain HTTP.
type OpenAICompleter struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewOpenAICompleter(apiKey, baseURL string, client *http.Client) *OpenAICompleter {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAICompleter{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClientOrDefault(client),
	}
}

func (c *OpenAICompleter) Provider() string { return "openai" }

func (c *OpenAICompleter) Complete(ctx context.Context, r Request) (Response, error) {
	reqBody := openAIRequest{
		Model:       r.Model,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
	}
	if r.System != "" {
		reqBody.Messages = append(reqBody.Messages, openAIMessage{Role: "system", Content: r.System})
	}
	reqBody.Messages = append(reqBody.Messages, openAIMessage{Role: "user", Content: r.User})

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, fmt.Errorf("%w: OpenAI API error: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		if resp.StatusCode >= 400 {
			return Response{}, fmt.Errorf("%w: OpenAI API status %d", ErrTransport, resp.StatusCode)
		}
		return Response{}, fmt.Errorf("%w: parsing OpenAI response: %v", ErrTransport, err)
	}
	if openAIResp.Error != nil {
		return Response{}, fmt.Errorf("%w: OpenAI API error: %s", ErrTransport, openAIResp.Error.Message)
	}
	if resp.StatusCode >= 400 {
		return Response{}, fmt.Errorf("%w: OpenAI API status %d", ErrTransport, resp.StatusCode)
	}
	if len(openAIResp.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: no choices in OpenAI response", ErrEmptyResponse)
	}

	usage := LLMUsage{}
	if openAIResp.Usage != nil {
		usage.InputTokens = openAIResp.Usage.PromptTokens
		usage.OutputTokens = openAIResp.Usage.CompletionTokens
	}
	return Response{Text: openAIResp.Choices[0].Message.Content, Usage: usage}, nil
}
