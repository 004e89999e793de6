package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripFence removes a surrounding markdown code fence and its "json" tag.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	parts := strings.Split(text, "```")
	if len(parts) < 2 {
		return text
	}
	body := parts[1]
	body = strings.TrimPrefix(body, "json")
	return strings.TrimSpace(body)
}

// ParseLabels decodes the model reply as a JSON array of strings.
func ParseLabels(text string) ([]string, error) {
	body := stripFence(text)
	if !strings.HasPrefix(body, "[") {
		return nil, fmt.Errorf("%w: %q", ErrResponseInvalid, preview(body, 80))
	}
	var labels []string
	if err := json.Unmarshal([]byte(body), &labels); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if labels == nil {
		labels = []string{}
	}
	return labels, nil
}

func preview(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
