package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Completion struct {
	Text        string
	TotalTokens int
}

// CreateChatCompletion runs one stateless completion and returns the first
// choice's text along with the token count the provider reported.
func (c *Client) CreateChatCompletion(ctx context.Context, model string, messages []ChatMessage) (Completion, error) {
	payload := map[string]any{
		"model":    model,
		"messages": messages,
	}
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/chat/completions", false, payload, &resp); err != nil {
		return Completion{}, fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("empty choices in chat completion response")
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return Completion{}, fmt.Errorf("missing message content in chat completion response")
	}
	return Completion{Text: text, TotalTokens: resp.Usage.TotalTokens}, nil
}
