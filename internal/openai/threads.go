package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type Thread struct {
	ID string `json:"id"`
}

type ThreadMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text struct {
			Value string `json:"value"`
		} `json:"text"`
	} `json:"content"`
}

// Text flattens the message's text content parts.
func (m ThreadMessage) Text() string {
	parts := make([]string, 0, len(m.Content))
	for _, c := range m.Content {
		if c.Type == "text" && c.Text.Value != "" {
			parts = append(parts, c.Text.Value)
		}
	}
	return strings.Join(parts, "\n")
}

func (c *Client) CreateThread(ctx context.Context) (Thread, error) {
	var t Thread
	if err := c.doJSON(ctx, http.MethodPost, "/threads", true, map[string]any{}, &t); err != nil {
		return Thread{}, fmt.Errorf("create thread: %w", err)
	}
	return t, nil
}

func (c *Client) GetThread(ctx context.Context, threadID string) (Thread, error) {
	var t Thread
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID, true, nil, &t); err != nil {
		return Thread{}, fmt.Errorf("get thread %s: %w", threadID, err)
	}
	return t, nil
}

func (c *Client) AddThreadMessage(ctx context.Context, threadID, role, content string) (ThreadMessage, error) {
	payload := map[string]string{
		"role":    role,
		"content": content,
	}
	var m ThreadMessage
	if err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/messages", true, payload, &m); err != nil {
		return ThreadMessage{}, fmt.Errorf("add thread message: %w", err)
	}
	return m, nil
}

// ListThreadMessages returns messages newest first (provider default order).
func (c *Client) ListThreadMessages(ctx context.Context, threadID string) ([]ThreadMessage, error) {
	var resp struct {
		Data []ThreadMessage `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/messages", true, nil, &resp); err != nil {
		return nil, fmt.Errorf("list thread messages: %w", err)
	}
	return resp.Data, nil
}

func (c *Client) GetThreadMessage(ctx context.Context, threadID, messageID string) (ThreadMessage, error) {
	var m ThreadMessage
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/messages/"+messageID, true, nil, &m); err != nil {
		return ThreadMessage{}, fmt.Errorf("get thread message %s: %w", messageID, err)
	}
	return m, nil
}
