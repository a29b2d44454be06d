// Package openai is a hand-rolled HTTP client for the provider's chat
// completions and assistants v2 APIs. Transient failures (5xx, 429, transport
// errors) are retried with bounded exponential backoff.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const betaHeader = "assistants=v2"

type Config struct {
	BaseURL          string
	APIKey           string
	HTTPClient       *http.Client
	MaxRetries       int
	BackoffBase      time.Duration
	PollInterval     time.Duration
	MaxResponseBytes int64
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 400 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = 4 << 20
	}
	return &Client{cfg: cfg}
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider status %d", e.StatusCode)
	}
	return fmt.Sprintf("provider status %d: %s", e.StatusCode, e.Message)
}

func (c *Client) doJSON(ctx context.Context, method, path string, beta bool, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request payload: %w", err)
		}
		body = b
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		retry, err := c.callOnce(ctx, method, path, beta, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == c.cfg.MaxRetries {
			break
		}
		backoff := c.cfg.BackoffBase * (1 << attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

func (c *Client) callOnce(ctx context.Context, method, path string, beta bool, body []byte, out any) (retry bool, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setCommonHeaders(req, beta)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseBytes))
	if err != nil {
		return false, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return true, &APIError{StatusCode: resp.StatusCode, Message: parseAPIErrorMessage(respBody)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, &APIError{StatusCode: resp.StatusCode, Message: parseAPIErrorMessage(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
	}
	return false, nil
}

func (c *Client) setCommonHeaders(req *http.Request, beta bool) {
	if strings.TrimSpace(c.cfg.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if beta {
		req.Header.Set("OpenAI-Beta", betaHeader)
	}
}

func parseAPIErrorMessage(body []byte) string {
	var resp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return strings.TrimSpace(resp.Error.Message)
}
