// Package identity validates end-user bearer tokens against the identity
// provider's auth REST API.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnauthorized wraps every token rejection. The wrapped message tells the
// caller whether the token expired, is malformed, or failed for another
// reason.
var ErrUnauthorized = errors.New("unauthorized")

type User struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	EmailVerified bool           `json:"email_verified"`
	Metadata      map[string]any `json:"metadata"`
}

type Config struct {
	BaseURL     string
	AnonKey     string
	HTTPClient  *http.Client
	MaxAttempts int
	BackoffBase time.Duration
	Logger      zerolog.Logger
}

type Verifier struct {
	cfg Config
}

func New(cfg Config) *Verifier {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	return &Verifier{cfg: cfg}
}

// VerifyToken resolves a bearer token to its user. Transport failures are
// retried with linearly growing backoff; a rejected token fails immediately.
func (v *Verifier) VerifyToken(ctx context.Context, token string) (User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}

	var lastErr error
	for attempt := 1; attempt <= v.cfg.MaxAttempts; attempt++ {
		user, retry, err := v.callOnce(ctx, token)
		if err == nil {
			return user, nil
		}
		lastErr = err
		if !retry || attempt == v.cfg.MaxAttempts {
			break
		}
		v.cfg.Logger.Warn().Err(err).Int("attempt", attempt).Msg("token verification transport failure, retrying")
		backoff := v.cfg.BackoffBase * time.Duration(attempt)
		select {
		case <-ctx.Done():
			return User{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return User{}, lastErr
}

func (v *Verifier) callOnce(ctx context.Context, token string) (user User, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.BaseURL+"/auth/v1/user", nil)
	if err != nil {
		return User{}, false, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("apikey", v.cfg.AnonKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.cfg.HTTPClient.Do(req)
	if err != nil {
		return User{}, true, fmt.Errorf("verify token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return User{}, false, fmt.Errorf("read verify response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return User{}, false, classifyRejection(body)
	default:
		return User{}, false, fmt.Errorf("identity provider status %d", resp.StatusCode)
	}

	var raw struct {
		ID               string         `json:"id"`
		Email            string         `json:"email"`
		EmailConfirmedAt string         `json:"email_confirmed_at"`
		UserMetadata     map[string]any `json:"user_metadata"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return User{}, false, fmt.Errorf("decode user payload: %w", err)
	}
	if raw.ID == "" {
		return User{}, false, fmt.Errorf("%w: empty user in provider response", ErrUnauthorized)
	}
	return User{
		ID:            raw.ID,
		Email:         raw.Email,
		EmailVerified: raw.EmailConfirmedAt != "",
		Metadata:      raw.UserMetadata,
	}, false, nil
}

func classifyRejection(body []byte) error {
	var resp struct {
		Msg       string `json:"msg"`
		Message   string `json:"message"`
		ErrorDesc string `json:"error_description"`
	}
	_ = json.Unmarshal(body, &resp)
	detail := strings.ToLower(strings.Join([]string{resp.Msg, resp.Message, resp.ErrorDesc}, " "))

	switch {
	case strings.Contains(detail, "expired"):
		return fmt.Errorf("%w: token has expired", ErrUnauthorized)
	case strings.Contains(detail, "invalid") || strings.Contains(detail, "malformed"):
		return fmt.Errorf("%w: token is invalid", ErrUnauthorized)
	default:
		return fmt.Errorf("%w: token verification failed", ErrUnauthorized)
	}
}
