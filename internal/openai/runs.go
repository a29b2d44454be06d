package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrRunTimeout means the run did not reach a terminal status before the
// deadline. The run itself may still finish on the provider side.
var ErrRunTimeout = errors.New("assistant run timed out")

type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunCancelling     RunStatus = "cancelling"
	RunRequiresAction RunStatus = "requires_action"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
	RunExpired        RunStatus = "expired"
	RunIncomplete     RunStatus = "incomplete"
)

// Terminal reports whether polling should stop. Statuses this package does
// not know about count as terminal so a provider-side addition cannot spin
// the poll loop forever.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunQueued, RunInProgress, RunCancelling:
		return false
	default:
		return true
	}
}

func (s RunStatus) Succeeded() bool {
	return s == RunCompleted
}

// Known reports whether the status is one this package models. Callers log
// unknown statuses before treating them as failures.
func (s RunStatus) Known() bool {
	switch s {
	case RunQueued, RunInProgress, RunCancelling, RunRequiresAction,
		RunCompleted, RunFailed, RunCancelled, RunExpired, RunIncomplete:
		return true
	default:
		return false
	}
}

type Run struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Status    RunStatus `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type RunStep struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	StepDetails struct {
		Type            string `json:"type"`
		MessageCreation struct {
			MessageID string `json:"message_id"`
		} `json:"message_creation"`
	} `json:"step_details"`
}

func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (Run, error) {
	payload := map[string]string{"assistant_id": assistantID}
	var r Run
	if err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/runs", true, payload, &r); err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}
	return r, nil
}

func (c *Client) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	var r Run
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, true, nil, &r); err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return r, nil
}

func (c *Client) ListRunSteps(ctx context.Context, threadID, runID string) ([]RunStep, error) {
	var resp struct {
		Data []RunStep `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID+"/steps", true, nil, &resp); err != nil {
		return nil, fmt.Errorf("list run steps: %w", err)
	}
	return resp.Data, nil
}

// WaitRun polls the run until it reaches a terminal status or the deadline
// passes. A deadline miss returns ErrRunTimeout; the caller treats it as
// fatal for the turn.
func (c *Client) WaitRun(ctx context.Context, threadID, runID string, timeout time.Duration) (Run, error) {
	deadline := time.Now().Add(timeout)
	for {
		r, err := c.GetRun(ctx, threadID, runID)
		if err != nil {
			return Run{}, err
		}
		if r.Status.Terminal() {
			return r, nil
		}
		if time.Now().After(deadline) {
			return r, fmt.Errorf("run %s after %s: %w", runID, timeout, ErrRunTimeout)
		}
		select {
		case <-ctx.Done():
			return Run{}, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// RunFailureDetail renders a human-readable reason for a non-completed
// terminal run.
func RunFailureDetail(r Run) string {
	if r.LastError != nil && r.LastError.Message != "" {
		return fmt.Sprintf("run %s with status %s: %s", r.ID, r.Status, r.LastError.Message)
	}
	return fmt.Sprintf("run %s ended with status %s", r.ID, r.Status)
}
