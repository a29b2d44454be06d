package openai

import (
	"context"
	"fmt"
	"net/http"
)

type Assistant struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Model         string `json:"model"`
	Instructions  string `json:"instructions"`
	ToolResources struct {
		FileSearch struct {
			VectorStoreIDs []string `json:"vector_store_ids"`
		} `json:"file_search"`
	} `json:"tool_resources"`
}

// VectorStoreIDs returns the store ids bound to the assistant's file_search
// tool.
func (a Assistant) VectorStoreIDs() []string {
	return a.ToolResources.FileSearch.VectorStoreIDs
}

type AssistantRequest struct {
	Name          string
	Instructions  string
	Model         string
	VectorStoreID string
}

func (c *Client) CreateAssistant(ctx context.Context, req AssistantRequest) (Assistant, error) {
	payload := map[string]any{
		"name":         req.Name,
		"instructions": req.Instructions,
		"model":        req.Model,
	}
	if req.VectorStoreID != "" {
		payload["tools"] = []map[string]string{{"type": "file_search"}}
		payload["tool_resources"] = map[string]any{
			"file_search": map[string]any{
				"vector_store_ids": []string{req.VectorStoreID},
			},
		}
	}
	var a Assistant
	if err := c.doJSON(ctx, http.MethodPost, "/assistants", true, payload, &a); err != nil {
		return Assistant{}, fmt.Errorf("create assistant: %w", err)
	}
	return a, nil
}

func (c *Client) GetAssistant(ctx context.Context, assistantID string) (Assistant, error) {
	var a Assistant
	if err := c.doJSON(ctx, http.MethodGet, "/assistants/"+assistantID, true, nil, &a); err != nil {
		return Assistant{}, fmt.Errorf("get assistant %s: %w", assistantID, err)
	}
	return a, nil
}
