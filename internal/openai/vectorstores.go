package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type VectorStore struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	FileCounts struct {
		InProgress int `json:"in_progress"`
		Completed  int `json:"completed"`
		Failed     int `json:"failed"`
		Total      int `json:"total"`
	} `json:"file_counts"`
}

func (c *Client) CreateVectorStore(ctx context.Context, name string, fileIDs []string) (VectorStore, error) {
	payload := map[string]any{
		"name":     name,
		"file_ids": fileIDs,
	}
	var vs VectorStore
	if err := c.doJSON(ctx, http.MethodPost, "/vector_stores", true, payload, &vs); err != nil {
		return VectorStore{}, fmt.Errorf("create vector store: %w", err)
	}
	return vs, nil
}

func (c *Client) GetVectorStore(ctx context.Context, storeID string) (VectorStore, error) {
	var vs VectorStore
	if err := c.doJSON(ctx, http.MethodGet, "/vector_stores/"+storeID, true, nil, &vs); err != nil {
		return VectorStore{}, fmt.Errorf("get vector store %s: %w", storeID, err)
	}
	return vs, nil
}

// ListVectorStoreFiles returns the ids of all files attached to the store.
func (c *Client) ListVectorStoreFiles(ctx context.Context, storeID string) ([]string, error) {
	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/vector_stores/"+storeID+"/files?limit=100", true, nil, &resp); err != nil {
		return nil, fmt.Errorf("list vector store files: %w", err)
	}
	ids := make([]string, 0, len(resp.Data))
	for _, f := range resp.Data {
		ids = append(ids, f.ID)
	}
	return ids, nil
}

// WaitVectorStoreReady polls until indexing finishes or the deadline passes.
// A deadline miss is an error so the caller can decide whether to proceed
// with a partially indexed store.
func (c *Client) WaitVectorStoreReady(ctx context.Context, storeID string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		vs, err := c.GetVectorStore(ctx, storeID)
		if err != nil {
			return err
		}
		if vs.Status == "completed" || (vs.Status != "in_progress" && vs.FileCounts.InProgress == 0) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("vector store %s still indexing after %s", storeID, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
}
