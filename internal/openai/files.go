package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

type File struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Purpose  string `json:"purpose"`
	Status   string `json:"status"`
	Bytes    int64  `json:"bytes"`
}

// UploadFile uploads data with purpose=assistants so it can be attached to a
// vector store.
func (c *Client) UploadFile(ctx context.Context, filename string, data []byte) (File, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", "assistants"); err != nil {
		return File{}, fmt.Errorf("write purpose field: %w", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return File{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return File{}, fmt.Errorf("write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return File{}, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/files", &buf)
	if err != nil {
		return File{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setCommonHeaders(req, false)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return File{}, fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseBytes))
	if err != nil {
		return File{}, fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return File{}, &APIError{StatusCode: resp.StatusCode, Message: parseAPIErrorMessage(respBody)}
	}

	var f File
	if err := json.Unmarshal(respBody, &f); err != nil {
		return File{}, fmt.Errorf("decode upload response: %w", err)
	}
	return f, nil
}

func (c *Client) GetFile(ctx context.Context, fileID string) (File, error) {
	var f File
	if err := c.doJSON(ctx, http.MethodGet, "/files/"+fileID, false, nil, &f); err != nil {
		return File{}, fmt.Errorf("get file %s: %w", fileID, err)
	}
	return f, nil
}

// WaitFileProcessed polls until the uploaded file leaves the "uploaded"
// state. A file that lands in "error" is reported as a failure.
func (c *Client) WaitFileProcessed(ctx context.Context, fileID string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		f, err := c.GetFile(ctx, fileID)
		if err != nil {
			return err
		}
		switch f.Status {
		case "processed", "":
			return nil
		case "error", "failed":
			return fmt.Errorf("file %s failed processing", fileID)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("file %s not processed before deadline", fileID)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
}
