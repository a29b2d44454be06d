package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:      srv.URL,
		APIKey:       "test-key",
		MaxRetries:   2,
		BackoffBase:  time.Millisecond,
		PollInterval: time.Millisecond,
	})
}

func TestCreateChatCompletion(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"choices":[{"message":{"content":"hello back"}}],"usage":{"total_tokens":42}}`))
	}))

	got, err := c.CreateChatCompletion(context.Background(), "gpt-4", []ChatMessage{{Role: "user", Content: "hello"}})
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if got.Text != "hello back" || got.TotalTokens != 42 {
		t.Fatalf("completion = %+v", got)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("auth header = %q", gotAuth)
	}
}

func TestRetryOnServerError(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))

	got, err := c.CreateChatCompletion(context.Background(), "gpt-4", []ChatMessage{{Role: "user", Content: "x"}})
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if got.Text != "ok" || calls != 3 {
		t.Fatalf("completion = %+v, calls = %d", got, calls)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad model"}}`))
	}))

	_, err := c.CreateChatCompletion(context.Background(), "nope", []ChatMessage{{Role: "user", Content: "x"}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "bad model" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestWaitRunPollsToCompletion(t *testing.T) {
	statuses := []string{"queued", "in_progress", "completed"}
	polls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("OpenAI-Beta") != "assistants=v2" {
			t.Errorf("missing beta header on %s", r.URL.Path)
		}
		st := statuses[polls]
		if polls < len(statuses)-1 {
			polls++
		}
		w.Write([]byte(`{"id":"run_1","thread_id":"thread_1","status":"` + st + `"}`))
	}))

	r, err := c.WaitRun(context.Background(), "thread_1", "run_1", time.Second)
	if err != nil {
		t.Fatalf("wait run: %v", err)
	}
	if !r.Status.Succeeded() {
		t.Fatalf("status = %s", r.Status)
	}
}

func TestWaitRunTimeout(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"run_1","status":"in_progress"}`))
	}))

	_, err := c.WaitRun(context.Background(), "thread_1", "run_1", 5*time.Millisecond)
	if !errors.Is(err, ErrRunTimeout) {
		t.Fatalf("err = %v, want ErrRunTimeout", err)
	}
}

func TestUnknownRunStatusIsTerminalFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"run_1","status":"some_new_status"}`))
	}))

	r, err := c.WaitRun(context.Background(), "thread_1", "run_1", time.Second)
	if err != nil {
		t.Fatalf("wait run: %v", err)
	}
	if !r.Status.Terminal() {
		t.Fatal("unknown status should be terminal")
	}
	if r.Status.Succeeded() {
		t.Fatal("unknown status should not count as success")
	}
}

func TestUploadFileAndWaitProcessed(t *testing.T) {
	gets := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/files":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			if got := r.FormValue("purpose"); got != "assistants" {
				t.Errorf("purpose = %q", got)
			}
			w.Write([]byte(`{"id":"file_1","filename":"notes.pdf","status":"uploaded"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/files/file_1":
			gets++
			st := "uploaded"
			if gets >= 2 {
				st = "processed"
			}
			w.Write([]byte(`{"id":"file_1","status":"` + st + `"}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))

	f, err := c.UploadFile(context.Background(), "notes.pdf", []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if f.ID != "file_1" {
		t.Fatalf("file id = %q", f.ID)
	}
	if err := c.WaitFileProcessed(context.Background(), f.ID, time.Second); err != nil {
		t.Fatalf("wait processed: %v", err)
	}
}

func TestAssistantVectorStoreIDs(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"asst_1","tool_resources":{"file_search":{"vector_store_ids":["vs_1"]}}}`))
	}))

	a, err := c.GetAssistant(context.Background(), "asst_1")
	if err != nil {
		t.Fatalf("get assistant: %v", err)
	}
	ids := a.VectorStoreIDs()
	if len(ids) != 1 || ids[0] != "vs_1" {
		t.Fatalf("vector store ids = %v", ids)
	}
}

func TestThreadMessageText(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"msg_2","role":"assistant","content":[{"type":"text","text":{"value":"the answer"}}]},{"id":"msg_1","role":"user","content":[{"type":"text","text":{"value":"the question"}}]}]}`))
	}))

	msgs, err := c.ListThreadMessages(context.Background(), "thread_1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].Text() != "the answer" {
		t.Fatalf("text = %q", msgs[0].Text())
	}
}
