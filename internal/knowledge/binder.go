// Package knowledge binds reference files to a provider-side assistant and
// thread so the generator can run file-grounded turns.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"studyhub/internal/docstore"
	"studyhub/internal/metrics"
	"studyhub/internal/openai"
)

// ErrNoUsableFiles means every candidate file failed to produce a working
// provider handle. Callers fall back to the file-less path.
var ErrNoUsableFiles = errors.New("no usable reference files")

// Provider is the slice of the provider client the binder needs.
type Provider interface {
	UploadFile(ctx context.Context, filename string, data []byte) (openai.File, error)
	WaitFileProcessed(ctx context.Context, fileID string, timeout time.Duration) error
	GetFile(ctx context.Context, fileID string) (openai.File, error)
	CreateVectorStore(ctx context.Context, name string, fileIDs []string) (openai.VectorStore, error)
	WaitVectorStoreReady(ctx context.Context, storeID string, timeout time.Duration) error
	ListVectorStoreFiles(ctx context.Context, storeID string) ([]string, error)
	CreateAssistant(ctx context.Context, req openai.AssistantRequest) (openai.Assistant, error)
	GetAssistant(ctx context.Context, assistantID string) (openai.Assistant, error)
	CreateThread(ctx context.Context) (openai.Thread, error)
	GetThread(ctx context.Context, threadID string) (openai.Thread, error)
}

// FileSource downloads reference bytes and persists refreshed provider
// handles.
type FileSource interface {
	Download(ctx context.Context, f docstore.ReferenceFile) ([]byte, error)
	SaveRemoteFileID(ctx context.Context, f docstore.ReferenceFile, remoteID string) error
}

type Config struct {
	Provider        Provider
	Files           FileSource
	AssistantModel  string
	IndexTimeout    time.Duration
	FileWaitTimeout time.Duration
	Logger          zerolog.Logger
}

type Binder struct {
	cfg Config
}

func New(cfg Config) *Binder {
	if cfg.IndexTimeout <= 0 {
		cfg.IndexTimeout = time.Minute
	}
	if cfg.FileWaitTimeout <= 0 {
		cfg.FileWaitTimeout = time.Minute
	}
	return &Binder{cfg: cfg}
}

type Request struct {
	Target       string
	CourseID     string
	CourseName   string
	Instructions string
	Files        []docstore.ReferenceFile

	// Cached handles from the session, may be empty.
	AssistantID string
	ThreadID    string
}

type Binding struct {
	AssistantID string
	ThreadID    string
	NewThread   bool
	FileIDs     []string
	FileNames   []string
}

// Bind ensures every usable file has a provider handle, then reuses or
// rebuilds the assistant and resolves the conversation thread.
func (b *Binder) Bind(ctx context.Context, req Request) (Binding, error) {
	usable, fileIDs := b.ensureRemoteHandles(ctx, req.Files)
	if len(usable) == 0 {
		return Binding{}, ErrNoUsableFiles
	}

	assistantID, err := b.resolveAssistant(ctx, req, fileIDs)
	if err != nil {
		return Binding{}, err
	}

	threadID, fresh, err := b.resolveThread(ctx, req.ThreadID)
	if err != nil {
		return Binding{}, err
	}

	names := make([]string, 0, len(usable))
	for _, f := range usable {
		names = append(names, f.FileName)
	}
	return Binding{
		AssistantID: assistantID,
		ThreadID:    threadID,
		NewThread:   fresh,
		FileIDs:     fileIDs,
		FileNames:   names,
	}, nil
}

// ensureRemoteHandles verifies or refreshes the provider handle of each file
// and drops files that cannot be made usable.
func (b *Binder) ensureRemoteHandles(ctx context.Context, files []docstore.ReferenceFile) ([]docstore.ReferenceFile, []string) {
	usable := make([]docstore.ReferenceFile, 0, len(files))
	ids := make([]string, 0, len(files))

	for _, f := range files {
		id, err := b.ensureOne(ctx, f)
		if err != nil {
			b.cfg.Logger.Warn().Err(err).Str("file", f.FileName).Msg("dropping unusable reference file")
			continue
		}
		f.OpenAIFileID = id
		usable = append(usable, f)
		ids = append(ids, id)
	}
	return usable, ids
}

func (b *Binder) ensureOne(ctx context.Context, f docstore.ReferenceFile) (string, error) {
	if f.OpenAIFileID != "" {
		if _, err := b.cfg.Provider.GetFile(ctx, f.OpenAIFileID); err == nil {
			return f.OpenAIFileID, nil
		}
		b.cfg.Logger.Info().Str("file", f.FileName).Str("remote_id", f.OpenAIFileID).Msg("cached file handle is stale, re-uploading")
	}

	data, err := b.cfg.Files.Download(ctx, f)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	uploaded, err := b.cfg.Provider.UploadFile(ctx, docstore.SanitizeFileName(f.FileName), data)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if err := b.cfg.Provider.WaitFileProcessed(ctx, uploaded.ID, b.cfg.FileWaitTimeout); err != nil {
		return "", fmt.Errorf("wait processed: %w", err)
	}
	metrics.Global().FilesUploaded.Inc()

	if err := b.cfg.Files.SaveRemoteFileID(ctx, f, uploaded.ID); err != nil {
		b.cfg.Logger.Warn().Err(err).Str("file", f.FileName).Msg("could not persist refreshed file handle")
	}
	return uploaded.ID, nil
}

// resolveAssistant reuses the session's cached course assistant when its
// vector store holds exactly the current file set; any difference rebuilds.
// Non-course targets always rebuild.
func (b *Binder) resolveAssistant(ctx context.Context, req Request, fileIDs []string) (string, error) {
	if req.CourseID != "" && req.AssistantID != "" {
		if b.assistantMatchesFiles(ctx, req.AssistantID, fileIDs) {
			metrics.Global().AssistantReuses.Inc()
			return req.AssistantID, nil
		}
	}
	return b.buildAssistant(ctx, req, fileIDs)
}

func (b *Binder) assistantMatchesFiles(ctx context.Context, assistantID string, fileIDs []string) bool {
	a, err := b.cfg.Provider.GetAssistant(ctx, assistantID)
	if err != nil {
		b.cfg.Logger.Info().Err(err).Str("assistant", assistantID).Msg("cached assistant not inspectable, rebuilding")
		return false
	}
	stores := a.VectorStoreIDs()
	if len(stores) == 0 {
		return false
	}
	remote, err := b.cfg.Provider.ListVectorStoreFiles(ctx, stores[0])
	if err != nil {
		b.cfg.Logger.Info().Err(err).Str("assistant", assistantID).Msg("vector store not inspectable, rebuilding")
		return false
	}

	// Reuse only on an exact match. A file added to or removed from the
	// course invalidates the cached assistant.
	if len(remote) != len(fileIDs) {
		return false
	}
	remoteSet := make(map[string]struct{}, len(remote))
	for _, id := range remote {
		remoteSet[id] = struct{}{}
	}
	for _, id := range fileIDs {
		if _, ok := remoteSet[id]; !ok {
			return false
		}
	}
	return true
}

func (b *Binder) buildAssistant(ctx context.Context, req Request, fileIDs []string) (string, error) {
	name := "agent-" + req.Target
	if req.CourseID != "" {
		name = "course-" + req.CourseID
	}

	vs, err := b.cfg.Provider.CreateVectorStore(ctx, name, fileIDs)
	if err != nil {
		return "", fmt.Errorf("create vector store: %w", err)
	}
	if err := b.cfg.Provider.WaitVectorStoreReady(ctx, vs.ID, b.cfg.IndexTimeout); err != nil {
		// Proceed with a partially indexed store rather than failing the turn.
		b.cfg.Logger.Warn().Err(err).Str("vector_store", vs.ID).Msg("proceeding before indexing finished")
	}

	a, err := b.cfg.Provider.CreateAssistant(ctx, openai.AssistantRequest{
		Name:          name,
		Instructions:  req.Instructions,
		Model:         b.cfg.AssistantModel,
		VectorStoreID: vs.ID,
	})
	if err != nil {
		return "", fmt.Errorf("create assistant: %w", err)
	}
	metrics.Global().AssistantRebuilds.Inc()
	return a.ID, nil
}

func (b *Binder) resolveThread(ctx context.Context, threadID string) (id string, fresh bool, err error) {
	if threadID != "" {
		if _, err := b.cfg.Provider.GetThread(ctx, threadID); err == nil {
			return threadID, false, nil
		}
		b.cfg.Logger.Info().Str("thread", threadID).Msg("cached thread unavailable, creating a new one")
	}
	t, err := b.cfg.Provider.CreateThread(ctx)
	if err != nil {
		return "", false, fmt.Errorf("create thread: %w", err)
	}
	return t.ID, true, nil
}
