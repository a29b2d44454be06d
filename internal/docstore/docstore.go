// Package docstore reads reference-file metadata and bytes from the shared
// admin storage. Metadata lives in postgrest tables, bytes in storage
// objects.
package docstore

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	supabase "github.com/supabase-community/supabase-go"
)

// Origin says which table a reference file came from, which also decides the
// storage path layout used for download.
type Origin string

const (
	OriginAgent  Origin = "agent"
	OriginCourse Origin = "course"
)

// Classification of course files. Behavior files shape the assistant's
// instructions-facing materials, content files carry the actual course
// material. Agent files are always content.
const (
	ClassContent  = "content"
	ClassBehavior = "behavior"
)

type ReferenceFile struct {
	ID           string `json:"id"`
	FileName     string `json:"file_name"`
	FilePath     string `json:"file_path"`
	FileSize     int64  `json:"file_size"`
	FileType     string `json:"file_type"`
	OpenAIFileID string `json:"openai_file_id"`
	UploadedBy   string `json:"uploaded_by"`
	UploadedAt   string `json:"uploaded_at"`

	Origin   Origin `json:"-"`
	AgentKey string `json:"-"`
	CourseID string `json:"-"`
}

type Config struct {
	Supabase      *supabase.Client
	BaseURL       string
	ServiceKey    string
	StorageBucket string
	HTTPClient    *http.Client
	Logger        zerolog.Logger
}

type Store struct {
	cfg Config
}

func New(cfg Config) *Store {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Store{cfg: cfg}
}

// ListAgentFiles returns the content files registered for a non-course
// assistant target.
func (s *Store) ListAgentFiles(ctx context.Context, target string) ([]ReferenceFile, error) {
	_ = ctx
	var result []ReferenceFile
	_, err := s.cfg.Supabase.From("assistant_files").
		Select("*", "", false).
		Eq("agent_name", target).
		Eq("file_type", ClassContent).
		ExecuteTo(&result)
	if err != nil {
		return nil, fmt.Errorf("list agent files for %s: %w", target, err)
	}
	for i := range result {
		result[i].Origin = OriginAgent
		result[i].AgentKey = target
	}
	return result, nil
}

// ListCourseFiles returns both behavior and content files for a course.
func (s *Store) ListCourseFiles(ctx context.Context, courseID string) ([]ReferenceFile, error) {
	_ = ctx
	var result []ReferenceFile
	_, err := s.cfg.Supabase.From("course_files").
		Select("*", "", false).
		Eq("course_id", courseID).
		ExecuteTo(&result)
	if err != nil {
		return nil, fmt.Errorf("list course files for %s: %w", courseID, err)
	}
	for i := range result {
		result[i].Origin = OriginCourse
		result[i].CourseID = courseID
	}
	return result, nil
}

// SaveRemoteFileID persists a refreshed provider file handle back to the
// metadata row so the next turn can skip the upload.
func (s *Store) SaveRemoteFileID(ctx context.Context, f ReferenceFile, remoteID string) error {
	_ = ctx
	table := "assistant_files"
	if f.Origin == OriginCourse {
		table = "course_files"
	}
	payload := map[string]any{"openai_file_id": remoteID}
	var result []ReferenceFile
	_, err := s.cfg.Supabase.From(table).Update(payload, "representation", "").Eq("id", f.ID).Limit(1, "").ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("save remote file id for %s: %w", f.FileName, err)
	}
	return nil
}
