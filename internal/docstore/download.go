package docstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Download fetches a reference file's bytes, trying each known storage path
// layout in order. Course uploads moved from courses/{id}/{name} to
// courses/{id}/{type}/{name}; older rows still live at the legacy path.
func (s *Store) Download(ctx context.Context, f ReferenceFile) ([]byte, error) {
	paths := storagePaths(f)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no storage path for file %s", f.FileName)
	}

	var lastErr error
	for _, p := range paths {
		data, err := s.downloadObject(ctx, p)
		if err == nil {
			return data, nil
		}
		lastErr = err
		s.cfg.Logger.Debug().Err(err).Str("path", p).Str("file", f.FileName).Msg("storage path miss")
	}
	return nil, fmt.Errorf("download %s: %w", f.FileName, lastErr)
}

func storagePaths(f ReferenceFile) []string {
	name := SanitizeFileName(f.FileName)
	switch f.Origin {
	case OriginCourse:
		fileType := f.FileType
		if fileType == "" {
			fileType = ClassContent
		}
		return []string{
			fmt.Sprintf("courses/%s/%s/%s", f.CourseID, fileType, name),
			fmt.Sprintf("courses/%s/%s", f.CourseID, name),
		}
	default:
		if strings.TrimSpace(f.FilePath) != "" {
			return []string{strings.TrimPrefix(f.FilePath, "/")}
		}
		return []string{fmt.Sprintf("agents/%s/%s", f.AgentKey, name)}
	}
}

func (s *Store) downloadObject(ctx context.Context, path string) ([]byte, error) {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.cfg.BaseURL, s.cfg.StorageBucket, strings.Join(segments, "/"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.ServiceKey)
	req.Header.Set("apikey", s.cfg.ServiceKey)

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("storage status %d for %s", resp.StatusCode, path)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}
	return data, nil
}

// SanitizeFileName keeps storage keys to a safe character set.
func SanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
