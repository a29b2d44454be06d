package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studyhub/internal/catalog"
	"studyhub/internal/docstore"
	"studyhub/internal/knowledge"
	"studyhub/internal/metrics"
	"studyhub/internal/storage"
)

var (
	ErrEmptyMessage  = errors.New("message is empty")
	ErrMissingCourse = errors.New("course id is required for course sessions")
	ErrSessionGone   = errors.New("session not found")
)

// Store is the conversation persistence the orchestrator depends on.
type Store interface {
	CreateSession(ctx context.Context, userID, target string, courseID, courseName *string) (storage.ChatSession, error)
	GetSessionForUser(ctx context.Context, id, userID string) (storage.ChatSession, error)
	FindCourseSession(ctx context.Context, userID, courseID string) (storage.ChatSession, error)
	AppendMessage(ctx context.Context, sessionID, role, content, source string) (storage.Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]storage.Message, error)
	SetCourseID(ctx context.Context, sessionID, courseID string) error
	SetCourseName(ctx context.Context, sessionID, courseName string) error
	SetRemoteHandles(ctx context.Context, sessionID, assistantID, threadID string) error
}

type Binder interface {
	Bind(ctx context.Context, req knowledge.Request) (knowledge.Binding, error)
}

type FileCatalog interface {
	ListAgentFiles(ctx context.Context, target string) ([]docstore.ReferenceFile, error)
	ListCourseFiles(ctx context.Context, courseID string) ([]docstore.ReferenceFile, error)
}

type CourseCatalog interface {
	GetCourse(ctx context.Context, id string) (catalog.Course, error)
}

type UsageTracker interface {
	Increment(ctx context.Context, userID string, tokens, pdfs, images int64) error
}

// PromptSource resolves the configured system prompt for a target.
type PromptSource interface {
	For(target string) (string, bool)
}

type ServiceConfig struct {
	Store     Store
	Binder    Binder
	Files     FileCatalog
	Courses   CourseCatalog
	Usage     UsageTracker
	Generator *Generator
	Prompts   PromptSource
	Logger    zerolog.Logger
}

// Service orchestrates one chat turn end to end.
type Service struct {
	cfg ServiceConfig
}

func NewService(cfg ServiceConfig) *Service {
	return &Service{cfg: cfg}
}

type Request struct {
	UserID    string
	Target    string
	Mode      string
	Message   string
	SessionID string
	CourseID  string
}

type Response struct {
	SessionID  string
	Reply      string
	Source     string
	NewSession bool
}

func (s *Service) HandleMessage(ctx context.Context, req Request) (Response, error) {
	target, err := ParseTarget(req.Target)
	if err != nil {
		return Response{}, err
	}
	mode, err := ParseMode(req.Mode)
	if err != nil {
		return Response{}, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return Response{}, ErrEmptyMessage
	}
	metrics.Global().ChatRequests.Inc()

	sess, created, err := s.resolveSession(ctx, req, target)
	if err != nil {
		return Response{}, err
	}
	sess = s.backfillCourseName(ctx, sess)

	// The user's message is durable even if everything after this fails.
	if _, err := s.cfg.Store.AppendMessage(ctx, sess.ID, "user", req.Message, mode.Source()); err != nil {
		metrics.Global().ChatFailures.Inc()
		return Response{}, fmt.Errorf("persist user message: %w", err)
	}

	history, err := s.loadHistory(ctx, sess.ID)
	if err != nil {
		metrics.Global().ChatFailures.Inc()
		return Response{}, err
	}

	files := s.relevantFiles(ctx, target, sess)
	binding, bound := s.bindFiles(ctx, target, sess, files)

	var reply Reply
	if bound {
		reply, err = s.cfg.Generator.GenerateStateful(ctx, binding.AssistantID, binding.ThreadID, binding.NewThread, history, req.Message)
	} else {
		reply, err = s.cfg.Generator.GenerateStateless(ctx, mode, s.systemPrompt(target, sess, fileNames(files)), history, req.Message)
	}
	if err != nil {
		metrics.Global().ChatFailures.Inc()
		return Response{}, err
	}

	if _, err := s.cfg.Store.AppendMessage(ctx, sess.ID, "assistant", reply.Text, mode.Source()); err != nil {
		metrics.Global().ChatFailures.Inc()
		return Response{}, fmt.Errorf("persist assistant message: %w", err)
	}

	if bound {
		if err := s.cfg.Store.SetRemoteHandles(ctx, sess.ID, binding.AssistantID, binding.ThreadID); err != nil {
			s.cfg.Logger.Warn().Err(err).Str("session", sess.ID).Msg("could not cache remote handles")
		}
	}

	s.trackUsage(sess.UserID, reply.Tokens)

	return Response{
		SessionID:  sess.ID,
		Reply:      reply.Text,
		Source:     mode.Source(),
		NewSession: created,
	}, nil
}

func (s *Service) resolveSession(ctx context.Context, req Request, target Target) (sess storage.ChatSession, created bool, err error) {
	if req.SessionID != "" {
		sess, err = s.cfg.Store.GetSessionForUser(ctx, req.SessionID, req.UserID)
		if errors.Is(err, storage.ErrNotFound) {
			return storage.ChatSession{}, false, ErrSessionGone
		}
		if err != nil {
			return storage.ChatSession{}, false, err
		}
		return s.backfillCourseID(ctx, sess, req.CourseID), false, nil
	}

	if target.IsCourse() {
		if req.CourseID == "" {
			return storage.ChatSession{}, false, ErrMissingCourse
		}
		sess, err = s.cfg.Store.FindCourseSession(ctx, req.UserID, req.CourseID)
		if err == nil {
			return sess, false, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return storage.ChatSession{}, false, err
		}
		sess, err = s.cfg.Store.CreateSession(ctx, req.UserID, string(target), &req.CourseID, nil)
		return sess, true, err
	}

	sess, err = s.cfg.Store.CreateSession(ctx, req.UserID, string(target), nil, nil)
	return sess, true, err
}

// backfillCourseID binds a request-supplied course to a session that was
// created without one, so its turns regain course file grounding. The turn
// proceeds regardless of the outcome.
func (s *Service) backfillCourseID(ctx context.Context, sess storage.ChatSession, courseID string) storage.ChatSession {
	if courseID == "" || sess.CourseID != nil {
		return sess
	}
	if err := s.cfg.Store.SetCourseID(ctx, sess.ID, courseID); err != nil {
		s.cfg.Logger.Warn().Err(err).Str("session", sess.ID).Str("course", courseID).Msg("could not bind course to session")
		return sess
	}
	sess.CourseID = &courseID
	return sess
}

// backfillCourseName fills in a missing course name from the catalog. The
// turn proceeds regardless of the outcome.
func (s *Service) backfillCourseName(ctx context.Context, sess storage.ChatSession) storage.ChatSession {
	if sess.CourseID == nil || sess.CourseName != nil {
		return sess
	}
	course, err := s.cfg.Courses.GetCourse(ctx, *sess.CourseID)
	if err != nil {
		s.cfg.Logger.Debug().Err(err).Str("course", *sess.CourseID).Msg("course name lookup failed")
		return sess
	}
	if err := s.cfg.Store.SetCourseName(ctx, sess.ID, course.Name); err != nil {
		s.cfg.Logger.Warn().Err(err).Str("session", sess.ID).Msg("could not persist course name")
	}
	name := course.Name
	sess.CourseName = &name
	return sess
}

// loadHistory projects every prior turn to (role, content), excluding the
// message appended for the current turn.
func (s *Service) loadHistory(ctx context.Context, sessionID string) ([]Turn, error) {
	msgs, err := s.cfg.Store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(msgs) > 0 {
		msgs = msgs[:len(msgs)-1]
	}
	out := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Turn{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// relevantFiles selects course files for course sessions and agent content
// files otherwise. A listing failure degrades to the file-less path.
func (s *Service) relevantFiles(ctx context.Context, target Target, sess storage.ChatSession) []docstore.ReferenceFile {
	var (
		files []docstore.ReferenceFile
		err   error
	)
	if target.IsCourse() && sess.CourseID != nil {
		files, err = s.cfg.Files.ListCourseFiles(ctx, *sess.CourseID)
	} else {
		files, err = s.cfg.Files.ListAgentFiles(ctx, string(target))
	}
	if err != nil {
		s.cfg.Logger.Warn().Err(err).Str("target", string(target)).Msg("reference file listing failed, continuing without files")
		return nil
	}
	return files
}

// bindFiles invokes the binder and degrades to the file-less path on any
// failure.
func (s *Service) bindFiles(ctx context.Context, target Target, sess storage.ChatSession, files []docstore.ReferenceFile) (knowledge.Binding, bool) {
	if len(files) == 0 {
		return knowledge.Binding{}, false
	}

	req := knowledge.Request{
		Target:       string(target),
		Instructions: s.assistantInstructions(target, sess, fileNames(files)),
		Files:        files,
	}
	if sess.CourseID != nil {
		req.CourseID = *sess.CourseID
	}
	if sess.CourseName != nil {
		req.CourseName = *sess.CourseName
	}
	if sess.AssistantRemoteID != nil {
		req.AssistantID = *sess.AssistantRemoteID
	}
	if sess.ThreadRemoteID != nil {
		req.ThreadID = *sess.ThreadRemoteID
	}

	binding, err := s.cfg.Binder.Bind(ctx, req)
	if err != nil {
		if errors.Is(err, knowledge.ErrNoUsableFiles) {
			s.cfg.Logger.Info().Str("target", string(target)).Msg("no usable reference files, answering without them")
		} else {
			s.cfg.Logger.Warn().Err(err).Str("target", string(target)).Msg("knowledge binding failed, answering without files")
		}
		return knowledge.Binding{}, false
	}
	return binding, true
}

func (s *Service) basePrompt(target Target) string {
	if text, ok := s.cfg.Prompts.For(string(target)); ok {
		return text
	}
	return "You are a helpful study assistant."
}

func (s *Service) assistantInstructions(target Target, sess storage.ChatSession, names []string) string {
	prompt := s.basePrompt(target)
	if !target.IsCourse() {
		return prompt
	}
	return prompt + "\n\n" + coursePreamble(sess, names)
}

func (s *Service) systemPrompt(target Target, sess storage.ChatSession, names []string) string {
	prompt := s.basePrompt(target)
	if target.IsCourse() {
		prompt = prompt + "\n\n" + coursePreamble(sess, names)
	}
	return prompt
}

func coursePreamble(sess storage.ChatSession, names []string) string {
	var b strings.Builder
	b.WriteString("You are assisting with the course")
	if sess.CourseName != nil && *sess.CourseName != "" {
		b.WriteString(" \"" + *sess.CourseName + "\"")
	}
	b.WriteString(".")
	if len(names) > 0 {
		b.WriteString(" The course materials are: " + strings.Join(names, ", ") + ".")
	}
	b.WriteString(" Answer only from the course materials. If the materials do not cover the question, say so.")
	return b.String()
}

func fileNames(files []docstore.ReferenceFile) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.FileName)
	}
	return out
}

// trackUsage records token consumption without blocking or failing the turn.
func (s *Service) trackUsage(userID string, tokens int) {
	if s.cfg.Usage == nil || tokens <= 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.cfg.Usage.Increment(ctx, userID, int64(tokens), 0, 0); err != nil {
			s.cfg.Logger.Warn().Err(err).Str("user", userID).Msg("usage tracking failed")
		}
	}()
}
