package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"studyhub/internal/chat"
	"studyhub/internal/storage"
)

type chatMessageRequest struct {
	Target    string `json:"target" binding:"required"`
	Mode      string `json:"mode"`
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id"`
	CourseID  string `json:"course_id"`
}

func (s *Server) handleChatMessage(c *gin.Context) {
	var req chatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user := currentUser(c)

	resp, err := s.cfg.Chat.HandleMessage(c.Request.Context(), chat.Request{
		UserID:    user.ID,
		Target:    req.Target,
		Mode:      req.Mode,
		Message:   req.Message,
		SessionID: req.SessionID,
		CourseID:  req.CourseID,
	})
	if err != nil {
		s.writeChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":  resp.SessionID,
		"reply":       resp.Reply,
		"source":      resp.Source,
		"new_session": resp.NewSession,
	})
}

func (s *Server) writeChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrUnknownTarget),
		errors.Is(err, chat.ErrUnknownMode),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrMissingCourse):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrSessionGone):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		s.cfg.Logger.Error().Err(err).Msg("chat turn failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type sessionView struct {
	ID           string  `json:"id"`
	Target       string  `json:"target"`
	CourseID     *string `json:"course_id,omitempty"`
	CourseName   *string `json:"course_name,omitempty"`
	MessageCount int     `json:"message_count"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

func toSessionView(s storage.ChatSession) sessionView {
	return sessionView{
		ID:           s.ID,
		Target:       s.Target,
		CourseID:     s.CourseID,
		CourseName:   s.CourseName,
		MessageCount: s.MessageCount,
		CreatedAt:    s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleListSessions(c *gin.Context) {
	user := currentUser(c)
	sessions, err := s.cfg.Sessions.ListSessions(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, toSessionView(sess))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views})
}

type createSessionRequest struct {
	Target   string `json:"target" binding:"required"`
	CourseID string `json:"course_id"`
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target, err := chat.ParseTarget(req.Target)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user := currentUser(c)
	ctx := c.Request.Context()

	if target.IsCourse() {
		if req.CourseID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": chat.ErrMissingCourse.Error()})
			return
		}
		// Course sessions are one per (user, course).
		if existing, err := s.cfg.Sessions.FindCourseSession(ctx, user.ID, req.CourseID); err == nil {
			c.JSON(http.StatusOK, gin.H{"session": toSessionView(existing)})
			return
		} else if !errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		sess, err := s.cfg.Sessions.CreateSession(ctx, user.ID, string(target), &req.CourseID, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"session": toSessionView(sess)})
		return
	}

	sess, err := s.cfg.Sessions.CreateSession(ctx, user.ID, string(target), nil, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": toSessionView(sess)})
}

func (s *Server) handleGetSession(c *gin.Context) {
	user := currentUser(c)
	ctx := c.Request.Context()

	sess, err := s.cfg.Sessions.GetSessionForUser(ctx, c.Param("id"), user.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	msgs, err := s.cfg.Sessions.ListMessages(ctx, sess.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type messageView struct {
		Seq       int    `json:"seq"`
		Role      string `json:"role"`
		Content   string `json:"content"`
		Source    string `json:"source,omitempty"`
		CreatedAt string `json:"created_at"`
	}
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{
			Seq:       m.Seq,
			Role:      m.Role,
			Content:   m.Content,
			Source:    m.Source,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"session": toSessionView(sess), "messages": views})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	user := currentUser(c)
	if err := s.cfg.Sessions.DeleteSession(c.Request.Context(), c.Param("id"), user.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUsage(c *gin.Context) {
	user := currentUser(c)
	snap, err := s.cfg.Usage.Snapshot(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	plan := planFromMetadata(user.Metadata)
	c.JSON(http.StatusOK, gin.H{"usage": snap, "plan": plan})
}
