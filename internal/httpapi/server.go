// Package httpapi exposes the chat service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"studyhub/internal/chat"
	"studyhub/internal/identity"
	"studyhub/internal/storage"
	"studyhub/internal/usage"
)

const userKey = "httpapi.user"

type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (identity.User, error)
}

type ChatHandler interface {
	HandleMessage(ctx context.Context, req chat.Request) (chat.Response, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, userID, target string, courseID, courseName *string) (storage.ChatSession, error)
	FindCourseSession(ctx context.Context, userID, courseID string) (storage.ChatSession, error)
	GetSessionForUser(ctx context.Context, id, userID string) (storage.ChatSession, error)
	ListSessions(ctx context.Context, userID string) ([]storage.ChatSession, error)
	ListMessages(ctx context.Context, sessionID string) ([]storage.Message, error)
	DeleteSession(ctx context.Context, sessionID, userID string) error
}

type UsageReader interface {
	Snapshot(ctx context.Context, userID string) (usage.Snapshot, error)
}

type Config struct {
	Chat        ChatHandler
	Sessions    SessionStore
	Usage       UsageReader
	Verifier    TokenVerifier
	HealthPath  string
	MetricsPath string
	Logger      zerolog.Logger
}

type Server struct {
	cfg Config
}

func New(cfg Config) *Server {
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	return &Server{cfg: cfg}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(s.cfg.HealthPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET(s.cfg.MetricsPath, gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", s.authMiddleware())
	{
		api.POST("/chat/message", s.handleChatMessage)
		api.GET("/chat/sessions", s.handleListSessions)
		api.POST("/chat/sessions", s.handleCreateSession)
		api.GET("/chat/sessions/:id", s.handleGetSession)
		api.DELETE("/chat/sessions/:id", s.handleDeleteSession)
		api.GET("/subscription/usage", s.handleUsage)
	}
	return r
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		user, err := s.cfg.Verifier.VerifyToken(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, identity.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				return
			}
			s.cfg.Logger.Error().Err(err).Msg("token verification failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) identity.User {
	v, _ := c.Get(userKey)
	u, _ := v.(identity.User)
	return u
}
