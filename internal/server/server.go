// Package server exposes the capture hub over HTTP: capture
// classification, record listings, per-occurrence completion, the
// calendar feed and export/import.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sandeepkv93/capd/internal/storage"
)

type Server struct {
	repo    storage.Repository
	logger  *zap.Logger
	router  *gin.Engine
	token   string
	hardCap int
	now     func() time.Time
}

type Options struct {
	// AuthToken guards every route when non-empty; an empty token
	// disables auth entirely.
	AuthToken string
	// RecurrenceHardCap bounds occurrence expansion per request.
	RecurrenceHardCap int
}

func New(repo storage.Repository, logger *zap.Logger, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		repo:    repo,
		logger:  logger,
		router:  router,
		token:   opts.AuthToken,
		hardCap: opts.RecurrenceHardCap,
		now:     func() time.Time { return time.Now().UTC() },
	}

	router.GET("/healthz", s.handleHealthz)

	authed := router.Group("/", s.requireAuth)
	{
		authed.POST("/capture", s.handleCapture)
		authed.GET("/memories", s.handleListMemories)
		authed.POST("/memories", s.handleCreateMemory)
		authed.GET("/tasks", s.handleListTasks)
		authed.POST("/tasks", s.handleCreateTask)
		authed.POST("/tasks/:id/done", s.handleMarkDone)
		authed.GET("/tasks/:id/occurrences", s.handleListOccurrences)
		authed.POST("/tasks/:id/occurrences/:index/done", s.handleOccurrenceDone)
		authed.GET("/calendar.ics", s.handleCalendarFeed)
		authed.GET("/export", s.handleExport)
		authed.POST("/import", s.handleImport)
	}

	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(addr string) error {
	s.logger.Info("capture server listening", zap.String("addr", addr))
	return s.router.Run(addr)
}

func (s *Server) requireAuth(c *gin.Context) {
	if s.token == "" {
		return
	}
	if c.GetHeader("X-Auth-Token") != s.token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "app": "capd"})
}
