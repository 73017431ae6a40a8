package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/handler"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/middleware"
)

// Handlers are the endpoint groups the server routes to.
type Handlers struct {
	Webhook       handler.WebhookHandler
	Conversations handler.ConversationHandler
	Events        handler.EventHandler
}

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger
}

func NewServer(addr string, jwtSecret []byte, h Handlers, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
	s.setupRoutes(jwtSecret, h)
	return s
}

func (s *Server) setupRoutes(jwtSecret []byte, h Handlers) {
	// Ping route for health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	webhooks := s.router.Group("/webhooks")
	webhooks.GET("/instagram", h.Webhook.Verify)
	webhooks.POST("/instagram", h.Webhook.Receive)

	authRequired := s.router.Group("/api")
	authRequired.Use(middleware.AuthMiddleware(jwtSecret, s.logger))
	{
		authRequired.GET("/conversations", h.Conversations.ListConversations)
		authRequired.GET("/conversations/:id", h.Conversations.GetConversation)
		authRequired.GET("/events", h.Events.ListEvents)
		authRequired.POST("/events/replay", h.Events.ReplayFailed)
		authRequired.POST("/events/:id/replay", h.Events.ReplayEvent)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("Server starting", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
