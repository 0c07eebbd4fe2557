package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"huddle-chat/config"
	"huddle-chat/internal/auth"
	"huddle-chat/internal/handler"
	"huddle-chat/internal/middleware"
	"huddle-chat/internal/services"
	"huddle-chat/internal/transport/httpdto"
	"huddle-chat/internal/websocket"
	"huddle-chat/pkg/logger"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

const shutdownTimeout = 5 * time.Second

type Handlers struct {
	Channels       *handler.ChannelHandler
	ChannelMessage *handler.MessageHandler
	DirectMessage  *handler.MessageHandler
	Conversations  *handler.ConversationHandler
	Users          *handler.UserHandler
	Uploads        *handler.UploadHandler
	WebSocket      *websocket.Handler
}

// NewHandlers builds the HTTP and WebSocket handlers over svc.
func NewHandlers(svc *services.Services, hub *websocket.Hub, l *logger.Logger) *Handlers {
	return &Handlers{
		Channels:       handler.NewChannelHandler(svc.Channels),
		ChannelMessage: handler.NewMessageHandler(svc.Chat, handler.ChannelTarget),
		DirectMessage:  handler.NewMessageHandler(svc.Chat, handler.DMTarget),
		Conversations:  handler.NewConversationHandler(svc.Chat),
		Users:          handler.NewUserHandler(svc.Users),
		Uploads:        handler.NewUploadHandler(svc.Users),
		WebSocket:      websocket.NewHandler(svc, services.NewCommandBus(), hub, l),
	}
}

// HealthCheck probes one backing service for /health.
type HealthCheck func(ctx context.Context) error

// Guards are the per-route protections. ConnectLimit may be nil.
type Guards struct {
	Verifier     *auth.Verifier
	ConnectLimit middleware.LimitFunc
	Health       map[string]HealthCheck
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: logger.OrNop(l).Named("server"),
	}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) SetupRoutes(h *Handlers, g Guards) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})
	s.engine.GET("/health", s.health(g.Health))

	v1 := s.engine.Group("/v1", middleware.AuthMiddleware(g.Verifier))

	ws := []gin.HandlerFunc{}
	if g.ConnectLimit != nil {
		ws = append(ws, middleware.UserRateLimitMiddleware(g.ConnectLimit, "too many connections", s.logger))
	}
	v1.GET("/ws", append(ws, h.WebSocket.Connect)...)

	me := v1.Group("/me")
	{
		me.GET("", h.Users.Me)
		me.PUT("/status", h.Users.SetStatus)
		me.POST("/heartbeat", h.Users.Heartbeat)
		me.POST("/avatar/presign", h.Uploads.PresignAvatar)
		me.PUT("/avatar", h.Uploads.UpdateAvatar)
		me.POST("/avatar", h.Uploads.UploadAvatar)
	}

	users := v1.Group("/users")
	{
		users.GET("", h.Users.List)
		users.GET("/:id", h.Users.Get)
	}
	v1.GET("/suggestions", h.Users.Suggest)
	v1.GET("/presence", h.Users.Presence)
	v1.GET("/conversations", h.Conversations.List)

	channels := v1.Group("/channels")
	{
		channels.GET("", h.Channels.List)
		channels.POST("", h.Channels.Create)
		channels.GET("/:id", h.Channels.Get)
		channels.POST("/:id/join", h.Channels.Join)
		channels.POST("/:id/leave", h.Channels.Leave)
		channels.PUT("/:id/topic", h.Channels.SetTopic)
		channels.GET("/:id/members", h.Channels.Members)
		messageRoutes(channels.Group("/:id/messages"), h.ChannelMessage)
	}

	messageRoutes(v1.Group("/dms/:peer/messages"), h.DirectMessage)
}

func messageRoutes(g *gin.RouterGroup, h *handler.MessageHandler) {
	g.POST("", h.Send)
	g.GET("/:mid", h.Get)
	g.PATCH("/:mid", h.Edit)
	g.DELETE("/:mid", h.Delete)
	g.POST("/:mid/reactions", h.React)
	g.POST("/:mid/replies", h.Reply)
	g.GET("/:mid/replies/:rid", h.Get)
	g.PATCH("/:mid/replies/:rid", h.Edit)
	g.DELETE("/:mid/replies/:rid", h.Delete)
	g.POST("/:mid/replies/:rid/reactions", h.React)
}

func (s *Server) health(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := make(map[string]string, len(checks))
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				s.logger.Ctx(ctx).Warnf("health check %s failed: %v", name, err)
				status[name] = err.Error()
				healthy = false
				continue
			}
			status[name] = "ok"
		}
		if !healthy {
			c.JSON(http.StatusServiceUnavailable, httpdto.Response[gin.H]{
				Success: false,
				Data:    gin.H{"status": "unhealthy", "checks": status},
				Error:   "unhealthy",
				Code:    "UNHEALTHY",
			})
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy", "checks": status}))
	}
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on :%s: %w", s.config.AppPort, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Infof("Shutting down the server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		s.logger.Infof("Server stopped gracefully")
		return nil
	})
	return g.Wait()
}
