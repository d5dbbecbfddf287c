// Package server exposes the task orchestration API over HTTP and streams
// task events over websockets.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/copp1723/swarm-sub001/internal/config"
	"github.com/copp1723/swarm-sub001/internal/engine"
	"github.com/copp1723/swarm-sub001/internal/logging"
	"github.com/copp1723/swarm-sub001/internal/notify"
	"github.com/copp1723/swarm-sub001/internal/store"
)

// Deps are the collaborators the HTTP surface forwards to.
type Deps struct {
	Engine      *engine.Engine
	Store       store.Store
	Broadcaster *notify.Broadcaster
	Logger      logging.Logger
}

type Server struct {
	deps   Deps
	router *gin.Engine

	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	startTime  time.Time
	logger     logging.Logger
}

func New(cfg config.ServerConfig, deps Deps) (*Server, error) {
	if deps.Engine == nil || deps.Store == nil || deps.Broadcaster == nil {
		return nil, fmt.Errorf("engine, store and broadcaster are required")
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	if cfg.EnableCORS {
		corsConfig := cors.DefaultConfig()
		if len(cfg.AllowedOrigins) > 0 {
			corsConfig.AllowOrigins = cfg.AllowedOrigins
		} else {
			corsConfig.AllowAllOrigins = true
		}
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
		corsConfig.AllowWebSockets = true
		router.Use(cors.New(corsConfig))
	}

	s := &Server{
		deps:   deps,
		router: router,
		wsUpgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin filtering is delegated to the CORS layer.
				return true
			},
		},
		startTime: time.Now(),
		logger:    logging.OrNop(deps.Logger),
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	api.Use(JSONMiddleware())

	api.GET("/health", s.handleHealth)

	tasks := api.Group("/tasks")
	{
		tasks.POST("", s.handleCreateTask)
		tasks.GET("", s.handleListTasks)
		tasks.GET("/:id", s.handleGetTask)
		tasks.GET("/:id/conversation", s.handleGetConversation)
		tasks.POST("/:id/cancel", s.handleCancelTask)
	}

	// Websocket upgrade bypasses the JSON middleware.
	s.router.GET("/api/tasks/:id/stream", s.handleStream)

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Router exposes the underlying handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("Starting server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down, waiting for in-flight task runs.
func (s *Server) Stop() error {
	s.logger.Info("Stopping server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Error shutting down HTTP server: %v", err)
		return err
	}
	s.deps.Engine.Wait()
	s.logger.Info("Server stopped")
	return nil
}

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Uptime    string         `json:"uptime"`
	Streams   notify.Metrics `json:"streams"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data: healthResponse{
			Status:    "ok",
			Timestamp: time.Now(),
			Uptime:    time.Since(s.startTime).String(),
			Streams:   s.deps.Broadcaster.Metrics(),
		},
	})
}
