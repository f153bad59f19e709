package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/AgentOS/agentio/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/supervisor"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	manager *supervisor.Manager
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	logger.Info("Initializing agentio server",
		zap.String("port", cfg.Server.Port),
		zap.String("agent", cfg.Agent.Binary),
		zap.Bool("conditioner", cfg.Supervisor.ConditionerEnabled),
	)

	// Metrics first, every component records into them
	metrics := monitoring.NewMetrics()

	opts := supervisor.OptionsFromConfig(cfg)
	opts.Metrics = metrics
	opts.Logger = logger.Logger
	opts.OnAgentSession = func(sid id.SessionID, agentID string) {
		logger.Info("Agent session captured",
			zap.String("session", sid.String()),
			zap.String("agent_session_id", agentID))
	}
	manager := supervisor.NewManager(opts)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.CORSFromConfig(cfg.Server)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitFromConfig(cfg.RateLimit)))
	}

	handlers := apihttp.NewHandlers(manager, metrics, logger.Logger)
	wsHandler := ws.NewHandler(manager, ws.Options{
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		InputRate:    cfg.WebSocket.InputRate,
		InputBurst:   cfg.WebSocket.InputBurst,
		Breaker: resilience.Settings{
			MaxFailures: cfg.Sink.MaxFailures,
			Cooldown:    cfg.Sink.Cooldown,
		},
		Metrics: metrics,
		Logger:  logger.Logger,
	})

	registerRoutes(router, handlers, wsHandler)

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		manager: manager,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
		http: &http.Server{
			Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}, nil
}

func newLogger(cfg config.LogConfig) (*logging.Logger, error) {
	if cfg.Development {
		return logging.NewDevelopment(), nil
	}
	return logging.New(logging.Config{Level: cfg.Level})
}

func registerRoutes(router *gin.Engine, h *apihttp.Handlers, wsHandler *ws.Handler) {
	router.GET("/health", h.Health)
	router.GET("/metrics", h.Metrics())

	sessions := router.Group("/sessions")
	sessions.GET("", h.ListSessions)
	sessions.GET("/:id", h.GetSession)
	sessions.POST("/:id/abort", h.AbortSession)
	sessions.DELETE("/:id", h.RemoveSession)

	router.GET("/stream", wsHandler.HandleConnection)
}

// Router exposes the handler tree.
func (s *Server) Router() http.Handler {
	return s.router
}

// Manager returns the session manager.
func (s *Server) Manager() *supervisor.Manager {
	return s.manager
}

// Run starts the HTTP server and blocks until it stops. A graceful
// Shutdown makes Run return nil.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and tears every session down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...", zap.Int("sessions", s.manager.Len()))

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	// Hijacked websocket connections are not tracked by http.Server, so
	// their sessions are stopped here.
	if err := s.manager.CloseAll(ctx); err != nil {
		errs = append(errs, err)
	}

	_ = s.logger.Sync()
	return errors.Join(errs...)
}
