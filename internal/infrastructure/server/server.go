package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	httpapi "github.com/GriffinCanCode/AgentOS/remote/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/remote/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/remote/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/browsercontext"
	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/network"
	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/session"
	"github.com/GriffinCanCode/AgentOS/remote/internal/domain/target"
	"github.com/GriffinCanCode/AgentOS/remote/internal/engine"
	"github.com/GriffinCanCode/AgentOS/remote/internal/engine/headless"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/tracing"
)

// WebSocketPath is where control connections are accepted
const WebSocketPath = "/devtools/browser"

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	engine   engine.Engine
	contexts *browsercontext.Registry
	targets  *target.Registry
	ws       *ws.Server
	tracer   *tracing.Tracer
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// Options override collaborators, mainly for tests
type Options struct {
	// Engine replaces the in-process headless engine
	Engine engine.Engine
	// Registerer receives the collectors; the default registry if nil
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *logging.Logger, opts Options) (*Server, error) {
	logger.Info("Initializing remote automation server",
		zap.String("addr", cfg.Addr()),
		zap.String("profile_dir", cfg.Browser.ProfileDir),
	)

	registerer, gatherer := opts.Registerer, opts.Gatherer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	metrics := monitoring.NewMetrics(registerer)
	tracer := tracing.New("remote", logger.Logger)

	eng := opts.Engine
	if eng == nil {
		headlessEngine, err := headless.New(headless.Config{
			ProfileDir:        cfg.Browser.ProfileDir,
			UserAgent:         cfg.Browser.UserAgent,
			NavigationTimeout: cfg.Browser.NavigationTimeout,
			ScriptTimeout:     cfg.Browser.ScriptTimeout,
		}, logger.Named("headless"))
		if err != nil {
			tracer.Close()
			return nil, fmt.Errorf("failed to start engine: %w", err)
		}
		eng = headlessEngine
	}

	contexts, err := browsercontext.NewRegistry(eng, cfg.Browser.ContextPrefix, logger.Named("browsercontext"))
	if err != nil {
		tracer.Close()
		eng.Quit()
		return nil, fmt.Errorf("failed to load browser contexts: %w", err)
	}
	contexts = contexts.WithMetrics(metrics)
	targets := target.NewRegistry(eng, contexts, logger.Named("target")).WithMetrics(metrics)
	observer := network.NewObserver(eng, logger.Named("network"))

	wsServer := ws.NewServer(session.Deps{
		Engine:            eng,
		Contexts:          contexts,
		Targets:           targets,
		Network:           observer,
		Logger:            logger.Named("session"),
		Metrics:           metrics,
		Tracer:            tracer,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
	}, wsConfig(cfg)).WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	// Register routes
	httpapi.NewHandlers(httpapi.Options{
		Engine:        eng,
		Targets:       targets,
		Contexts:      contexts,
		Connections:   wsServer,
		Metrics:       metrics,
		Gatherer:      gatherer,
		WebSocketPath: WebSocketPath,
	}).Register(router)
	router.GET(WebSocketPath, wsServer.HandleConnection)

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		http:     &http.Server{Addr: cfg.Addr(), Handler: router},
		engine:   eng,
		contexts: contexts,
		targets:  targets,
		ws:       wsServer,
		tracer:   tracer,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

func wsConfig(cfg *config.Config) ws.Config {
	out := ws.Config{
		MaxMessageBytes: cfg.Protocol.MaxMessageBytes,
		WriteTimeout:    cfg.Protocol.WriteTimeout,
		OutboundBuffer:  cfg.Protocol.OutboundBuffer,
	}
	if cfg.RateLimit.Enabled {
		out.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		out.Burst = cfg.RateLimit.Burst
	}
	return out
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Done is closed once the browser has shut down, for example after
// Browser.close
func (s *Server) Done() <-chan struct{} {
	return s.engine.Done()
}

// Run starts the HTTP server and blocks until it stops
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Close gracefully shuts down the server
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	// Dispatchers go first so no call races the engine shutdown
	s.ws.Close()
	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	s.targets.Close()
	s.engine.Quit()
	select {
	case <-s.engine.Done():
		s.logger.Info("Browser stopped")
	case <-ctx.Done():
		s.logger.Warn("Browser did not stop in time")
		if err == nil {
			err = ctx.Err()
		}
	}
	s.tracer.Close()

	// Sync logger before exit
	_ = s.logger.Sync()

	if err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
