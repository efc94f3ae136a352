package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/envtrace/internal/api/http"
	"github.com/GriffinCanCode/envtrace/internal/api/middleware"
	"github.com/GriffinCanCode/envtrace/internal/api/ws"
	"github.com/GriffinCanCode/envtrace/internal/infrastructure/config"
	"github.com/GriffinCanCode/envtrace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/envtrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/envtrace/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/envtrace/internal/sandbox"
)

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	pool    *sandbox.Pool
	bridge  *sandbox.Bridge
	hub     *ws.Hub
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance. profile may be nil.
func NewServer(cfg *config.Config, profile *config.Profile, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	logger.Info("Initializing envtrace server",
		zap.String("port", cfg.Server.Port),
		zap.Int("pool_size", cfg.Sandbox.PoolSize),
		zap.String("network", cfg.Network.Mode),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()
	hub := ws.NewHub(logger.Component("ws").Logger, metrics)

	cfg = cfg.WithProfile(profile)

	// Proxy output goes to stream subscribers, so "auto" means no colors.
	breakers := logger.Component("network")
	sc, err := cfg.Runtime(config.RuntimeOptions{
		Profile:    profile,
		IsTerminal: func() bool { return false },
		OnBreak: func(host string, from, to resilience.State) {
			breakers.Warn("Circuit breaker state changed",
				zap.String("host", host),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox config: %w", err)
	}
	sc.Output = hub
	sc.Audit = logger.Audit()
	sc.Recorder = metrics

	pool, err := sandbox.NewPool(sc, cfg.Sandbox.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("sandbox pool: %w", err)
	}
	metrics.ObservePool(pool.Stats())
	bridge := sandbox.NewBridge(pool)

	if sc.Proxy != nil {
		logger.Info("Environment proxy enabled", zap.Strings("paths", sc.Proxy.Paths))
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger.Component("http").Logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
			zap.Bool("global", cfg.RateLimit.Global),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		if cfg.RateLimit.Global {
			router.Use(middleware.GlobalRateLimit(rl))
		} else {
			router.Use(middleware.RateLimit(rl))
		}
	}

	handlers := apihttp.NewHandlers(pool, bridge, metrics, hub.Clients, logger.Component("api").Logger)

	// Register routes
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/pending", handlers.Pending)
	router.POST("/generate", handlers.Generate)
	router.POST("/execute", handlers.Execute)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/ws/audit", hub.HandleConnection)

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		pool:    pool,
		bridge:  bridge,
		hub:     hub,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases the sandbox pool and flushes the logger.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	if err := s.pool.Close(); err != nil {
		s.logger.Error("Failed to close sandbox pool", zap.Error(err))
		return fmt.Errorf("failed to close sandbox pool: %w", err)
	}
	if pending := s.bridge.Pending(); len(pending) > 0 {
		s.logger.Warn("Closed with generate calls in flight", zap.Int("pending", len(pending)))
	}

	// Sync logger before exit
	_ = s.logger.Sync()

	return nil
}
