package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/AgentOS/chatsync/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/catalog"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/job"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/planner"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/session"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/view"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/providers/auth"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/providers/http/client"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/providers/jobs"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/providers/storage"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/types"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router       *gin.Engine
	http         *http.Server
	store        *session.Store
	orchestrator *job.Orchestrator
	binder       *view.Binder
	hub          *ws.Hub
	tracer       *tracing.Tracer
	logger       *logging.Logger
	config       *config.Config
	metrics      *monitoring.Metrics
}

// NewServer builds every component and mounts the routes
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	logger := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development)
	logger.Info("Initializing chat sync server",
		zap.String("port", cfg.Server.Port),
		zap.String("backend", cfg.Backend.BaseURL),
	)

	// Metrics first, the clients report breaker state into it
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("chatsync", logger.Logger)

	// Auth refresh must not carry the token it is refreshing
	authClient := client.NewClient(client.Config{
		Name:           "auth",
		BaseURL:        cfg.Backend.BaseURL,
		Timeout:        cfg.Backend.Timeout,
		RequestsPerSec: cfg.Backend.RequestsPerSec,
	}, client.WithMetrics(metrics), client.WithLogger(logger))
	identity := auth.NewProvider(authClient, logger)

	jobsClient := client.NewClient(client.Config{
		Name:           "jobs",
		BaseURL:        cfg.Backend.BaseURL,
		Timeout:        cfg.Backend.Timeout,
		RequestsPerSec: cfg.Backend.RequestsPerSec,
	}, client.WithTokens(identity), client.WithMetrics(metrics), client.WithLogger(logger))

	storageClient := client.NewClient(client.Config{
		Name:           "storage",
		BaseURL:        cfg.Backend.BaseURL,
		Timeout:        cfg.Backend.Timeout,
		Retries:        cfg.Backend.StorageRetries,
		RequestsPerSec: cfg.Backend.RequestsPerSec,
	}, client.WithTokens(identity), client.WithMetrics(metrics), client.WithLogger(logger))

	remoteJobs := jobs.NewClient(jobsClient)
	remoteStorage := storage.NewProvider(storageClient)
	cat := catalog.Default()

	hub := ws.NewHub(
		ws.WithMetrics(metrics),
		ws.WithLogger(logger),
		ws.WithOrigins(cfg.CORS.AllowOrigins),
	)

	store := session.NewStore(remoteStorage,
		session.WithDebounce(cfg.Persist.Debounce),
		session.WithNotifier(hub),
		session.WithMetrics(metrics),
		session.WithLogger(logger),
	)

	orchestrator := job.NewOrchestrator(remoteJobs, nil,
		job.WithPolicy(types.KindText, job.Policy{Interval: cfg.Jobs.TextInterval, Timeout: cfg.Jobs.TextTimeout}),
		job.WithPolicy(types.KindImage, job.Policy{Interval: cfg.Jobs.ImageInterval, Timeout: cfg.Jobs.ImageTimeout}),
		job.WithPolicy(types.KindVideo, job.Policy{Interval: cfg.Jobs.VideoInterval, Timeout: cfg.Jobs.VideoTimeout}),
		job.WithNotifier(hub),
		job.WithMetrics(metrics),
		job.WithLogger(logger),
	)

	// Results reach the store through the binder so an open transcript
	// sees them too
	binder := view.NewBinder(store, orchestrator, cat,
		view.WithPublisher(hub),
		view.WithLogger(logger),
	)
	orchestrator.SetSink(binder)

	plan := planner.NewPlanner(remoteJobs, remoteStorage, store, cat, logger)

	// A different user must never see the previous user's sessions or
	// results. The HTTP handlers flush pending writes before this fires.
	identity.OnChange(func(ctx context.Context, userID string) {
		orchestrator.Reset()
		binder.Reset()
		store.Reset(userID)
	})

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORS.AllowOrigins...)))
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

	handlers := apihttp.NewHandlers(apihttp.Deps{
		Sessions: store,
		View:     binder,
		Jobs:     orchestrator,
		Folders:  remoteStorage,
		Planner:  plan,
		Identity: identity,
		Catalog:  cat,
		Breakers: []apihttp.Breaker{jobsClient, storageClient, authClient},
		Clients:  hub.Count,
		Logger:   logger,
	})
	apihttp.Register(router, handlers, hub.HandleConnection, metrics.Handler())

	logger.Info("Server initialized successfully")

	return &Server{
		router:       router,
		store:        store,
		orchestrator: orchestrator,
		binder:       binder,
		hub:          hub,
		tracer:       tracer,
		logger:       logger,
		config:       cfg,
		metrics:      metrics,
	}, nil
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until Shutdown is called
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, cancels running polls and writes
// every pending session update before returning
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop http server: %w", err))
		}
	}
	if err := s.orchestrator.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop job loops: %w", err))
	}
	if err := s.store.Flush(ctx); err != nil {
		s.logger.Error("Failed to flush sessions", zap.Error(err))
		errs = append(errs, fmt.Errorf("failed to flush sessions: %w", err))
	}

	s.hub.Close()
	s.tracer.Close()
	_ = s.logger.Sync()

	return errors.Join(errs...)
}
