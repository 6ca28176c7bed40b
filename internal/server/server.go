package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/driftpost/driftpost/internal/api"
	"github.com/driftpost/driftpost/internal/auth"
	"github.com/driftpost/driftpost/internal/config"
	"github.com/driftpost/driftpost/internal/home"
	"github.com/driftpost/driftpost/internal/providers"
	"github.com/driftpost/driftpost/internal/runs"
	"github.com/driftpost/driftpost/internal/server/endpoints"
	"github.com/driftpost/driftpost/internal/svcctx"
	"github.com/driftpost/driftpost/internal/workflow"
)

// Server is the main Driftpost HTTP server. It owns the provider registry,
// the stage registry and the run manager for the lifetime of the process.
type Server struct {
	httpServer *http.Server
	registry   *providers.Registry
	stages     *workflow.Registry
	engine     *workflow.Engine
	runManager *runs.Manager
	authFlow   *auth.Flow
	configMgr  *config.Manager
	home       *home.Dir
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8480)
	Port int
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Home is the driftpost home directory for token persistence
	Home *home.Dir
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8480
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}

	appCfg := cfg.ConfigManager.Get()

	// Create provider registry from config and keep it in sync.
	regCfg := appCfg.ToProviderRegistryConfig()
	regCfg.Logger = cfg.Logger
	registry := providers.NewRegistryFromConfig(regCfg)
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		registry.Reload(c.ToProviderRegistryConfig())
		cfg.Logger.Info("provider registry reloaded from config")
	})

	s := &Server{
		registry:  registry,
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
	}

	// Stage registry and engine. Collaborators resolve through the
	// provider registry on every call so config reloads take effect
	// without restarting.
	s.stages = workflow.NewRegistry()
	s.engine = workflow.NewEngine(workflow.EngineConfig{
		Collaborators: workflow.Collaborators{
			Researcher: &contentResolver{s},
			Composer:   &contentResolver{s},
			Images:     &contentResolver{s},
			Publisher:  &socialResolver{s},
		},
		StageDelay: appCfg.Engine.StageDelay,
		ImageDelay: appCfg.Engine.ImageDelay,
		MaxStages:  appCfg.Engine.MaxStages,
		Logger:     cfg.Logger,
	})
	s.runManager = runs.NewManager(s.engine, s.stages, cfg.Logger)

	// The auth flow resolves its provider per call, like the engine
	// collaborators, so a social provider added by a config reload
	// becomes usable without restarting.
	s.authFlow = auth.NewFlow(s.defaultSocial, cfg.Home, appCfg.Engine.AuthTimeout, cfg.Logger)
	if _, _, err := s.defaultSocial(); err != nil {
		cfg.Logger.Warn("no social provider configured, publishing disabled until one is added")
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // runs block on generation calls
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the server. It blocks until the context is cancelled or an
// error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	// Create services struct for context enrichment
	s.services = &svcctx.Services{
		ConfigManager: s.configMgr,
		Registry:      s.registry,
		Workflow:      s.stages,
		Engine:        s.engine,
		Runs:          s.runManager,
		AuthFlow:      s.authFlow,
		Home:          s.home,
		Logger:        s.logger,
	}

	// Watch for config file edits
	s.configMgr.WatchConfig()

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			s.setNotRunning()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown performs graceful shutdown: stop accepting requests, then wait
// for any run in flight.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.runManager.Wait()

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Stages returns the stage registry.
func (s *Server) Stages() *workflow.Registry {
	return s.stages
}

// Runs returns the run manager.
func (s *Server) Runs() *runs.Manager {
	return s.runManager
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.IsRunning() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}

// defaultContent resolves the configured default content provider.
func (s *Server) defaultContent() (providers.ContentProvider, error) {
	name := s.configMgr.Get().Defaults.ContentProvider
	if name == "" {
		names := s.registry.ListContent()
		if len(names) == 0 {
			return nil, errors.New("no content provider registered")
		}
		name = names[0]
	}
	return s.registry.GetContent(name)
}

// defaultSocial resolves the configured default social provider. Its
// signature matches auth.ProviderResolver so the auth flow can use it
// directly.
func (s *Server) defaultSocial() (string, providers.SocialProvider, error) {
	name := s.configMgr.Get().Defaults.SocialProvider
	if name == "" {
		names := s.registry.ListSocial()
		if len(names) == 0 {
			return "", nil, errors.New("no social provider registered")
		}
		name = names[0]
	}
	p, err := s.registry.GetSocial(name)
	if err != nil {
		return "", nil, err
	}
	return name, p, nil
}

// contentResolver defers content provider lookup to call time so the
// engine follows config reloads.
type contentResolver struct{ s *Server }

var (
	_ providers.Researcher     = (*contentResolver)(nil)
	_ providers.Composer       = (*contentResolver)(nil)
	_ providers.ImageGenerator = (*contentResolver)(nil)
	_ providers.Publisher      = (*socialResolver)(nil)
)

// Name reports the provider the resolver currently points at.
func (c *contentResolver) Name() string {
	if p, err := c.s.defaultContent(); err == nil {
		return p.Name()
	}
	return "content"
}

func (c *contentResolver) Research(ctx context.Context, topic string) (*providers.ResearchResult, error) {
	p, err := c.s.defaultContent()
	if err != nil {
		return nil, err
	}
	return p.Research(ctx, topic)
}

func (c *contentResolver) Compose(ctx context.Context, req *providers.ComposeRequest) (*providers.ComposedPost, error) {
	p, err := c.s.defaultContent()
	if err != nil {
		return nil, err
	}
	return p.Compose(ctx, req)
}

func (c *contentResolver) GenerateImage(ctx context.Context, req *providers.ImageRequest) (*providers.GeneratedImage, error) {
	p, err := c.s.defaultContent()
	if err != nil {
		return nil, err
	}
	return p.GenerateImage(ctx, req)
}

// socialResolver defers social provider lookup to call time.
type socialResolver struct{ s *Server }

func (c *socialResolver) Name() string {
	if name, _, err := c.s.defaultSocial(); err == nil {
		return name
	}
	return "social"
}

func (c *socialResolver) Publish(ctx context.Context, token string, req *providers.PublishRequest) (*providers.PublishReceipt, error) {
	_, p, err := c.s.defaultSocial()
	if err != nil {
		return nil, err
	}
	return p.Publish(ctx, token, req)
}
