package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mozaika228/hephaestus/auth"
	"github.com/mozaika228/hephaestus/config"
	"github.com/mozaika228/hephaestus/handlers"
	"github.com/mozaika228/hephaestus/internal/observability"
	"github.com/mozaika228/hephaestus/middleware"
	"github.com/mozaika228/hephaestus/repositories"
	"github.com/mozaika228/hephaestus/repositories/memory"
	"github.com/mozaika228/hephaestus/repositories/postgres"
	"github.com/mozaika228/hephaestus/services/cache"
	"github.com/mozaika228/hephaestus/services/chat"
	"github.com/mozaika228/hephaestus/services/decision"
	"github.com/mozaika228/hephaestus/services/files"
	"github.com/mozaika228/hephaestus/services/integrations"
	"github.com/mozaika228/hephaestus/services/jobs"
	"github.com/mozaika228/hephaestus/services/orchestrator"
	"github.com/mozaika228/hephaestus/services/planner"
	"github.com/mozaika228/hephaestus/services/providers"
	"github.com/mozaika228/hephaestus/services/providers/azure"
	"github.com/mozaika228/hephaestus/services/providers/custom"
	"github.com/mozaika228/hephaestus/services/providers/local"
	"github.com/mozaika228/hephaestus/services/providers/openai"
	"github.com/mozaika228/hephaestus/services/ratelimit"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB // nil when the in-memory store is selected
	Logger  *zap.Logger
	Metrics *observability.Collector // nil when metrics are disabled

	// Repository Factory, only set for PostgreSQL
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repos *repositories.Repositories

	// Cache
	Cache cache.Cache

	// Providers
	HTTPClient       *http.Client
	ProviderRegistry *providers.Registry
	Decider          *decision.Client
	Orchestrator     *orchestrator.Orchestrator

	// Services
	Chat         *chat.Service
	Files        *files.Service
	Planner      *planner.Service
	Integrations *integrations.Service
	Jobs         *jobs.Service
	RateLimiter  *ratelimit.RateLimitService

	// Handlers
	HealthHandler       *handlers.HealthHandler
	ChatHandler         *handlers.ChatHandler
	FilesHandler        *handlers.FilesHandler
	PlannerHandler      *handlers.PlannerHandler
	IntegrationsHandler *handlers.IntegrationsHandler
	JobsHandler         *handlers.JobsHandler

	// Auth, nil unless AUTH_JWT_SECRET is set
	AuthMiddleware *middleware.AuthMiddleware

	stopJanitor context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewCollector()
	}

	// Initialize the record store
	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize repositories
	if err := deps.initRepositories(); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	// Initialize the response cache
	if err := deps.initCache(ctx, cfg); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	// Initialize provider registry
	if err := deps.initProviders(cfg); err != nil {
		deps.closeDatabase()
		_ = deps.Cache.Close()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.initServices(cfg)
	deps.initHandlers(cfg)

	// Initialize bearer token auth
	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase opens PostgreSQL when configured. Without a database the
// in-memory store is used and this is a no-op.
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if !cfg.Database.Enabled() {
		d.Logger.Info("no database configured, using in-memory store")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	// Test the connection
	if err := d.DB.PingContext(ctx); err != nil {
		d.closeDatabase()
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := factory.InitSchema(ctx); err != nil {
		d.closeDatabase()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() error {
	if d.RepoFactory != nil {
		d.Repos = d.RepoFactory.NewRepositories()
	} else {
		d.Repos = memory.NewRepositories()
	}

	if d.Repos.Uploads == nil || d.Repos.Tasks == nil || d.Repos.Jobs == nil || d.Repos.Transactions == nil {
		return fmt.Errorf("repository set is incomplete")
	}

	d.Logger.Info("repositories initialized")
	return nil
}

// initCache builds the configured backend and reports lookups to metrics.
// The in-process cache gets a janitor goroutine that stops on Close.
func (d *Dependencies) initCache(ctx context.Context, cfg *config.Config) error {
	c, err := cache.New(ctx, cfg.Cache, d.Logger)
	if err != nil {
		return err
	}

	if mc, ok := c.(*cache.MemoryCache); ok && cfg.Cache.CleanupInterval > 0 {
		janitorCtx, cancel := context.WithCancel(context.Background())
		d.stopJanitor = cancel
		go mc.StartCleanupWorker(janitorCtx, cfg.Cache.CleanupInterval)
	}

	if d.Metrics != nil {
		c = cache.Instrument(c, d.Metrics.RecordCacheLookup)
	}
	d.Cache = c

	backend := "memory"
	if cfg.Cache.RedisURL != "" {
		backend = "redis"
	}
	d.Logger.Info("cache initialized", zap.String("backend", backend))
	return nil
}

// initProviders registers a builder for every backend. Adapters are built
// per request, so an unconfigured backend is registered too and reports
// invalid_configuration when selected.
func (d *Dependencies) initProviders(cfg *config.Config) error {
	d.HTTPClient = providers.NewHTTPClient(cfg.Providers.Timeout)
	registry := providers.NewRegistry()

	builders := []struct {
		id      providers.ID
		builder providers.Builder
	}{
		{providers.OpenAI, openai.Builder(d.HTTPClient, d.Logger, d.skipHook(providers.OpenAI))},
		{providers.Azure, azure.Builder(d.HTTPClient, d.Logger, d.skipHook(providers.Azure))},
		{providers.Local, local.Builder(d.HTTPClient, d.Logger)},
		{providers.Custom, custom.Builder(d.HTTPClient, d.Logger)},
	}
	for _, b := range builders {
		if err := registry.Register(b.id, b.builder); err != nil {
			return fmt.Errorf("register %s: %w", b.id, err)
		}
	}

	available := decision.FlagsFor(cfg.Providers).Available()
	if len(available) == 0 {
		d.Logger.Warn("no LLM providers configured")
	} else {
		names := make([]string, 0, len(available))
		for _, id := range available {
			names = append(names, string(id))
		}
		d.Logger.Info("providers configured",
			zap.Strings("available", names),
			zap.String("active", cfg.Providers.ActiveOrDefault()),
		)
	}

	d.ProviderRegistry = registry
	d.Decider = decision.NewClient(d.HTTPClient, d.Metrics, d.Logger)
	d.Orchestrator = orchestrator.New(registry, d.Metrics, d.Logger)
	return nil
}

func (d *Dependencies) skipHook(id providers.ID) func(payload []byte) {
	if d.Metrics == nil {
		return nil
	}
	return func([]byte) {
		d.Metrics.RelaySkipped(string(id))
	}
}

func (d *Dependencies) initServices(cfg *config.Config) {
	d.Chat = chat.NewService(cfg, d.Decider, d.Orchestrator, d.Logger)

	uploader := openai.NewOpenAIAdapter(cfg.Providers.OpenAI, d.HTTPClient, d.Logger)
	storage := files.NewStorage(cfg.Storage.UploadDir, cfg.Storage.MaxUploadBytes)
	d.Files = files.NewService(cfg, d.Repos.Uploads, storage, uploader, d.Decider, d.Orchestrator, d.Cache, d.Logger)

	d.Planner = planner.NewService(d.Repos.Tasks, d.Cache, d.Logger)
	d.Integrations = integrations.NewService(d.Cache, d.Logger)
	d.Jobs = jobs.NewService(d.Repos, d.Files, d.Logger)
	d.RateLimiter = ratelimit.NewRateLimitService(cfg.RateLimit, d.Logger)

	d.Logger.Info("services initialized")
}

func (d *Dependencies) initHandlers(cfg *config.Config) {
	// a nil interface, never a typed nil, marks the database check disabled
	var db handlers.DatabaseChecker
	if d.DB != nil {
		db = d.DB
	}

	d.HealthHandler = handlers.NewHealthHandler(db, d.Cache, d.Logger)
	d.ChatHandler = handlers.NewChatHandler(d.Chat, cfg.Providers, d.Logger)
	d.FilesHandler = handlers.NewFilesHandler(d.Files, cfg.Storage.MaxUploadBytes, d.Logger)
	d.PlannerHandler = handlers.NewPlannerHandler(d.Planner, d.Logger)
	d.IntegrationsHandler = handlers.NewIntegrationsHandler(d.Integrations, d.Logger)
	d.JobsHandler = handlers.NewJobsHandler(d.Jobs, d.Logger)
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	if !cfg.Auth.Enabled() {
		d.Logger.Warn("AUTH_JWT_SECRET not set, API routes are unauthenticated")
		return
	}
	validator := auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	d.Logger.Info("bearer token auth enabled")
}

func (d *Dependencies) closeDatabase() {
	if d.RepoFactory == nil {
		return
	}
	if err := d.RepoFactory.Close(); err != nil {
		d.Logger.Warn("failed to close database", zap.Error(err))
	}
	d.RepoFactory = nil
	d.DB = nil
}

// Close gracefully shuts down all dependencies. It is safe to call twice.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Stop job workers first; they write through the repositories
	if d.Jobs != nil {
		if err := d.Jobs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop jobs: %w", err))
		}
	}

	if d.stopJanitor != nil {
		d.stopJanitor()
		d.stopJanitor = nil
	}

	if d.Cache != nil {
		if err := d.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close cache: %w", err))
		}
		d.Cache = nil
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	if d.HTTPClient != nil {
		d.HTTPClient.CloseIdleConnections()
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
