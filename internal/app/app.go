// Package app assembles the royalty services from configuration. Both the
// API server and the CLI build their dependency graph here.
package app

import (
	"context"
	"net/http"

	"github.com/turtacn/LicenseIQ-Royalty/internal/application/calculation"
	"github.com/turtacn/LicenseIQ-Royalty/internal/application/extraction"
	"github.com/turtacn/LicenseIQ-Royalty/internal/application/preview"
	"github.com/turtacn/LicenseIQ-Royalty/internal/application/rules"
	"github.com/turtacn/LicenseIQ-Royalty/internal/config"
	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/database/memory"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/database/postgres"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/database/postgres/repositories"
	redisinfra "github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/database/redis"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/storage/minio"
	"github.com/turtacn/LicenseIQ-Royalty/internal/intelligence/provider"
	httpapi "github.com/turtacn/LicenseIQ-Royalty/internal/interfaces/http"
	"github.com/turtacn/LicenseIQ-Royalty/internal/interfaces/http/handlers"
	"github.com/turtacn/LicenseIQ-Royalty/internal/interfaces/http/middleware"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Infrastructure holds the external clients. Disabled backends stay nil.
type Infrastructure struct {
	Postgres *postgres.Connection
	Redis    *redisinfra.Client
	Producer *kafka.Producer
	MinIO    *minio.Client
}

// Close releases every open client.
func (i *Infrastructure) Close(log logging.Logger) {
	if i.Producer != nil {
		if err := i.Producer.Close(); err != nil {
			log.Warn("kafka producer close failed", logging.Err(err))
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			log.Warn("redis close failed", logging.Err(err))
		}
	}
	if i.Postgres != nil {
		if err := i.Postgres.Close(); err != nil {
			log.Warn("postgres close failed", logging.Err(err))
		}
	}
}

// App is the assembled service graph.
type App struct {
	Config    *config.Config
	Logger    logging.Logger
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics
	Infra     *Infrastructure

	Repository   royalty.RuleRepository
	Orchestrator *provider.Orchestrator
	Rules        rules.Service
	Extraction   extraction.Service
	Calculation  calculation.Service
	Preview      preview.Service
}

type options struct {
	repo     royalty.RuleRepository
	primary  provider.Adapter
	fallback provider.Adapter
	chatOpts []provider.ChatOption
}

// Option overrides part of the graph, mainly for tests.
type Option func(*options)

// WithRuleRepository uses repo instead of the configured database driver.
func WithRuleRepository(repo royalty.RuleRepository) Option {
	return func(o *options) { o.repo = repo }
}

// WithAdapters replaces the Groq and OpenAI adapters.
func WithAdapters(primary, fallback provider.Adapter) Option {
	return func(o *options) { o.primary, o.fallback = primary, fallback }
}

// WithChatOptions is passed to both chat clients.
func WithChatOptions(opts ...provider.ChatOption) Option {
	return func(o *options) { o.chatOpts = append(o.chatOpts, opts...) }
}

// New connects the enabled backends and builds the services. On error every
// client opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.InvalidParam("config is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{Config: cfg, Logger: logger, Infra: &Infrastructure{}}
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfigFrom(cfg.Metrics), logger)
	if err != nil {
		return nil, err
	}
	a.Collector = collector
	a.Metrics = prometheus.NewAppMetrics(collector)

	if err := a.initInfrastructure(ctx, o); err != nil {
		a.Infra.Close(logger)
		return nil, err
	}
	if err := a.initServices(o); err != nil {
		a.Infra.Close(logger)
		return nil, err
	}
	logger.Info("application assembled",
		logging.String("database", cfg.Database.Driver),
		logging.Bool("redis", a.Infra.Redis != nil),
		logging.Bool("kafka", a.Infra.Producer != nil),
		logging.Bool("minio", a.Infra.MinIO != nil))
	return a, nil
}

func (a *App) initInfrastructure(ctx context.Context, o *options) error {
	cfg, log := a.Config, a.Logger

	switch {
	case o.repo != nil:
		a.Repository = o.repo
	case cfg.Database.Driver == "postgres":
		conn, err := postgres.NewConnection(cfg.Database, log)
		if err != nil {
			return err
		}
		a.Infra.Postgres = conn
		if cfg.Database.AutoMigrate {
			if err := migrateUp(ctx, conn, cfg.Database.MigrationPath, log); err != nil {
				return err
			}
		}
		a.Repository = repositories.NewRuleRepository(conn, log, repositories.WithQueryRecorder(a.Metrics))
	default:
		a.Repository = memory.NewRuleRepository()
	}

	if cfg.Redis.Enabled {
		client, err := redisinfra.NewClient(cfg.Redis, log)
		if err != nil {
			return err
		}
		a.Infra.Redis = client
	}
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), log)
		if err != nil {
			return err
		}
		a.Infra.Producer = producer
	}
	if cfg.MinIO.Enabled {
		client, err := minio.NewClient(cfg.MinIO, log)
		if err != nil {
			return err
		}
		a.Infra.MinIO = client
	}
	return nil
}

func migrateUp(ctx context.Context, conn *postgres.Connection, dir string, log logging.Logger) error {
	m, err := postgres.NewMigrator(ctx, conn, dir, log)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

func (a *App) initServices(o *options) error {
	cfg, log := a.Config, a.Logger

	primary, fallback := o.primary, o.fallback
	if primary == nil || fallback == nil {
		schemas, err := provider.CompileSchemas()
		if err != nil {
			return err
		}
		primary = provider.NewGroqAdapter(chatConfig(cfg.Providers.Groq), schemas, log, a.Metrics, o.chatOpts...)
		fallback = provider.NewOpenAIAdapter(chatConfig(cfg.Providers.OpenAI), schemas, log, a.Metrics, o.chatOpts...)
	}
	tracker := provider.NewHealthTracker(provider.GroqName, provider.HealthConfig{
		MaxFailures: cfg.Breaker.MaxFailures,
		Cooldown:    cfg.Breaker.Cooldown,
	}, log, provider.WithStateListener(provider.MetricsListener(a.Metrics)))
	orch, err := provider.NewOrchestrator(primary, fallback, tracker, provider.OrchestratorConfig{
		FallbackInterval:    cfg.Validation.FallbackDelay,
		ValidationBatchSize: cfg.Validation.BatchSize,
		ValidationTimeout:   cfg.Validation.ItemTimeout,
		Filter: provider.NewTextFilter(cfg.Extraction.ContextLines,
			cfg.Extraction.FilterMinLength, cfg.Extraction.FallbackLength),
		BatchMetrics: a.Metrics,
	}, log, a.Metrics)
	if err != nil {
		return err
	}
	a.Orchestrator = orch

	ruleCfg := rules.DefaultConfig()
	if t := cfg.Extraction.ReviewThreshold; t != nil {
		ruleCfg.ReviewThreshold = *t
	}
	ruleSvc, err := rules.NewService(a.Repository, ruleCfg, log)
	if err != nil {
		return err
	}
	a.Rules = ruleSvc

	var publisher *kafka.EventPublisher
	if a.Infra.Producer != nil {
		publisher = kafka.NewEventPublisher(a.Infra.Producer, log)
	}

	extOpts := []extraction.Option{extraction.WithMetrics(a.Metrics)}
	if a.Infra.Redis != nil {
		extOpts = append(extOpts,
			extraction.WithCache(redisinfra.NewRedisCache(a.Infra.Redis, log,
				redisinfra.WithPrefix(cfg.Redis.KeyPrefix),
				redisinfra.WithDefaultTTL(cfg.Redis.DefaultTTL),
				redisinfra.WithAccessRecorder(a.Metrics))),
			extraction.WithLocker(redisinfra.NewLocker(a.Infra.Redis, log)))
	}
	if a.Infra.MinIO != nil {
		extOpts = append(extOpts, extraction.WithArchive(minio.NewArchive(a.Infra.MinIO, log)))
	}
	if publisher != nil {
		extOpts = append(extOpts, extraction.WithPublisher(publisher))
	}
	extCfg := extraction.DefaultConfig()
	extCfg.CacheTTL = cfg.Extraction.CacheTTL
	a.Extraction, err = extraction.NewService(orch, ruleSvc, extCfg, log, extOpts...)
	if err != nil {
		return err
	}

	tieBreak := royalty.TieBreakPolicy(cfg.Calculation.TieBreakPolicy)
	engine, err := calculation.NewEngine(calculation.Config{
		Workers:         cfg.Calculation.Workers,
		TieBreak:        tieBreak,
		MoneyScale:      cfg.Calculation.MoneyScale,
		AggregateVolume: cfg.Calculation.AggregateVolume,
	}, log)
	if err != nil {
		return err
	}
	calcOpts := []calculation.ServiceOption{calculation.WithMetrics(a.Metrics)}
	if publisher != nil {
		calcOpts = append(calcOpts, calculation.WithPublisher(publisher))
	}
	a.Calculation, err = calculation.NewService(engine, ruleSvc, log, calcOpts...)
	if err != nil {
		return err
	}

	a.Preview, err = preview.NewService(ruleSvc, preview.Config{
		PerCategory:     cfg.Preview.PerCategory,
		TieBreak:        tieBreak,
		AggregateVolume: cfg.Calculation.AggregateVolume,
	}, log)
	return err
}

func chatConfig(p config.ProviderConfig) provider.ChatConfig {
	return provider.ChatConfig{
		BaseURL:     p.BaseURL,
		APIKey:      p.APIKey,
		Model:       p.Model,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Timeout:     p.Timeout,
		MaxRetries:  p.MaxRetries,
		RetryBase:   p.RetryBase,
		RatePerSec:  p.RatePerSec,
	}
}

// HealthCheckers returns one readiness check per connected backend.
func (a *App) HealthCheckers() []handlers.HealthChecker {
	var checkers []handlers.HealthChecker
	if a.Infra.Postgres != nil {
		checkers = append(checkers, handlers.NewChecker("postgres", a.Infra.Postgres.HealthCheck))
	}
	if a.Infra.Redis != nil {
		checkers = append(checkers, handlers.NewChecker("redis", a.Infra.Redis.Ping))
	}
	if a.Infra.MinIO != nil {
		checkers = append(checkers, handlers.NewChecker("minio", a.Infra.MinIO.HealthCheck))
	}
	return checkers
}

// Router builds the HTTP route tree over the services.
func (a *App) Router() http.Handler {
	cfg := a.Config
	contracts := handlers.NewContractHandler(a.Extraction, a.Rules, a.Calculation, a.Preview, a.Logger,
		handlers.WithMaxBodySize(cfg.Server.MaxBodySize))
	health := handlers.NewHealthHandler(Version, a.Logger, a.HealthCheckers(),
		handlers.WithProviderStatus(a.Orchestrator),
		handlers.WithHealthReporter(a.Metrics))

	rc := httpapi.RouterConfig{
		ContractHandler: contracts,
		HealthHandler:   health,
		Logging:         middleware.DefaultLoggingConfig(),
		Logger:          a.Logger,
		HTTPMetrics:     a.Metrics,
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		cors := middleware.DefaultCORSConfig()
		cors.AllowedOrigins = cfg.Server.CORSOrigins
		rc.CORS = &cors
	}
	if cfg.Server.RateLimitRPS > 0 {
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.Server.RateLimitRPS
		rl.Burst = cfg.Server.RateLimitBurst
		rc.RateLimiter = middleware.NewRateLimiter(rl)
	}
	if cfg.Auth.Enabled {
		ac := middleware.DefaultAuthConfig()
		ac.APIKeys = cfg.Auth.APIKeys
		ac.JWTSecret = cfg.Auth.JWTSecret
		ac.JWTIssuer = cfg.Auth.JWTIssuer
		rc.Auth = middleware.NewAuthenticator(ac, a.Logger.Named("auth"))
	}
	if cfg.Metrics.Enabled {
		rc.MetricsHandler = a.Collector.Handler()
		rc.MetricsPath = cfg.Metrics.Path
	}
	return httpapi.NewRouter(rc)
}

// Close releases the infrastructure clients.
func (a *App) Close() {
	a.Infra.Close(a.Logger)
}
