package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"skinscan-backend/internal/analyses"
	"skinscan-backend/internal/fanout"
	"skinscan-backend/internal/llm"
	openai "skinscan-backend/internal/llm/openai"
	"skinscan-backend/internal/queue"
	"skinscan-backend/internal/quota"
	"skinscan-backend/internal/scancache"
	"skinscan-backend/internal/services/health"
	"skinscan-backend/internal/shared/config"
	"skinscan-backend/internal/shared/server"
	"skinscan-backend/internal/shared/storage/db"
	"skinscan-backend/internal/shared/storage/object"
	localstore "skinscan-backend/internal/shared/storage/object/local"
	s3store "skinscan-backend/internal/shared/storage/object/s3"
	"skinscan-backend/internal/shared/telemetry"
	"skinscan-backend/internal/vision"
	"skinscan-backend/internal/vision/huggingface"
)

// App holds shared dependencies.
type App struct {
	Config          config.Config
	Router          *gin.Engine
	DB              *sql.DB
	CacheStore      scancache.Store
	Cache           *scancache.Gate
	Quota           *quota.Service
	Archive         object.ImageArchive
	Events          queue.Publisher
	Fanout          *fanout.Executor
	Primary         llm.Analyzer
	AnalysesRepo    analyses.Repo
	AnalysesService *analyses.Service
	AnalysisHandler *analyses.Handler
	QuotaHandler    *quota.Handler
	Health          *health.Service

	closers []func() error
}

// Build prepares every dependency and the router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}

	app := &App{Config: cfg, Health: health.NewService()}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if sqlDB != nil {
		app.DB = sqlDB
		app.closers = append(app.closers, sqlDB.Close)
		app.Health.Register("postgres", sqlDB.PingContext)
	}

	if err := app.buildCache(); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.buildServices(ctx); err != nil {
		app.Close()
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		AnalysisHandler: app.AnalysisHandler,
		QuotaHandler:    app.QuotaHandler,
		Health:          app.Health,
	})
	return app, nil
}

// Start launches background maintenance tied to ctx.
func (a *App) Start(ctx context.Context) {
	go a.Cache.RunJanitor(ctx)
}

// Close releases stores in reverse construction order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Info("bootstrap.memory_stores", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_stores", map[string]any{"reason": "database connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	if isDevLike(cfg.Env) {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

func (a *App) buildCache() error {
	switch a.Config.CacheStore {
	case "badger":
		store, err := scancache.OpenBadger(a.Config.BadgerDir)
		if err != nil {
			return fmt.Errorf("open badger cache: %w", err)
		}
		a.CacheStore = store
		a.closers = append(a.closers, store.Close)
	case "postgres":
		if a.DB == nil {
			telemetry.Warn("bootstrap.cache_fallback", map[string]any{"wanted": "postgres", "using": "memory"})
			a.CacheStore = scancache.NewMemoryStore()
		} else {
			a.CacheStore = scancache.NewPGStore(a.DB)
		}
	default:
		a.CacheStore = scancache.NewMemoryStore()
	}
	a.Cache = scancache.NewGate(a.CacheStore, a.Config.CacheTTL)
	store := a.CacheStore
	a.Health.Register("cache", func(ctx context.Context) error {
		_, err := store.Stats(ctx, time.Now())
		return err
	})
	return nil
}

func (a *App) buildServices(ctx context.Context) error {
	cfg := a.Config

	if _, ok := quota.PlanByName(cfg.DefaultQuotaPlan); !ok {
		return fmt.Errorf("DEFAULT_QUOTA_PLAN %q: %w", cfg.DefaultQuotaPlan, quota.ErrUnknownPlan)
	}
	if a.DB != nil {
		a.Quota = quota.NewPostgresService(quota.NewPGStore(a.DB), cfg.DefaultQuotaPlan)
		a.AnalysesRepo = &analyses.PGRepo{DB: a.DB}
	} else {
		a.Quota = quota.NewService(cfg.DefaultQuotaPlan)
		a.AnalysesRepo = analyses.NewMemoryRepo()
	}

	models, err := vision.LoadRegistry(cfg.ModelRegistryPath)
	if err != nil {
		return fmt.Errorf("load model registry: %w", err)
	}
	provider := huggingface.New(ctx, cfg.HFToken, cfg.HFBaseURL, cfg.FanoutTimeout)
	a.Fanout = fanout.New(provider, models, cfg.FanoutTimeout, cfg.FanoutConcurrency)

	primary, err := buildPrimary(cfg)
	if err != nil {
		return err
	}
	a.Primary = primary

	archive, err := buildArchive(ctx, cfg)
	if err != nil {
		return err
	}
	a.Archive = archive

	events, err := buildEvents(ctx, cfg)
	if err != nil {
		return err
	}
	a.Events = events

	opts := analyses.Options{
		Cache:           a.Cache,
		Quota:           a.Quota,
		Fanout:          a.Fanout,
		Primary:         a.Primary,
		PrimaryModel:    cfg.PrimaryModel,
		PrimaryTimeout:  cfg.PrimaryTimeout,
		PipelineTimeout: cfg.PipelineTimeout,
		Recorder:        analyses.NewRecorder(a.Quota, a.Cache, a.Events),
		Repo:            a.AnalysesRepo,
		Archive:         a.Archive,
		AIEnabled:       cfg.AIEscalationGlobal,
	}
	a.AnalysesService = analyses.NewService(opts)
	a.AnalysisHandler = analyses.NewHandler(a.AnalysesService, a.Cache)
	a.QuotaHandler = quota.NewHandler(a.Quota)

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":           cfg.Env,
		"cache_store":   cfg.CacheStore,
		"postgres":      a.DB != nil,
		"models":        len(models),
		"primary_model": cfg.PrimaryModel,
		"ai_enabled":    cfg.AIEscalationGlobal,
		"object_store":  cfg.ObjectStoreType,
		"events":        cfg.SQSQueueURL != "",
	})
	return nil
}

func buildPrimary(cfg config.Config) (llm.Analyzer, error) {
	if cfg.PrimaryProvider != "openai" || strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		telemetry.Warn("bootstrap.primary_disabled", map[string]any{"provider": cfg.PrimaryProvider})
		return llm.Disabled{}, nil
	}
	costPer1K, err := decimal.NewFromString(cfg.PrimaryCostPer1K)
	if err != nil {
		return nil, fmt.Errorf("PRIMARY_COST_PER_1K_USD: %w", err)
	}
	client, err := openai.NewClient(openai.Options{
		APIKey:    cfg.OpenAIAPIKey,
		Model:     cfg.PrimaryModel,
		BaseURL:   cfg.OpenAIBaseURL,
		MaxTokens: cfg.PrimaryMaxTokens,
		Timeout:   cfg.PrimaryTimeout,
		CostPer1K: costPer1K,
	})
	if err != nil {
		return nil, err
	}
	return llm.WithRetry(client), nil
}

func buildArchive(ctx context.Context, cfg config.Config) (object.ImageArchive, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "local":
		return localstore.New(cfg.LocalStoreDir), nil
	default:
		return nil, nil
	}
}

func buildEvents(ctx context.Context, cfg config.Config) (queue.Publisher, error) {
	if strings.TrimSpace(cfg.SQSQueueURL) == "" {
		return queue.Discard{}, nil
	}
	return queue.NewSQSPublisher(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
