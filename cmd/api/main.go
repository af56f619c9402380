package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"atende_backend/internal/adapters/storage"
	"atende_backend/internal/assistant"
	"atende_backend/internal/billing"
	"atende_backend/internal/booking"
	"atende_backend/internal/conversation"
	"atende_backend/internal/events"
	"atende_backend/internal/fiscal"
	apphttp "atende_backend/internal/http"
	"atende_backend/internal/http/router"
	"atende_backend/internal/scheduler"
	"atende_backend/internal/tenants"
	"atende_backend/internal/webhook"
	"atende_backend/internal/whatsapp"
	"atende_backend/platform/ai/completion"
	"atende_backend/platform/config"
	"atende_backend/platform/db"
	"atende_backend/platform/logger"
	"atende_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"google.golang.org/adk/model"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool, cfg.MigrationsDir)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	eventBus := events.NewInMemoryBus(log)

	rdb := initRedis(ctx, cfg, log)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	reminderScheduler, closeScheduler := initReminderScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	docs := initDocumentStorage(ctx, cfg, log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	conversationModule := conversation.NewModule(pool)
	tenantsModule := tenants.NewModule(pool, cfg.GetSettingsCacheTTL())

	loc, err := time.LoadLocation(cfg.GetDefaultTimezone())
	if err != nil {
		loc = time.UTC
	}
	bookingEngine := booking.NewEngine(booking.NewRepository(pool), reminderScheduler, eventBus, loc, log).
		WithLeadTime(cfg.GetCancellationLeadTime())
	fiscalService := fiscal.NewService(fiscal.NewRepository(pool), docs, cfg.GetMinioBucketFiscalDocuments(), log)
	billingService := billing.NewService(billing.NewRepository(pool))

	prompts := assistant.MustLoadPrompts()
	deps := assistant.Deps{
		Store:           conversationModule.Store(),
		Logs:            conversationModule.MessageLog(),
		Settings:        tenantsModule.Settings(),
		Booking:         bookingEngine,
		Fiscal:          fiscalService,
		Billing:         billingService,
		Loop:            assistant.NewLoop(initCompletionModel(cfg, log), prompts.Fallback, log),
		Args:            assistant.NewArgDecoder(validator.New()),
		Prompts:         prompts,
		EventBus:        eventBus,
		Log:             log,
		DefaultTimezone: cfg.GetDefaultTimezone(),
		DefaultMaxSteps: cfg.GetMaxToolSteps(),
	}
	if client := whatsapp.NewClient(cfg, log); client != nil {
		deps.Sender = client
	} else {
		log.Warn("WHATSAPP_URL not configured; replies will be recorded but not delivered")
	}
	assistantEngine := assistant.NewEngine(deps)

	webhookModule := webhook.NewModule(pool, rdb, tenantsModule.Resolver(), assistantEngine, eventBus, cfg, log)
	webhookModule.RegisterHandlers(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			webhookModule,
			conversationModule,
			tenantsModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		drained := make(chan struct{})
		go func() {
			eventBus.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-shutdownCtx.Done():
			log.Warn("event handlers still running at shutdown")
		}
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; webhook dedup uses the database window")
		return nil
	}

	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Error("invalid REDIS_URL; webhook dedup uses the database window", "error", err)
		return nil
	}
	if opt.TLSConfig != nil && cfg.GetRedisTLSInsecure() {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis not reachable at startup", "error", err)
	}
	return rdb
}

func initReminderScheduler(cfg config.SchedulerConfig, log *logger.Logger) (booking.ReminderScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; appointment reminders disabled")
		return nil, nil
	}

	reminderClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize reminder scheduler client", "error", err)
		return nil, nil
	}

	return reminderClient, func() {
		_ = reminderClient.Close()
	}
}

func initDocumentStorage(ctx context.Context, cfg config.MinIOConfig, log *logger.Logger) storage.ObjectStore {
	if !cfg.IsMinIOEnabled() {
		log.Warn("MINIO_ENDPOINT not configured; fiscal documents unavailable")
		return nil
	}

	storageSvc, err := storage.NewMinIOService(cfg)
	if err != nil {
		log.Error("failed to initialize storage service", "error", err)
		return nil
	}

	bucket := cfg.GetMinioBucketFiscalDocuments()
	if err := withRetry(ctx, log, "ensure fiscal-documents bucket", 5, 2*time.Second, func() error {
		return storageSvc.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
		return nil
	}
	log.Info("storage service initialized", "fiscalDocumentsBucket", bucket)
	return storageSvc
}

func initCompletionModel(cfg config.LLMConfig, log *logger.Logger) model.LLM {
	if !cfg.IsLLMEnabled() {
		log.Warn("LLM_API_KEY not configured; completion loop disabled")
		return nil
	}
	return completion.NewModel(completion.Config{
		APIKey:  cfg.GetLLMAPIKey(),
		BaseURL: cfg.GetLLMBaseURL(),
		Model:   cfg.GetLLMModel(),
		Timeout: cfg.GetLLMTimeout(),
	})
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
