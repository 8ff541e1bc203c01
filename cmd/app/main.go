// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"uniai-studio/internal/config"
	"uniai-studio/internal/infra/adapters/provider"
	"uniai-studio/internal/infra/api"
	apiv1 "uniai-studio/internal/infra/api/apiv1"
	pg "uniai-studio/internal/infra/db/postgres"
	"uniai-studio/internal/infra/logging"
	"uniai-studio/internal/infra/metrics"
	red "uniai-studio/internal/infra/redis"
	"uniai-studio/internal/infra/sched"
	"uniai-studio/internal/infra/security"
	"uniai-studio/internal/infra/storage"
	"uniai-studio/internal/infra/worker"
	"uniai-studio/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted keys)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Bool("dev", cfg.Runtime.Dev).Msg("starting uniai-studio")

	// ---- Postgres ----
	if cfg.Database.AutoMigrate {
		if err := pg.Migrate(cfg.Database.URL, logger); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
	}
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, cfg.Database.StatsEvery, logger)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	taskRepo := pg.NewTaskRepoCacheDecorator(pg.NewTaskRepo(pool), redisClient, cfg.Redis.TTL)
	settingRepo := pg.NewSettingRepoCacheDecorator(pg.NewSettingRepo(pool), redisClient, cfg.Redis.SettingsTTL)

	// ---- Providers & storage ----
	registry, err := provider.BuildRegistry(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("providers")
	}
	for _, m := range registry.Catalog() {
		logger.Debug().Str("model", m.Name).Str("provider", m.Provider).Msg("model registered")
	}

	var sealer usecase.SecretSealer
	if cfg.Security.EncryptionKey != "" {
		box, err := security.NewSecretBox(cfg.Security.EncryptionKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("secret box")
		}
		sealer = box
	} else {
		logger.Warn().Msg("security.encryption_key not set; secret settings stored in plain text")
	}
	settingsUC := usecase.NewSettingsUseCase(settingRepo, sealer, cfg, logger)
	blobs := storage.NewDynamicS3(settingsUC, cfg.Storage.Timeout, logger)
	relocator := storage.NewRelocator(blobs, cfg.Storage.Concurrency, cfg.Storage.Timeout, logger)

	// ---- Background dispatch ----
	workers := worker.NewPool(ctx, cfg.Generation.MaxInFlight, logger)
	processor := worker.NewGenerationProcessor(taskRepo, registry, relocator, workers, cfg.Generation.TaskTimeout, logger)

	// ---- Use cases ----
	genUC := usecase.NewGenerationUseCase(taskRepo, registry, settingsUC, processor,
		cfg.Generation.BatchStagger, cfg.Generation.MaxBatch, logger)
	retentionUC := usecase.NewRetentionUseCase(taskRepo, blobs, locker, red.RetentionLockKey(),
		cfg.Retention.Days, cfg.Retention.BatchSize, cfg.Generation.StaleAfter, logger)

	// ---- HTTP ----
	auth := apiv1.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.APIKey, cfg.Admin.TokenTTL)
	if !auth.Enabled() {
		logger.Warn().Msg("admin.api_key or admin.jwt_secret not set; admin routes disabled")
	}
	v1 := apiv1.NewServer(genUC, settingsUC, retentionUC, auth, apiv1.Options{
		Limiter:         rateLimiter,
		SubmitPerMinute: cfg.HTTP.SubmitPerMinute,
		TrustForwarded:  cfg.HTTP.TrustForwarded,
	}, logger)
	health := func(ctx context.Context) error { return pool.Ping(ctx) }
	server := api.NewServer(cfg.HTTP.Port, cfg.HTTP.RequestTimeout, health, func(r chi.Router) {
		apiv1.RegisterAPIV1(r, v1)
	}, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Retention worker ----
	retention := sched.NewRetentionWorker(cfg.Retention.Interval, cfg.Retention.SweepInterval, retentionUC, logger)
	go func() { _ = retention.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}
	logger.Info().Int("in_flight", workers.InFlight()).Msg("shutdown requested")

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Generation.TaskTimeout+10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	if err := workers.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("background tasks cancelled at deadline")
	}
	cancel()
}
