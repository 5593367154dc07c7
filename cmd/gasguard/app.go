package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gasguard/common/database"
	"gasguard/common/logger"
	commonredis "gasguard/common/redis"
	"gasguard/internal/config"
	"gasguard/internal/evaluator"
	httpapi "gasguard/internal/http"
	"gasguard/internal/notifier"
	"gasguard/internal/repository"
	"gasguard/internal/service"
	"gasguard/internal/store"
	"gasguard/internal/telemetry"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// auditConsumerGroup 看板读取审计事件流使用的消费者组
const auditConsumerGroup = "dashboard"

// repositories 四类仓库（Postgres 或内存）
type repositories struct {
	readings repository.ReadingsRepository
	devices  repository.DevicesRepository
	prefs    repository.PreferencesRepository
	audits   repository.NotificationAuditRepository
}

// app 组装后的服务
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	db    *sql.DB
	redis *redis.Client
	repos repositories

	metrics   *telemetry.Metrics
	bootstrap *service.Bootstrap
	pruner    *service.Pruner
	ingest    *service.IngestService
	router    *httpapi.Router
}

func newLogger() (*zap.Logger, error) {
	l, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "gasguard")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l, nil
}

// openRepositories DB_ENABLED=false 时使用内存仓库（本地联调）
func openRepositories(cfg *config.Config, logger *zap.Logger) (*sql.DB, repositories, error) {
	if !cfg.DBEnabled {
		logger.Warn("DB disabled, using in-memory repositories")
		mem := repository.NewMemoryStore()
		return nil, repositories{readings: mem, devices: mem, prefs: mem, audits: mem}, nil
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, repositories{}, err
	}
	return db, repositories{
		readings: repository.NewPostgresReadingsRepository(db, logger),
		devices:  repository.NewPostgresDevicesRepository(db, logger),
		prefs:    repository.NewPostgresPreferencesRepository(db, logger),
		audits:   repository.NewPostgresNotificationAuditRepository(db, logger),
	}, nil
}

// openRedis Redis 可选；连接失败时降级为单实例模式
func openRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) *redis.Client {
	client, err := commonredis.Connect(ctx, &cfg.Redis, 3*time.Second)
	if err != nil {
		logger.Warn("Redis unavailable, continuing without distributed lock and cache", zap.Error(err))
		return nil
	}
	if client != nil {
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	}
	return client
}

func newSender(cfg *config.Config, logger *zap.Logger) notifier.Sender {
	switch cfg.Email.Provider {
	case "resend":
		return notifier.NewResendSender(cfg.Email.APIURL, cfg.Email.APIKey, cfg.Email.From, logger)
	case "smtp":
		return notifier.NewSMTPSender(notifier.SMTPConfig{
			Host: cfg.Email.SMTPHost,
			Port: cfg.Email.SMTPPort,
			User: cfg.Email.SMTPUser,
			Pass: cfg.Email.SMTPPass,
			From: cfg.Email.From,
		}, logger)
	default:
		logger.Warn("Email provider is log-only, alerts will not be delivered", zap.String("provider", cfg.Email.Provider))
		return notifier.NewLogSender(logger)
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	table, err := cfg.Alert.Thresholds()
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.New(otel.GetMeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	db, repos, err := openRepositories(cfg, logger)
	if err != nil {
		return nil, err
	}
	redisClient := openRedis(ctx, cfg, logger)

	a := &app{cfg: cfg, logger: logger, db: db, redis: redisClient, repos: repos, metrics: metrics}

	var (
		locker    notifier.Locker = notifier.NewLocalLocker()
		cache     store.KV
		publisher notifier.AuditPublisher
		steps     []service.BootstrapStep
	)
	if db != nil {
		steps = append(steps, service.BootstrapStep{Name: "migrate", Run: func(ctx context.Context) error {
			_, err := runMigrations(ctx, db, logger)
			return err
		}})
	}
	// 本地锁之外再叠加跨副本的锁：共享数据库的 advisory lock，以及可选的 Redis 锁
	chain := []notifier.Locker{locker}
	if db != nil {
		chain = append(chain, repository.NewPostgresAdvisoryLocker(db, cfg.Alert.LockTTL, logger))
	}
	if redisClient != nil {
		chain = append(chain, store.NewRedisLocker(redisClient, cfg.Alert.LockTTL, logger))
	}
	if len(chain) > 1 {
		locker = notifier.NewChainLocker(chain...)
	}
	if redisClient != nil {
		cache = store.NewRedisKV(redisClient)
		streamPublisher := store.NewAuditStreamPublisher(redisClient, cfg.Alert.AuditStream)
		publisher = streamPublisher
		steps = append(steps, service.BootstrapStep{Name: "audit-stream", Run: func(ctx context.Context) error {
			return streamPublisher.EnsureConsumerGroup(ctx, auditConsumerGroup)
		}})
	}
	a.bootstrap = service.NewBootstrap(logger, steps...)

	loc := cfg.Alert.Location()
	classifier := evaluator.NewClassifier(table)
	streaks := evaluator.NewStreakDetector(repos.readings, classifier, cfg.Alert.RequiredConsecutiveAlerts, logger)
	gate := notifier.NewGate(repos.audits, notifier.GateOptions{
		SensorScoped: cfg.Alert.CooldownScope == config.CooldownScopeSensor,
		Location:     loc,
	}, logger)
	prefs := notifier.NewPreferenceResolver(repos.prefs, cache, cfg.Alert.PreferenceCacheTTL,
		cfg.Alert.DefaultCooldownMinutes, cfg.Alert.DefaultMaxPerHour, logger)
	sender := newSender(cfg, logger)
	dispatcher := notifier.NewDispatcher(gate, prefs, sender, repos.audits, locker, notifier.DispatcherOptions{
		SendTimeout: cfg.Email.SendTimeout,
		Location:    loc,
		Publisher:   publisher,
		Metrics:     metrics,
	}, logger)

	a.pruner = service.NewPruner(repos.readings, metrics, logger)
	a.ingest = service.NewIngestService(repos.readings, repos.devices, classifier, streaks, dispatcher, a.pruner, metrics, service.IngestOptions{
		NotifyAsync:      cfg.Alert.NotifyAsync,
		MaxReadings:      cfg.Retention.MaxReadings,
		PruneProbability: cfg.Retention.PruneProbability,
	}, logger)

	a.router = httpapi.NewRouter(logger)
	a.router.RegisterSensorRoutes(httpapi.NewSensorHandler(a.ingest, service.NewReadingService(repos.readings, a.pruner, logger), logger))
	a.router.RegisterNotificationRoutes(httpapi.NewNotificationHandler(
		service.NewNotificationService(repos.audits, repos.prefs, prefs, loc, logger),
		service.NewEmailCheckService(sender, cfg.Email.SendTimeout, loc, logger),
		loc, logger))
	a.router.RegisterDeviceRoutes(httpapi.NewDeviceHandler(service.NewDeviceService(repos.devices, a.bootstrap, logger), logger))

	return a, nil
}

// Close 释放数据库与 Redis 连接
func (a *app) Close() {
	if err := commonredis.Close(a.redis); err != nil {
		a.logger.Warn("Failed to close redis", zap.Error(err))
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("Failed to close database", zap.Error(err))
	}
}

func runMigrations(ctx context.Context, db *sql.DB, logger *zap.Logger) (int, error) {
	runner, err := repository.NewMigrationsRunner(db, logger)
	if err != nil {
		return 0, err
	}
	return runner.Run(ctx)
}
