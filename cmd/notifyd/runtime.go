package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/kursadbilgin/notify-engine/internal/backoff"
	"github.com/kursadbilgin/notify-engine/internal/config"
	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/infra/postgresql"
	infraredis "github.com/kursadbilgin/notify-engine/internal/infra/redis"
	"github.com/kursadbilgin/notify-engine/internal/observability"
	"github.com/kursadbilgin/notify-engine/internal/provider"
	"github.com/kursadbilgin/notify-engine/internal/queue"
	"github.com/kursadbilgin/notify-engine/internal/ratelimit"
	"github.com/kursadbilgin/notify-engine/internal/repository"
	"github.com/kursadbilgin/notify-engine/internal/service"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runtime owns the process-wide connections of one command.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics

	db    *gorm.DB
	sqlDB *sql.DB
	rdb   goredis.UniversalClient
	mq    *queue.RabbitMQ

	closers []func() error
}

type services struct {
	registry    *provider.Registry
	limiter     *ratelimit.Limiter
	dispatch    *service.DispatchService
	inbox       *service.InboxService
	processor   *service.RetryProcessor
	digests     *service.DigestAggregator
	deadLetters *repository.GormDeadLetterRepo
	rateLog     *repository.GormRateLimitLogRepo
}

// newDatabaseRuntime loads configuration and connects postgres only.
func newDatabaseRuntime(ctx context.Context, role string) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.LogLevel, role)
	if err != nil {
		log.Printf("failed to initialize logger: %v", err)
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger}
	rt.onClose(func() error {
		_ = logger.Sync()
		return nil
	})

	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, postgresql.PoolFor(cfg.RetryConcurrency))
	if err != nil {
		logger.Error("postgres initialization failed", zap.Error(err))
		rt.Close()
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	rt.db = db
	rt.sqlDB = sqlDB
	rt.onClose(sqlDB.Close)

	return rt, nil
}

// newRuntime connects every backing service: postgres, redis and RabbitMQ.
func newRuntime(ctx context.Context, role string) (*runtime, error) {
	rt, err := newDatabaseRuntime(ctx, role)
	if err != nil {
		return nil, err
	}
	rt.metrics = observability.NewMetrics()

	rdb, err := infraredis.NewClient(ctx, rt.cfg.RedisURL, rt.cfg.RetryConcurrency*2+10)
	if err != nil {
		rt.logger.Error("redis initialization failed", zap.Error(err))
		rt.Close()
		return nil, err
	}
	rt.rdb = rdb
	rt.onClose(rdb.Close)

	mq, err := queue.NewRabbitMQ(rt.cfg.RabbitMQURL)
	if err != nil {
		rt.logger.Error("rabbitmq initialization failed", zap.Error(err))
		rt.Close()
		return nil, err
	}
	rt.mq = mq
	rt.onClose(mq.Close)

	return rt, nil
}

func (rt *runtime) onClose(fn func() error) {
	rt.closers = append(rt.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && rt.logger != nil {
			rt.logger.Warn("failed to release resource", zap.Error(err))
		}
	}
	rt.closers = nil
}

func (rt *runtime) services() (*services, error) {
	cfg := rt.cfg

	retries := repository.NewGormRetryRepo(rt.db)
	notifications := repository.NewGormNotificationRepo(rt.db)
	preferences := repository.NewGormPreferenceRepo(rt.db)
	rateLog := repository.NewGormRateLimitLogRepo(rt.db)

	registry, err := rt.channelRegistry(notifications)
	if err != nil {
		return nil, err
	}

	var logStore ratelimit.LogStore = rateLog
	if cfg.UsesRedisRateLimit() {
		store, err := infraredis.NewRateLimitLogStore(rt.rdb, cfg.RateLimitLogRetention)
		if err != nil {
			return nil, err
		}
		logStore = store
	}
	limiter, err := ratelimit.NewLimiter(logStore, rt.logger.Named("ratelimit"))
	if err != nil {
		return nil, err
	}
	limiter.SetMetrics(rt.metrics)

	retryBackoff := backoff.ProcessorOptions(cfg.RetryInitialDelay, cfg.RetryMaxDelay)

	dispatch, err := service.NewDispatchService(retries, registry, service.DispatchConfig{
		ImmediateRetries: cfg.ImmediateSendRetries,
		MaxAttempts:      cfg.RetryMaxAttempts,
		RetryBackoff:     retryBackoff,
	}, rt.logger.Named("dispatch"))
	if err != nil {
		return nil, err
	}
	dispatch.SetMetrics(rt.metrics)

	processor, err := service.NewRetryProcessor(retries, registry, service.RetryProcessorConfig{
		BatchSize:           cfg.RetryBatchSize,
		Concurrency:         cfg.RetryConcurrency,
		Interval:            cfg.RetryScanInterval,
		ClaimLease:          cfg.RetryClaimLease,
		Backoff:             retryBackoff,
		DeadLetterPermanent: cfg.RetryDeadLetterPermanent,
	}, rt.logger.Named("retry_processor"))
	if err != nil {
		return nil, err
	}
	processor.SetMetrics(rt.metrics)

	digestChannels, err := cfg.DigestChannelList()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.DigestLocation()
	if err != nil {
		return nil, err
	}
	digests, err := service.NewDigestAggregator(preferences, notifications, registry, service.DigestConfig{
		Channels: digestChannels,
		Location: loc,
	}, rt.logger.Named("digest"))
	if err != nil {
		return nil, err
	}
	digests.SetMetrics(rt.metrics)

	inbox, err := service.NewInboxService(notifications, preferences)
	if err != nil {
		return nil, err
	}

	return &services{
		registry:    registry,
		limiter:     limiter,
		dispatch:    dispatch,
		inbox:       inbox,
		processor:   processor,
		digests:     digests,
		deadLetters: repository.NewGormDeadLetterRepo(rt.db),
		rateLog:     rateLog,
	}, nil
}

// channelRegistry wires one sender per channel. Gateway bound senders are
// throttled to CHANNEL_SEND_RATE_PER_SEC.
func (rt *runtime) channelRegistry(notifications *repository.GormNotificationRepo) (*provider.Registry, error) {
	cfg := rt.cfg
	rate := cfg.ChannelSendRatePerSec
	burst := int(rate)

	email, err := provider.NewWebhookSender(domain.ChannelEmail, cfg.EmailWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("email sender: %w", err)
	}
	sms, err := provider.NewWebhookSender(domain.ChannelSMS, cfg.SMSWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("sms sender: %w", err)
	}
	push, err := provider.NewPushSender(queue.NewRabbitMQPublisher(rt.mq))
	if err != nil {
		return nil, fmt.Errorf("push sender: %w", err)
	}
	inApp, err := provider.NewInAppSender(notifications)
	if err != nil {
		return nil, fmt.Errorf("in-app sender: %w", err)
	}

	registry := provider.NewRegistry()
	err = errors.Join(
		registry.Register(domain.ChannelEmail, provider.NewThrottled(email, rate, burst)),
		registry.Register(domain.ChannelSMS, provider.NewThrottled(sms, rate, burst)),
		registry.Register(domain.ChannelPush, provider.NewThrottled(push, rate, burst)),
		registry.Register(domain.ChannelInApp, inApp),
	)
	if err != nil {
		return nil, err
	}
	return registry, nil
}

func (rt *runtime) jobScheduler(svc *services) (*service.JobScheduler, error) {
	loc, err := rt.cfg.DigestLocation()
	if err != nil {
		return nil, err
	}

	// The redis store trims itself on append, so pruning only applies to postgres.
	var pruner service.RateLimitLogPruner
	if !rt.cfg.UsesRedisRateLimit() {
		pruner = svc.rateLog
	}

	return service.NewJobScheduler(svc.digests, pruner, service.JobConfig{
		DailyDigestSchedule:  rt.cfg.DigestDailySchedule,
		WeeklyDigestSchedule: rt.cfg.DigestWeeklySchedule,
		PruneSchedule:        rt.cfg.PruneSchedule,
		Location:             loc,
		LogRetention:         rt.cfg.RateLimitLogRetention,
	}, rt.logger.Named("jobs"))
}

func (rt *runtime) intentConsumer(svc *services) (*service.IntentConsumer, error) {
	consumer := queue.NewRabbitMQConsumer(rt.mq, rt.cfg.IntentConsumers, rt.logger.Named("intent_consumer"))
	return service.NewIntentConsumer(consumer, svc.dispatch, rt.cfg.IntentConsumers, rt.logger.Named("intent_consumer"))
}
