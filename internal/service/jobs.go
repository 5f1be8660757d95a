package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	defaultJobTimeout   = 10 * time.Minute
	defaultLogRetention = 24 * time.Hour
)

type DigestRunner interface {
	Run(ctx context.Context, period domain.DigestFrequency) (DigestSummary, error)
}

// RateLimitLogPruner deletes rate-limit log rows older than cutoff.
type RateLimitLogPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// JobConfig holds cron expressions. An empty expression disables that job.
type JobConfig struct {
	DailyDigestSchedule  string
	WeeklyDigestSchedule string
	PruneSchedule        string
	Location             *time.Location
	LogRetention         time.Duration
	JobTimeout           time.Duration
}

// JobScheduler runs periodic digest and storage hygiene jobs.
type JobScheduler struct {
	cron    *cron.Cron
	digests DigestRunner
	pruner  RateLimitLogPruner
	cfg     JobConfig
	logger  *zap.Logger
	now     func() time.Time
}

func NewJobScheduler(digests DigestRunner, pruner RateLimitLogPruner, cfg JobConfig, logger *zap.Logger) (*JobScheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LogRetention <= 0 {
		cfg.LogRetention = defaultLogRetention
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronLog := cronLogger{logger: logger.Sugar()}
	s := &JobScheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		digests: digests,
		pruner:  pruner,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}

	if digests != nil {
		if err := s.add("daily digest", cfg.DailyDigestSchedule, func(ctx context.Context) error {
			return s.runDigest(ctx, domain.DigestDaily)
		}); err != nil {
			return nil, err
		}
		if err := s.add("weekly digest", cfg.WeeklyDigestSchedule, func(ctx context.Context) error {
			return s.runDigest(ctx, domain.DigestWeekly)
		}); err != nil {
			return nil, err
		}
	}
	if pruner != nil {
		if err := s.add("rate limit log prune", cfg.PruneSchedule, s.pruneRateLimitLog); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *JobScheduler) add(name string, spec string, job func(ctx context.Context) error) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		s.logger.Info("job disabled", zap.String("job", name))
		return nil
	}

	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
		defer cancel()

		if err := job(ctx); err != nil {
			s.logger.Error("job failed", zap.String("job", name), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("%w: invalid schedule %q for %s: %v", domain.ErrValidation, spec, name, err)
	}
	return nil
}

// Start runs the cron loop until ctx is done, then waits for running jobs.
func (s *JobScheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.cron.Start()
	s.logger.Info("job scheduler started",
		zap.Int("jobs", len(s.cron.Entries())),
		zap.String("tz", s.cfg.Location.String()),
	)

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("job scheduler stopped")
	return nil
}

func (s *JobScheduler) runDigest(ctx context.Context, period domain.DigestFrequency) error {
	summary, err := s.digests.Run(ctx, period)
	if err != nil {
		return err
	}
	s.logger.Info("digest run finished",
		zap.String("period", period.String()),
		zap.Int("processed", summary.Processed),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
	)
	return nil
}

func (s *JobScheduler) pruneRateLimitLog(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.cfg.LogRetention)
	deleted, err := s.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune rate limit log: %w", err)
	}
	s.logger.Info("rate limit log pruned", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	return nil
}

// cronLogger adapts zap to the cron.Logger interface.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
