package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-engine/internal/backoff"
	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/observability"
	"github.com/kursadbilgin/notify-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRetryBatchSize = 100
	MaxRetryBatchSize     = 1000

	defaultRetryScanInterval = 30 * time.Second
	defaultRetryConcurrency  = 8
	defaultClaimLease        = 2 * time.Minute
)

type recordOutcome string

const (
	outcomeCompleted    recordOutcome = "completed"
	outcomeRescheduled  recordOutcome = "rescheduled"
	outcomeDeadLettered recordOutcome = "dead_lettered"
	outcomeSkipped      recordOutcome = "skipped"
	outcomeError        recordOutcome = "error"
)

type RetryProcessorConfig struct {
	BatchSize   int
	Concurrency int
	Interval    time.Duration
	// ClaimLease bounds how long a pass owns a record. A record whose
	// transition failed to persist becomes due again once it lapses.
	ClaimLease time.Duration
	Backoff    backoff.Options
	// DeadLetterPermanent dead-letters non-retryable failures on first sight
	// instead of spending the remaining attempt budget.
	DeadLetterPermanent bool
}

// ProcessSummary counts what one pass did. Failed counts send failures,
// whether rescheduled or dead-lettered.
type ProcessSummary struct {
	Processed    int `json:"processed"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"deadLettered"`
	Skipped      int `json:"skipped"`
	Errors       int `json:"errors"`
}

func (s *ProcessSummary) add(outcome recordOutcome) {
	s.Processed++
	switch outcome {
	case outcomeCompleted:
		s.Succeeded++
	case outcomeRescheduled:
		s.Failed++
	case outcomeDeadLettered:
		s.Failed++
		s.DeadLettered++
	case outcomeSkipped:
		s.Skipped++
	case outcomeError:
		s.Errors++
	}
}

// RetryProcessor drains due retry records and moves each one to completed,
// rescheduled or failed.
type RetryProcessor struct {
	retries repository.RetryRepository
	sender  ChannelSender
	cfg     RetryProcessorConfig
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
	newID   func() string
}

func NewRetryProcessor(
	retries repository.RetryRepository,
	sender ChannelSender,
	cfg RetryProcessorConfig,
	logger *zap.Logger,
) (*RetryProcessor, error) {
	if retries == nil {
		return nil, fmt.Errorf("retry repository is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("channel sender is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultRetryBatchSize
	}
	if cfg.BatchSize > MaxRetryBatchSize {
		cfg.BatchSize = MaxRetryBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultRetryConcurrency
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultRetryScanInterval
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = defaultClaimLease
	}
	if cfg.Backoff.InitialDelay <= 0 {
		random := cfg.Backoff.Random
		cfg.Backoff = backoff.ProcessorOptions(0, cfg.Backoff.MaxDelay)
		cfg.Backoff.Random = random
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryProcessor{
		retries: retries,
		sender:  sender,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}, nil
}

func (p *RetryProcessor) SetMetrics(metrics *observability.Metrics) {
	if p == nil {
		return
	}
	p.metrics = metrics
}

// Start runs a pass every interval until ctx is done.
func (p *RetryProcessor) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run once up front so records already due do not wait for the first tick.
	p.runPass(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.runPass(ctx)
		}
	}
}

func (p *RetryProcessor) runPass(ctx context.Context) {
	summary, err := p.Process(ctx, 0)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("retry processor pass failed", zap.Error(err))
		}
		return
	}
	if summary.Processed > 0 {
		p.logger.Info("retry processor pass finished",
			zap.Int("processed", summary.Processed),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
			zap.Int("deadLettered", summary.DeadLettered),
			zap.Int("skipped", summary.Skipped),
			zap.Int("errors", summary.Errors),
		)
	}
}

// Process runs one pass over at most batchSize due records. A non-positive
// batchSize uses the configured default. Only the due query can fail the
// pass; per-record faults are counted in the summary.
func (p *RetryProcessor) Process(ctx context.Context, batchSize int) (ProcessSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if batchSize <= 0 {
		batchSize = p.cfg.BatchSize
	}
	if batchSize > MaxRetryBatchSize {
		batchSize = MaxRetryBatchSize
	}

	due, err := p.retries.GetDue(ctx, p.now().UTC(), batchSize)
	if err != nil {
		return ProcessSummary{}, fmt.Errorf("failed to fetch due retry records: %w", err)
	}

	outcomes := make([]recordOutcome, len(due))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i := range due {
		i := i
		g.Go(func() error {
			outcomes[i] = p.processRecord(ctx, due[i])
			return nil
		})
	}
	_ = g.Wait()

	var summary ProcessSummary
	for _, outcome := range outcomes {
		summary.add(outcome)
	}
	return summary, nil
}

func (p *RetryProcessor) processRecord(ctx context.Context, record domain.RetryRecord) recordOutcome {
	logger := p.logger.With(
		zap.String("retryId", record.ID),
		zap.String("channel", record.Channel.String()),
		zap.Int("attemptNumber", record.AttemptNumber),
	)

	outcome := p.attempt(ctx, record, logger)
	p.metrics.IncRetryOutcome(record.Channel.String(), string(outcome))
	return outcome
}

func (p *RetryProcessor) attempt(ctx context.Context, record domain.RetryRecord, logger *zap.Logger) recordOutcome {
	token := p.newID()
	claimedAt := p.now().UTC()
	claimed, err := p.retries.Claim(ctx, record.ID, record.AttemptNumber, token, claimedAt, claimedAt.Add(p.cfg.ClaimLease))
	if err != nil {
		logger.Error("failed to claim retry record", zap.Error(err))
		return outcomeError
	}
	if !claimed {
		logger.Debug("retry record claimed by another pass, skipping")
		return outcomeSkipped
	}

	sendErr := p.send(ctx, record)
	now := p.now().UTC()

	if sendErr == nil {
		if err := p.retries.MarkCompleted(ctx, record.ID, token, now); err != nil {
			logger.Error("failed to mark retry record completed", zap.Error(err))
			return outcomeError
		}
		logger.Debug("retry record completed")
		return outcomeCompleted
	}

	// A send cut short by shutdown is not the channel's fault. The claim
	// lapses and the next pass retries at the same attempt number.
	if errors.Is(sendErr, context.Canceled) && ctx.Err() != nil {
		logger.Warn("retry pass interrupted, leaving record for next pass", zap.Error(sendErr))
		return outcomeError
	}

	attemptNumber := record.AttemptNumber + 1
	if attemptNumber > record.MaxAttempts {
		attemptNumber = record.MaxAttempts
	}
	permanent := p.cfg.DeadLetterPermanent && !backoff.IsRetryable(sendErr)

	if record.FinalAttempt() || permanent {
		deadLetter := p.deadLetterFor(record, sendErr, now)
		if err := p.retries.MarkFailed(ctx, record.ID, token, attemptNumber, now, deadLetter.ErrorMessage, deadLetter); err != nil {
			logger.Error("failed to dead-letter retry record", zap.Error(err), zap.NamedError("sendError", sendErr))
			return outcomeError
		}
		logger.Warn("retry record dead-lettered",
			zap.Int("finalAttempt", attemptNumber),
			zap.Bool("permanent", permanent),
			zap.Error(sendErr),
		)
		return outcomeDeadLettered
	}

	// Base the schedule on the later of now and the previous due time so
	// next_retry_at never moves backward.
	nextRetryAt := laterOf(now, record.NextRetryAt).Add(backoff.ComputeDelay(attemptNumber, p.cfg.Backoff))
	if err := p.retries.Reschedule(ctx, record.ID, token, attemptNumber, nextRetryAt, truncateError(sendErr)); err != nil {
		logger.Error("failed to reschedule retry record", zap.Error(err), zap.NamedError("sendError", sendErr))
		return outcomeError
	}
	logger.Debug("retry record rescheduled",
		zap.Time("nextRetryAt", nextRetryAt),
		zap.Error(sendErr),
	)
	return outcomeRescheduled
}

// send delivers the stored snapshot. A snapshot that cannot be decoded is a
// send failure like any other.
func (p *RetryProcessor) send(ctx context.Context, record domain.RetryRecord) error {
	snapshot, err := domain.DecodeSnapshot(record.Snapshot)
	if err != nil {
		return err
	}

	start := p.now()
	err = p.sender.Send(ctx, record.Channel, snapshot)
	p.metrics.ObserveChannelSendDuration(record.Channel.String(), p.now().Sub(start))
	return err
}

func (p *RetryProcessor) deadLetterFor(record domain.RetryRecord, sendErr error, failedAt time.Time) *domain.DeadLetterRecord {
	notificationType := "unknown"
	if snapshot, err := domain.DecodeSnapshot(record.Snapshot); err == nil && snapshot.Type != "" {
		notificationType = snapshot.Type
	}

	return &domain.DeadLetterRecord{
		ID:               p.newID(),
		RetryID:          record.ID,
		OwnerID:          record.OwnerID,
		NotificationType: notificationType,
		Channel:          record.Channel,
		Snapshot:         record.Snapshot,
		ErrorMessage:     truncateError(sendErr),
		FailedAt:         failedAt,
	}
}
