package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-engine/internal/backoff"
	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/observability"
	"go.uber.org/zap"
)

// ChannelOutcome is the per-channel result of a dispatch.
type ChannelOutcome string

const (
	OutcomeDelivered ChannelOutcome = "delivered"
	OutcomeQueued    ChannelOutcome = "queued"
)

// RetryEnqueuer is the slice of the retry queue store the dispatcher writes to.
type RetryEnqueuer interface {
	Enqueue(ctx context.Context, r *domain.RetryRecord) error
}

// DispatchRequest is a producer's intent to notify one user.
type DispatchRequest struct {
	NotificationID string
	UserID         string
	Type           string
	Title          string
	Message        string
	Metadata       map[string]any
	Priority       domain.Priority
	Channels       []domain.Channel
	Recipient      string
	Deferred       bool
}

type ChannelResult struct {
	Channel domain.Channel
	Outcome ChannelOutcome
	RetryID string
	Error   string
}

type DispatchResult struct {
	NotificationID string
	Channels       []ChannelResult
}

type DispatchConfig struct {
	// ImmediateRetries is the number of in-process retries before a send is queued.
	ImmediateRetries int
	MaxAttempts      int
	ImmediateBackoff backoff.Options
	RetryBackoff     backoff.Options
}

type DispatchService struct {
	retries RetryEnqueuer
	sender  ChannelSender
	cfg     DispatchConfig
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewDispatchService(
	retries RetryEnqueuer,
	sender ChannelSender,
	cfg DispatchConfig,
	logger *zap.Logger,
) (*DispatchService, error) {
	if retries == nil {
		return nil, fmt.Errorf("retry repository is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("channel sender is required")
	}
	if cfg.ImmediateRetries < 0 {
		cfg.ImmediateRetries = 0
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = domain.DefaultMaxAttempts
	}
	if cfg.MaxAttempts > domain.MaxAllowedAttempts {
		cfg.MaxAttempts = domain.MaxAllowedAttempts
	}
	if cfg.ImmediateBackoff.InitialDelay <= 0 {
		cfg.ImmediateBackoff = backoff.Options{
			Strategy:     backoff.Exponential,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Jitter:       true,
		}
	}
	if cfg.RetryBackoff.InitialDelay <= 0 {
		cfg.RetryBackoff = backoff.ProcessorOptions(0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchService{
		retries: retries,
		sender:  sender,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (s *DispatchService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Dispatch fans the request out to its channels. Each channel is either
// delivered now or handed to the retry queue with an immutable snapshot.
func (s *DispatchService) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	snapshot, channels, err := prepareDispatch(req)
	if err != nil {
		return nil, err
	}

	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("notificationId", snapshot.NotificationID),
		zap.String("ownerId", snapshot.OwnerID),
	)

	result := &DispatchResult{
		NotificationID: snapshot.NotificationID,
		Channels:       make([]ChannelResult, 0, len(channels)),
	}

	for _, channel := range channels {
		// Digestible in-app notifications land in the inbox right away so the
		// digest can pick them up, even when the intent itself is deferred.
		sendNow := !req.Deferred || (channel == domain.ChannelInApp && snapshot.Priority.Digestible())

		var sendErr error
		if sendNow {
			sendErr = backoff.Retry(ctx, s.cfg.ImmediateRetries, s.cfg.ImmediateBackoff, func(ctx context.Context) error {
				return s.sender.Send(ctx, channel, snapshot)
			})
			if sendErr == nil {
				s.metrics.IncDispatchOutcome(channel.String(), string(OutcomeDelivered))
				result.Channels = append(result.Channels, ChannelResult{Channel: channel, Outcome: OutcomeDelivered})
				continue
			}
			logger.Warn("immediate send failed, queueing retry",
				zap.String("channel", channel.String()),
				zap.Error(sendErr),
			)
		}

		record, err := s.enqueue(ctx, snapshot, channel, sendErr)
		if err != nil {
			logger.Error("failed to enqueue retry record",
				zap.String("channel", channel.String()),
				zap.Error(err),
			)
			return result, fmt.Errorf("failed to enqueue %s delivery: %w", channel, err)
		}

		s.metrics.IncDispatchOutcome(channel.String(), string(OutcomeQueued))
		channelResult := ChannelResult{Channel: channel, Outcome: OutcomeQueued, RetryID: record.ID}
		if sendErr != nil {
			channelResult.Error = truncateError(sendErr)
		}
		result.Channels = append(result.Channels, channelResult)
	}

	return result, nil
}

func (s *DispatchService) enqueue(
	ctx context.Context,
	snapshot domain.NotificationSnapshot,
	channel domain.Channel,
	sendErr error,
) (*domain.RetryRecord, error) {
	raw, err := snapshot.Encode()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	nextRetryAt := now
	var errorMessage *string
	if sendErr != nil {
		nextRetryAt = now.Add(backoff.ComputeDelay(0, s.cfg.RetryBackoff))
		msg := truncateError(sendErr)
		errorMessage = &msg
	}

	record := &domain.RetryRecord{
		ID:            uuid.NewString(),
		OwnerID:       snapshot.OwnerID,
		Channel:       channel,
		Snapshot:      raw,
		Status:        domain.RetryStatusPending,
		AttemptNumber: 0,
		MaxAttempts:   s.cfg.MaxAttempts,
		NextRetryAt:   nextRetryAt,
		CreatedAt:     now,
		ErrorMessage:  errorMessage,
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	if err := s.retries.Enqueue(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func prepareDispatch(req DispatchRequest) (domain.NotificationSnapshot, []domain.Channel, error) {
	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}

	notificationID := strings.TrimSpace(req.NotificationID)
	if notificationID == "" {
		notificationID = uuid.NewString()
	} else if _, err := uuid.Parse(notificationID); err != nil {
		return domain.NotificationSnapshot{}, nil, fmt.Errorf("%w: notification id must be a uuid", domain.ErrValidation)
	}

	snapshot := domain.NotificationSnapshot{
		NotificationID: notificationID,
		OwnerID:        strings.TrimSpace(req.UserID),
		Type:           strings.TrimSpace(req.Type),
		Title:          strings.TrimSpace(req.Title),
		Message:        req.Message,
		Metadata:       req.Metadata,
		Priority:       priority,
		Recipient:      strings.TrimSpace(req.Recipient),
	}
	if snapshot.Type == domain.NotificationTypeDigest {
		return domain.NotificationSnapshot{}, nil, fmt.Errorf("%w: type %q is reserved", domain.ErrValidation, domain.NotificationTypeDigest)
	}

	if len(req.Channels) == 0 {
		return domain.NotificationSnapshot{}, nil, fmt.Errorf("%w: at least one channel is required", domain.ErrValidation)
	}
	seen := make(map[domain.Channel]struct{}, len(req.Channels))
	channels := make([]domain.Channel, 0, len(req.Channels))
	for _, ch := range req.Channels {
		if _, dup := seen[ch]; dup {
			continue
		}
		if err := snapshot.ValidateFor(ch); err != nil {
			return domain.NotificationSnapshot{}, nil, err
		}
		seen[ch] = struct{}{}
		channels = append(channels, ch)
	}

	return snapshot, channels, nil
}
