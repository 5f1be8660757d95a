package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/observability"
	"github.com/kursadbilgin/notify-engine/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error)
}

// IntentConsumer feeds notification intents from the broker into the dispatcher.
type IntentConsumer struct {
	consumer    queue.Consumer
	dispatcher  Dispatcher
	concurrency int
	logger      *zap.Logger
}

func NewIntentConsumer(consumer queue.Consumer, dispatcher Dispatcher, concurrency int, logger *zap.Logger) (*IntentConsumer, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IntentConsumer{
		consumer:    consumer,
		dispatcher:  dispatcher,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// Start consumes the intent queue until ctx is cancelled.
func (c *IntentConsumer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < c.concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			c.logger.Info("intent consumer started", zap.Int("workerId", workerID))
			if err := c.consumer.Consume(groupCtx, queue.IntentQueue, c.handleIntent); err != nil {
				c.logger.Error("intent consumer stopped with error", zap.Int("workerId", workerID), zap.Error(err))
				return err
			}
			c.logger.Info("intent consumer stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (c *IntentConsumer) handleIntent(ctx context.Context, msg queue.IntentMessage) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	logger := observability.WithContextLogger(c.logger, ctx)

	req, err := DispatchRequestFromIntent(msg)
	if err == nil {
		_, err = c.dispatcher.Dispatch(ctx, req)
	}
	if err == nil {
		return nil
	}

	// Invalid intents never succeed on redelivery.
	if errors.Is(err, domain.ErrValidation) {
		logger.Warn("dropping invalid notification intent",
			zap.String("userId", msg.UserID),
			zap.String("type", msg.Type),
			zap.Error(err),
		)
		return nil
	}
	return err
}

func DispatchRequestFromIntent(msg queue.IntentMessage) (DispatchRequest, error) {
	channels := make([]domain.Channel, 0, len(msg.Channels))
	for _, raw := range msg.Channels {
		ch, err := domain.ParseChannelFromString(raw)
		if err != nil {
			return DispatchRequest{}, err
		}
		channels = append(channels, ch)
	}

	return DispatchRequest{
		NotificationID: msg.NotificationID,
		UserID:         msg.UserID,
		Type:           msg.Type,
		Title:          msg.Title,
		Message:        msg.Message,
		Metadata:       msg.Metadata,
		Priority:       msg.Priority,
		Channels:       channels,
		Recipient:      msg.Recipient,
		Deferred:       msg.Deferred,
	}, nil
}
