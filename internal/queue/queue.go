package queue

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notify-engine/internal/domain"
)

const (
	// IntentQueue receives notification intents from producers.
	IntentQueue = "notify.intents"
	// PushQueue carries push deliveries to the push gateway.
	PushQueue = "notify.push"

	// queueMaxPriority is the RabbitMQ x-max-priority value for work queues.
	queueMaxPriority int32 = 4
)

// Envelope is a message the publisher can place on a queue.
type Envelope interface {
	Validate() error
	Headers() (messageID string, correlationID string, priority domain.Priority)
}

// Publisher publishes messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg Envelope) error
}

// IntentHandler handles a consumed notification intent.
type IntentHandler func(ctx context.Context, msg IntentMessage) error

// Consumer consumes notification intents from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler IntentHandler) error
}

var workQueues = []string{IntentQueue, PushQueue}

// DLQName returns the dead-letter queue of a work queue, e.g. dlq.notify.push.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// WorkQueueNames returns all declared work queues.
func WorkQueueNames() []string {
	return append([]string(nil), workQueues...)
}

// DLQNames returns all declared dead-letter queues.
func DLQNames() []string {
	queues := make([]string, 0, len(workQueues))
	for _, q := range workQueues {
		queues = append(queues, DLQName(q))
	}
	return queues
}

// PriorityValue maps domain priority to RabbitMQ message priority.
func PriorityValue(priority domain.Priority) uint8 {
	switch priority {
	case domain.PriorityUrgent:
		return 4
	case domain.PriorityHigh:
		return 3
	case domain.PriorityNormal:
		return 2
	case domain.PriorityLow:
		return 1
	default:
		return 0
	}
}
