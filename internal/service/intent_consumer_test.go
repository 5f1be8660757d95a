package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/queue"
)

func TestIntentConsumerHandleIntent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		dispatchErr error
		channels    []string
		wantErr     bool
		wantCalled  bool
	}{
		{name: "dispatched", channels: []string{"email", "in-app"}, wantCalled: true},
		{name: "validation failure is dropped", channels: []string{"email"}, dispatchErr: domain.ErrValidation, wantCalled: true},
		{name: "unknown channel is dropped before dispatch", channels: []string{"fax"}},
		{name: "transient failure is returned for redelivery", channels: []string{"sms"}, dispatchErr: errors.New("db down"), wantErr: true, wantCalled: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			called := false
			dispatcher := &fakeDispatcher{dispatchFn: func(_ context.Context, req DispatchRequest) (*DispatchResult, error) {
				called = true
				if req.UserID != "u1" || len(req.Channels) != len(tt.channels) {
					t.Errorf("request = %+v", req)
				}
				return &DispatchResult{}, tt.dispatchErr
			}}
			c, err := NewIntentConsumer(&fakeConsumer{}, dispatcher, 1, nil)
			if err != nil {
				t.Fatalf("NewIntentConsumer() error = %v", err)
			}

			err = c.handleIntent(context.Background(), queue.IntentMessage{
				UserID:        "u1",
				Type:          "order_shipped",
				Message:       "on its way",
				Channels:      tt.channels,
				CorrelationID: "c-1",
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("handleIntent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if called != tt.wantCalled {
				t.Fatalf("dispatcher called = %v, want %v", called, tt.wantCalled)
			}
		})
	}
}

func TestDispatchRequestFromIntentParsesChannels(t *testing.T) {
	t.Parallel()

	req, err := DispatchRequestFromIntent(queue.IntentMessage{
		UserID:   "u1",
		Channels: []string{"in-app", "PUSH"},
		Deferred: true,
	})
	if err != nil {
		t.Fatalf("DispatchRequestFromIntent() error = %v", err)
	}
	if len(req.Channels) != 2 || req.Channels[0] != domain.ChannelInApp || req.Channels[1] != domain.ChannelPush {
		t.Fatalf("channels = %v", req.Channels)
	}
	if !req.Deferred {
		t.Fatal("deferred flag should carry over")
	}
}

func TestIntentConsumerStartRunsWorkers(t *testing.T) {
	t.Parallel()

	var started atomic.Int32
	consumer := &fakeConsumer{consumeFn: func(ctx context.Context, queueName string, handler queue.IntentHandler) error {
		if queueName != queue.IntentQueue {
			t.Errorf("queue = %s, want %s", queueName, queue.IntentQueue)
		}
		started.Add(1)
		<-ctx.Done()
		return nil
	}}
	c, err := NewIntentConsumer(consumer, &fakeDispatcher{}, 3, nil)
	if err != nil {
		t.Fatalf("NewIntentConsumer() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	deadline := time.After(time.Second)
	for started.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("started workers = %d, want 3", started.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}
