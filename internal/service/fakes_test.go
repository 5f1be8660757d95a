package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/queue"
	"github.com/kursadbilgin/notify-engine/internal/repository"
)

type fakeRetryRepo struct {
	enqueueFn       func(ctx context.Context, r *domain.RetryRecord) error
	getByIDFn       func(ctx context.Context, id string) (*domain.RetryRecord, error)
	getDueFn        func(ctx context.Context, now time.Time, limit int) ([]domain.RetryRecord, error)
	claimFn         func(ctx context.Context, id string, attemptNumber int, token string, now time.Time, until time.Time) (bool, error)
	markCompletedFn func(ctx context.Context, id string, token string, completedAt time.Time) error
	rescheduleFn    func(ctx context.Context, id string, token string, attemptNumber int, nextRetryAt time.Time, lastError string) error
	markFailedFn    func(ctx context.Context, id string, token string, attemptNumber int, failedAt time.Time, finalError string, deadLetter *domain.DeadLetterRecord) error
}

var _ repository.RetryRepository = (*fakeRetryRepo)(nil)

func (f *fakeRetryRepo) Enqueue(ctx context.Context, r *domain.RetryRecord) error {
	if f.enqueueFn != nil {
		return f.enqueueFn(ctx, r)
	}
	return nil
}

func (f *fakeRetryRepo) GetByID(ctx context.Context, id string) (*domain.RetryRecord, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRetryRepo) GetDue(ctx context.Context, now time.Time, limit int) ([]domain.RetryRecord, error) {
	if f.getDueFn != nil {
		return f.getDueFn(ctx, now, limit)
	}
	return nil, nil
}

func (f *fakeRetryRepo) Claim(ctx context.Context, id string, attemptNumber int, token string, now time.Time, until time.Time) (bool, error) {
	if f.claimFn != nil {
		return f.claimFn(ctx, id, attemptNumber, token, now, until)
	}
	return true, nil
}

func (f *fakeRetryRepo) MarkCompleted(ctx context.Context, id string, token string, completedAt time.Time) error {
	if f.markCompletedFn != nil {
		return f.markCompletedFn(ctx, id, token, completedAt)
	}
	return nil
}

func (f *fakeRetryRepo) Reschedule(ctx context.Context, id string, token string, attemptNumber int, nextRetryAt time.Time, lastError string) error {
	if f.rescheduleFn != nil {
		return f.rescheduleFn(ctx, id, token, attemptNumber, nextRetryAt, lastError)
	}
	return nil
}

func (f *fakeRetryRepo) MarkFailed(ctx context.Context, id string, token string, attemptNumber int, failedAt time.Time, finalError string, deadLetter *domain.DeadLetterRecord) error {
	if f.markFailedFn != nil {
		return f.markFailedFn(ctx, id, token, attemptNumber, failedAt, finalError, deadLetter)
	}
	return nil
}

type sentMessage struct {
	Channel  domain.Channel
	Snapshot domain.NotificationSnapshot
}

type fakeSender struct {
	mu     sync.Mutex
	sendFn func(ctx context.Context, channel domain.Channel, snapshot domain.NotificationSnapshot) error
	sent   []sentMessage
}

func (f *fakeSender) Send(ctx context.Context, channel domain.Channel, snapshot domain.NotificationSnapshot) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{Channel: channel, Snapshot: snapshot})
	fn := f.sendFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, channel, snapshot)
	}
	return nil
}

func (f *fakeSender) calls() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeNotificationRepo struct {
	createFn               func(ctx context.Context, n *domain.NotificationRecord) (bool, error)
	getByIDFn              func(ctx context.Context, id string) (*domain.NotificationRecord, error)
	listForOwnerFn         func(ctx context.Context, ownerID string, params repository.InboxParams) ([]domain.NotificationRecord, error)
	listDigestCandidatesFn func(ctx context.Context, ownerID string, since time.Time, until time.Time) ([]domain.NotificationRecord, error)
	markReadFn             func(ctx context.Context, ids []string, readAt time.Time) (int64, error)
	markOneReadFn          func(ctx context.Context, ownerID string, id string, readAt time.Time) error
}

var _ repository.NotificationRepository = (*fakeNotificationRepo)(nil)

func (f *fakeNotificationRepo) Create(ctx context.Context, n *domain.NotificationRecord) (bool, error) {
	if f.createFn != nil {
		return f.createFn(ctx, n)
	}
	return true, nil
}

func (f *fakeNotificationRepo) GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) ListForOwner(ctx context.Context, ownerID string, params repository.InboxParams) ([]domain.NotificationRecord, error) {
	if f.listForOwnerFn != nil {
		return f.listForOwnerFn(ctx, ownerID, params)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) ListDigestCandidates(ctx context.Context, ownerID string, since time.Time, until time.Time) ([]domain.NotificationRecord, error) {
	if f.listDigestCandidatesFn != nil {
		return f.listDigestCandidatesFn(ctx, ownerID, since, until)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) MarkRead(ctx context.Context, ids []string, readAt time.Time) (int64, error) {
	if f.markReadFn != nil {
		return f.markReadFn(ctx, ids, readAt)
	}
	return int64(len(ids)), nil
}

func (f *fakeNotificationRepo) MarkOneRead(ctx context.Context, ownerID string, id string, readAt time.Time) error {
	if f.markOneReadFn != nil {
		return f.markOneReadFn(ctx, ownerID, id, readAt)
	}
	return nil
}

type fakePreferenceRepo struct {
	upsertFn                func(ctx context.Context, p *domain.NotificationPreference) error
	getFn                   func(ctx context.Context, ownerID string) (*domain.NotificationPreference, error)
	listOwnersByFrequencyFn func(ctx context.Context, frequency domain.DigestFrequency) ([]string, error)
}

var _ repository.PreferenceRepository = (*fakePreferenceRepo)(nil)

func (f *fakePreferenceRepo) Upsert(ctx context.Context, p *domain.NotificationPreference) error {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, p)
	}
	return nil
}

func (f *fakePreferenceRepo) Get(ctx context.Context, ownerID string) (*domain.NotificationPreference, error) {
	if f.getFn != nil {
		return f.getFn(ctx, ownerID)
	}
	return nil, domain.ErrNotFound
}

func (f *fakePreferenceRepo) ListOwnersByFrequency(ctx context.Context, frequency domain.DigestFrequency) ([]string, error) {
	if f.listOwnersByFrequencyFn != nil {
		return f.listOwnersByFrequencyFn(ctx, frequency)
	}
	return nil, nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.IntentHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.IntentHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

type fakeDispatcher struct {
	dispatchFn func(ctx context.Context, req DispatchRequest) (*DispatchResult, error)
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	if f.dispatchFn != nil {
		return f.dispatchFn(ctx, req)
	}
	return &DispatchResult{}, nil
}
