package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/ratelimit"
	"github.com/kursadbilgin/notify-engine/internal/repository"
	"github.com/kursadbilgin/notify-engine/internal/service"
)

type stubDispatchService struct {
	dispatchFn func(ctx context.Context, req service.DispatchRequest) (*service.DispatchResult, error)
}

func (s *stubDispatchService) Dispatch(ctx context.Context, req service.DispatchRequest) (*service.DispatchResult, error) {
	if s.dispatchFn != nil {
		return s.dispatchFn(ctx, req)
	}
	return &service.DispatchResult{NotificationID: "n-1"}, nil
}

type stubInboxService struct {
	listFn          func(ctx context.Context, ownerID string, params repository.InboxParams) ([]domain.NotificationRecord, error)
	markReadFn      func(ctx context.Context, ownerID string, id string) error
	getPreferenceFn func(ctx context.Context, ownerID string) (*domain.NotificationPreference, error)
	setFrequencyFn  func(ctx context.Context, ownerID string, frequency domain.DigestFrequency) (*domain.NotificationPreference, error)
}

func (s *stubInboxService) List(ctx context.Context, ownerID string, params repository.InboxParams) ([]domain.NotificationRecord, error) {
	if s.listFn != nil {
		return s.listFn(ctx, ownerID, params)
	}
	return nil, nil
}

func (s *stubInboxService) MarkRead(ctx context.Context, ownerID string, id string) error {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, ownerID, id)
	}
	return nil
}

func (s *stubInboxService) GetPreference(ctx context.Context, ownerID string) (*domain.NotificationPreference, error) {
	if s.getPreferenceFn != nil {
		return s.getPreferenceFn(ctx, ownerID)
	}
	return &domain.NotificationPreference{OwnerID: ownerID, DigestFrequency: domain.DigestNone}, nil
}

func (s *stubInboxService) SetDigestFrequency(ctx context.Context, ownerID string, frequency domain.DigestFrequency) (*domain.NotificationPreference, error) {
	if s.setFrequencyFn != nil {
		return s.setFrequencyFn(ctx, ownerID, frequency)
	}
	return &domain.NotificationPreference{OwnerID: ownerID, DigestFrequency: frequency}, nil
}

type stubProcessor struct {
	processFn func(ctx context.Context, batchSize int) (service.ProcessSummary, error)
}

func (s *stubProcessor) Process(ctx context.Context, batchSize int) (service.ProcessSummary, error) {
	if s.processFn != nil {
		return s.processFn(ctx, batchSize)
	}
	return service.ProcessSummary{}, nil
}

type stubDigestRunner struct {
	runFn func(ctx context.Context, period domain.DigestFrequency) (service.DigestSummary, error)
}

func (s *stubDigestRunner) Run(ctx context.Context, period domain.DigestFrequency) (service.DigestSummary, error) {
	if s.runFn != nil {
		return s.runFn(ctx, period)
	}
	return service.DigestSummary{Period: period}, nil
}

type stubDeadLetters struct {
	listFn func(ctx context.Context, filter repository.DeadLetterFilter) ([]domain.DeadLetterRecord, error)
}

func (s *stubDeadLetters) List(ctx context.Context, filter repository.DeadLetterFilter) ([]domain.DeadLetterRecord, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return nil, nil
}

type stubLimiter struct {
	checkFn func(ctx context.Context, identity string, endpoint string) (ratelimit.Decision, ratelimit.Config)
}

func (s *stubLimiter) CheckEndpoint(ctx context.Context, identity string, endpoint string) (ratelimit.Decision, ratelimit.Config) {
	if s.checkFn != nil {
		return s.checkFn(ctx, identity, endpoint)
	}
	return admitted(ratelimit.ConfigFor(ratelimit.ProfileForEndpoint(endpoint)))
}

func (s *stubLimiter) CheckRoute(ctx context.Context, identity string, method string, path string) (ratelimit.Decision, ratelimit.Config) {
	if s.checkFn != nil {
		return s.checkFn(ctx, identity, ratelimit.RouteClass(method, path))
	}
	return admitted(ratelimit.ConfigFor(ratelimit.ProfileForEndpoint(method + " " + path)))
}

func admitted(cfg ratelimit.Config) (ratelimit.Decision, ratelimit.Config) {
	return ratelimit.Decision{
		Allowed:   true,
		Limit:     cfg.MaxRequests,
		Remaining: cfg.MaxRequests - 1,
		ResetAt:   time.Now().Add(cfg.Window),
	}, cfg
}

// newTestApp fills every dependency left nil with a permissive stub.
func newTestApp(t *testing.T, deps Dependencies) *fiber.App {
	t.Helper()

	if deps.Dispatch == nil {
		deps.Dispatch = &stubDispatchService{}
	}
	if deps.Inbox == nil {
		deps.Inbox = &stubInboxService{}
	}
	if deps.Processor == nil {
		deps.Processor = &stubProcessor{}
	}
	if deps.Digests == nil {
		deps.Digests = &stubDigestRunner{}
	}
	if deps.DeadLetters == nil {
		deps.DeadLetters = &stubDeadLetters{}
	}
	if deps.Limiter == nil {
		deps.Limiter = &stubLimiter{}
	}

	app, err := NewApp(deps)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}
