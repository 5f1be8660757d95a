package handler

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/notify-engine/internal/observability"
	"github.com/kursadbilgin/notify-engine/internal/service"
	"github.com/kursadbilgin/notify-engine/internal/transport"
	"go.uber.org/zap"
)

// Dependencies are the collaborators of the HTTP API. Metrics and
// ReadinessChecks are optional.
type Dependencies struct {
	Dispatch        DispatchService
	Inbox           InboxService
	Processor       RetryQueueProcessor
	Digests         service.DigestRunner
	DeadLetters     DeadLetterLister
	Limiter         RateLimiter
	Metrics         *observability.Metrics
	ReadinessChecks []ReadinessCheck
	Logger          *zap.Logger
}

func NewApp(deps Dependencies) (*fiber.App, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(CorrelationMiddleware())
	if deps.Metrics != nil {
		app.Use(deps.Metrics.HTTPMiddleware())
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))
	}

	RegisterHealthRoutes(app, deps.ReadinessChecks...)

	v1 := app.Group("/v1")
	if err := RegisterRateLimitRoutes(v1, deps.Limiter); err != nil {
		return nil, err
	}

	// Registered after the check route so the check is never counted twice.
	guarded := v1.Group("", RateLimitMiddleware(deps.Limiter))
	if err := RegisterNotificationRoutes(guarded, deps.Dispatch, deps.Inbox); err != nil {
		return nil, err
	}
	if err := RegisterJobRoutes(guarded, deps.Processor, deps.Digests, deps.DeadLetters); err != nil {
		return nil, err
	}

	return app, nil
}
