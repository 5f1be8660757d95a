package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/repository"
	"github.com/kursadbilgin/notify-engine/internal/service"
)

type RetryQueueProcessor interface {
	Process(ctx context.Context, batchSize int) (service.ProcessSummary, error)
}

type DeadLetterLister interface {
	List(ctx context.Context, filter repository.DeadLetterFilter) ([]domain.DeadLetterRecord, error)
}

// JobHandler exposes on-demand invocations of the batch workers and the
// read-only dead letter listing.
type JobHandler struct {
	processor   RetryQueueProcessor
	digests     service.DigestRunner
	deadLetters DeadLetterLister
}

func NewJobHandler(processor RetryQueueProcessor, digests service.DigestRunner, deadLetters DeadLetterLister) (*JobHandler, error) {
	if processor == nil {
		return nil, fmt.Errorf("retry queue processor is required")
	}
	if digests == nil {
		return nil, fmt.Errorf("digest runner is required")
	}
	if deadLetters == nil {
		return nil, fmt.Errorf("dead letter lister is required")
	}
	return &JobHandler{processor: processor, digests: digests, deadLetters: deadLetters}, nil
}

func RegisterJobRoutes(router fiber.Router, processor RetryQueueProcessor, digests service.DigestRunner, deadLetters DeadLetterLister) error {
	h, err := NewJobHandler(processor, digests, deadLetters)
	if err != nil {
		return err
	}

	router.Post("/jobs/retry-queue", h.ProcessRetryQueue)
	router.Post("/jobs/digest", h.RunDigest)
	router.Get("/dead-letters", h.ListDeadLetters)

	return nil
}

type processRetryQueueRequest struct {
	BatchSize *int `json:"batchSize"`
}

type runDigestRequest struct {
	Period string `json:"period"`
}

type deadLetterResponse struct {
	ID               string          `json:"id"`
	RetryID          string          `json:"retryId"`
	UserID           string          `json:"userId"`
	NotificationType string          `json:"notificationType"`
	Channel          string          `json:"channel"`
	Snapshot         json.RawMessage `json:"snapshot"`
	ErrorMessage     string          `json:"errorMessage"`
	FailedAt         time.Time       `json:"failedAt"`
}

func (h *JobHandler) ProcessRetryQueue(c *fiber.Ctx) error {
	var req processRetryQueueRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	batchSize := 0
	if req.BatchSize != nil {
		batchSize = *req.BatchSize
		if batchSize < 1 || batchSize > service.MaxRetryBatchSize {
			return toHTTPError(fmt.Errorf("%w: batchSize must be between 1 and %d", domain.ErrValidation, service.MaxRetryBatchSize))
		}
	}

	summary, err := h.processor.Process(c.UserContext(), batchSize)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(summary)
}

func (h *JobHandler) RunDigest(c *fiber.Ctx) error {
	var req runDigestRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	period, err := domain.ParseDigestPeriod(req.Period)
	if err != nil {
		return toHTTPError(err)
	}

	summary, err := h.digests.Run(c.UserContext(), period)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(summary)
}

func (h *JobHandler) ListDeadLetters(c *fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return toHTTPError(err)
	}
	filter := repository.DeadLetterFilter{
		OwnerID: strings.TrimSpace(c.Query("userId")),
		Limit:   limit,
	}
	if raw := strings.TrimSpace(c.Query("channel")); raw != "" {
		channel, err := domain.ParseChannelFromString(raw)
		if err != nil {
			return toHTTPError(err)
		}
		filter.Channel = &channel
	}

	records, err := h.deadLetters.List(c.UserContext(), filter)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]deadLetterResponse, 0, len(records))
	for _, r := range records {
		snapshot := r.Snapshot
		if len(snapshot) == 0 {
			snapshot = nil
		}
		data = append(data, deadLetterResponse{
			ID:               r.ID,
			RetryID:          r.RetryID,
			UserID:           r.OwnerID,
			NotificationType: r.NotificationType,
			Channel:          r.Channel.String(),
			Snapshot:         snapshot,
			ErrorMessage:     r.ErrorMessage,
			FailedAt:         r.FailedAt,
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}
