package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/ratelimit"
)

const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

type RateLimiter interface {
	CheckEndpoint(ctx context.Context, identity string, endpoint string) (ratelimit.Decision, ratelimit.Config)
	CheckRoute(ctx context.Context, identity string, method string, path string) (ratelimit.Decision, ratelimit.Config)
}

type rateLimitCheckRequest struct {
	Endpoint string `json:"endpoint"`
	UserID   string `json:"userId"`
}

type rateLimitResponse struct {
	Allowed   bool      `json:"allowed"`
	Profile   string    `json:"profile"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

type rateLimitedResponse struct {
	Error   string    `json:"error"`
	Message string    `json:"message"`
	ResetAt time.Time `json:"resetAt"`
}

func RegisterRateLimitRoutes(router fiber.Router, limiter RateLimiter) error {
	if limiter == nil {
		return fmt.Errorf("rate limiter is required")
	}
	router.Post("/rate-limit/check", checkRateLimitHandler(limiter))
	return nil
}

// checkRateLimitHandler lets another service ask for a decision on one of its
// own endpoints. The caller IP is taken from the transport.
func checkRateLimitHandler(limiter RateLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req rateLimitCheckRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		endpoint := strings.TrimSpace(req.Endpoint)
		if endpoint == "" {
			return toHTTPError(fmt.Errorf("%w: endpoint is required", domain.ErrValidation))
		}

		identity := ratelimit.ResolveIdentity(req.UserID, c.IP())
		decision, cfg := limiter.CheckEndpoint(c.UserContext(), identity, endpoint)
		setRateLimitHeaders(c, decision)
		if !decision.Allowed {
			return rejectRateLimited(c, decision)
		}

		return c.Status(fiber.StatusOK).JSON(rateLimitResponse{
			Allowed:   true,
			Profile:   string(cfg.Profile),
			Limit:     decision.Limit,
			Remaining: decision.Remaining,
			ResetAt:   decision.ResetAt,
		})
	}
}

// RateLimitMiddleware guards the routes behind it, counting each request
// under its route class rather than its raw path.
func RateLimitMiddleware(limiter RateLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity := ratelimit.ResolveIdentity(c.Get(HeaderUserID), c.IP())
		decision, _ := limiter.CheckRoute(c.UserContext(), identity, c.Method(), c.Path())
		setRateLimitHeaders(c, decision)
		if !decision.Allowed {
			return rejectRateLimited(c, decision)
		}
		return c.Next()
	}
}

func setRateLimitHeaders(c *fiber.Ctx, decision ratelimit.Decision) {
	c.Set(HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
	c.Set(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
	c.Set(HeaderRateLimitReset, strconv.FormatInt(decision.ResetAt.Unix(), 10))
}

func rejectRateLimited(c *fiber.Ctx, decision ratelimit.Decision) error {
	retryAfter := int(time.Until(decision.ResetAt).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
	return c.Status(fiber.StatusTooManyRequests).JSON(rateLimitedResponse{
		Error:   "rate_limit_exceeded",
		Message: fmt.Sprintf("too many requests, limit is %d per window", decision.Limit),
		ResetAt: decision.ResetAt,
	})
}
