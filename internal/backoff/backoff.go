package backoff

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
)

// Strategy selects how the delay grows with the attempt number.
type Strategy string

const (
	Exponential Strategy = "exponential"
	Linear      Strategy = "linear"
	Fixed       Strategy = "fixed"
)

const (
	defaultMultiplier = 2.0
	jitterFraction    = 0.10
	maxDuration       = time.Duration(math.MaxInt64)
)

// Options parameterize ComputeDelay. A zero MaxDelay disables the ceiling.
type Options struct {
	Strategy     Strategy
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool

	// Random returns a value in [0, 1). Nil uses math/rand.
	Random func() float64
}

// ProcessorOptions is the schedule used for durable retry records:
// exponential from one second, capped low to ride out short outages.
func ProcessorOptions(initial, max time.Duration) Options {
	if initial <= 0 {
		initial = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	return Options{
		Strategy:     Exponential,
		InitialDelay: initial,
		MaxDelay:     max,
		Multiplier:   defaultMultiplier,
		Jitter:       true,
	}
}

// ComputeDelay returns the wait before the given zero-based attempt.
func ComputeDelay(attempt int, opts Options) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	initial := float64(opts.InitialDelay)
	if initial < 0 {
		initial = 0
	}

	var delay float64
	switch opts.Strategy {
	case Linear:
		delay = initial * float64(attempt+1)
	case Fixed:
		delay = initial
	default:
		multiplier := opts.Multiplier
		if multiplier <= 0 {
			multiplier = defaultMultiplier
		}
		delay = initial * math.Pow(multiplier, float64(attempt))
	}

	if opts.Jitter {
		random := opts.Random
		if random == nil {
			random = rand.Float64
		}
		delay += delay * jitterFraction * (2*random() - 1)
	}

	// Clamp after jitter so the ceiling always holds.
	ceiling := opts.MaxDelay
	if ceiling <= 0 {
		ceiling = maxDuration
	}
	if math.IsNaN(delay) || delay >= float64(ceiling) {
		return ceiling
	}
	if delay < 0 {
		return 0
	}

	return time.Duration(delay)
}

// statusCoder is implemented by errors that carry an HTTP-equivalent status.
type statusCoder interface {
	HTTPStatus() int
}

// IsRetryable reports whether err is worth another attempt. Client and
// validation faults never are; everything else is assumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, domain.ErrValidation) {
		return false
	}

	var coder statusCoder
	if errors.As(err, &coder) {
		switch coder.HTTPStatus() {
		case 400, 401, 403, 422:
			return false
		}
	}

	return !strings.Contains(strings.ToLower(err.Error()), "validation")
}

// ShouldRetry applies the default policy for a failure of the zero-based attempt.
func ShouldRetry(err error, attempt, maxRetries int) bool {
	return attempt < maxRetries && IsRetryable(err)
}

// Retry runs fn until it succeeds, returns a non-retryable error, exhausts
// maxRetries additional attempts, or ctx is done. The last error is returned.
func Retry(ctx context.Context, maxRetries int, opts Options, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !ShouldRetry(err, attempt, maxRetries) {
			return err
		}

		if sleepErr := sleepWithContext(ctx, ComputeDelay(attempt, opts)); sleepErr != nil {
			return err
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
