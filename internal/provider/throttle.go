package provider

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"golang.org/x/time/rate"
)

// Throttled caps the outbound rate of a sender. Callers block until a token
// is available or ctx is done.
type Throttled struct {
	next    Sender
	limiter *rate.Limiter
}

func NewThrottled(next Sender, perSecond float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (t *Throttled) Send(ctx context.Context, snapshot domain.NotificationSnapshot) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send throttle wait failed: %w", err)
	}
	return t.next.Send(ctx, snapshot)
}
