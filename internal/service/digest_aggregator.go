package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/observability"
	"go.uber.org/zap"
)

// digestNamespace seeds deterministic digest ids: the same set of source
// notifications always yields the same digest id.
var digestNamespace = uuid.MustParse("6f1c1f0e-7f3a-4b59-9f7e-2d4a8c7b9e10")

type DigestPreferenceSource interface {
	ListOwnersByFrequency(ctx context.Context, frequency domain.DigestFrequency) ([]string, error)
}

type DigestNotificationStore interface {
	ListDigestCandidates(ctx context.Context, ownerID string, since time.Time, until time.Time) ([]domain.NotificationRecord, error)
	MarkRead(ctx context.Context, ids []string, readAt time.Time) (int64, error)
}

type DigestConfig struct {
	Channels []domain.Channel
	Location *time.Location
}

type DigestSummary struct {
	Processed int                    `json:"processed"`
	Sent      int                    `json:"sent"`
	Failed    int                    `json:"failed"`
	Period    domain.DigestFrequency `json:"period"`
}

// TypeCount is one line of a digest.
type TypeCount struct {
	Type  string
	Count int
}

type DigestAggregator struct {
	preferences   DigestPreferenceSource
	notifications DigestNotificationStore
	sender        ChannelSender
	cfg           DigestConfig
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

func NewDigestAggregator(
	preferences DigestPreferenceSource,
	notifications DigestNotificationStore,
	sender ChannelSender,
	cfg DigestConfig,
	logger *zap.Logger,
) (*DigestAggregator, error) {
	if preferences == nil {
		return nil, fmt.Errorf("preference repository is required")
	}
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("channel sender is required")
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = []domain.Channel{domain.ChannelInApp}
	}
	for _, ch := range cfg.Channels {
		if !ch.IsValid() {
			return nil, fmt.Errorf("%w: invalid digest channel %q", domain.ErrValidation, ch)
		}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DigestAggregator{
		preferences:   preferences,
		notifications: notifications,
		sender:        sender,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (a *DigestAggregator) SetMetrics(metrics *observability.Metrics) {
	if a == nil {
		return
	}
	a.metrics = metrics
}

// Run sends one digest per subscribed owner with unread low or normal
// priority notifications in the current window. A failing owner is counted
// and skipped; the run continues.
func (a *DigestAggregator) Run(ctx context.Context, period domain.DigestFrequency) (DigestSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if period != domain.DigestDaily && period != domain.DigestWeekly {
		return DigestSummary{}, fmt.Errorf("%w: digest period must be daily or weekly", domain.ErrValidation)
	}

	summary := DigestSummary{Period: period}

	owners, err := a.preferences.ListOwnersByFrequency(ctx, period)
	if err != nil {
		return summary, fmt.Errorf("failed to list digest subscribers: %w", err)
	}

	now := a.now().UTC()
	windowStart := WindowStart(period, now, a.cfg.Location)

	for _, ownerID := range owners {
		if ctx.Err() != nil {
			break
		}
		summary.Processed++

		sent, err := a.digestOwner(ctx, ownerID, period, windowStart, now)
		switch {
		case err != nil:
			summary.Failed++
			a.metrics.IncDigest(period.String(), "failed")
			a.logger.Error("digest failed for owner",
				zap.String("ownerId", ownerID),
				zap.String("period", period.String()),
				zap.Error(err),
			)
		case sent:
			summary.Sent++
			a.metrics.IncDigest(period.String(), "sent")
		default:
			a.metrics.IncDigest(period.String(), "skipped")
		}
	}

	return summary, nil
}

func (a *DigestAggregator) digestOwner(
	ctx context.Context,
	ownerID string,
	period domain.DigestFrequency,
	windowStart time.Time,
	now time.Time,
) (bool, error) {
	candidates, err := a.notifications.ListDigestCandidates(ctx, ownerID, windowStart, now)
	if err != nil {
		return false, fmt.Errorf("failed to load digest candidates: %w", err)
	}
	if len(candidates) == 0 {
		return false, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, n := range candidates {
		ids = append(ids, n.ID)
	}
	snapshot := BuildDigest(ownerID, period, windowStart, CountByType(candidates), ids)

	for _, channel := range a.cfg.Channels {
		if err := a.sender.Send(ctx, channel, snapshot); err != nil {
			return false, fmt.Errorf("failed to send digest via %s: %w", channel, err)
		}
	}

	// Consume the originals only after every channel accepted the digest.
	if _, err := a.notifications.MarkRead(ctx, ids, now); err != nil {
		return false, fmt.Errorf("digest sent but marking %d notifications read failed: %w", len(ids), err)
	}

	a.logger.Debug("digest sent",
		zap.String("ownerId", ownerID),
		zap.String("digestId", snapshot.NotificationID),
		zap.Int("notifications", len(ids)),
	)
	return true, nil
}

// WindowStart is midnight of now's day for daily digests and midnight of the
// most recent Monday for weekly ones, both in loc. The result is UTC.
func WindowStart(period domain.DigestFrequency, now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if period == domain.DigestWeekly {
		daysSinceMonday := (int(local.Weekday()) + 6) % 7
		start = start.AddDate(0, 0, -daysSinceMonday)
	}
	return start.UTC()
}

// CountByType groups notifications by type, largest group first, ties by type name.
func CountByType(notifications []domain.NotificationRecord) []TypeCount {
	counts := make(map[string]int)
	for _, n := range notifications {
		counts[n.Type]++
	}

	out := make([]TypeCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, TypeCount{Type: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// BuildDigest renders the summary notification. Digests are high priority
// so they never become digest candidates themselves.
func BuildDigest(ownerID string, period domain.DigestFrequency, windowStart time.Time, counts []TypeCount, sourceIDs []string) domain.NotificationSnapshot {
	total := 0
	lines := make([]string, 0, len(counts))
	byType := make(map[string]any, len(counts))
	for _, c := range counts {
		total += c.Count
		lines = append(lines, fmt.Sprintf("%d %s", c.Count, c.Type))
		byType[c.Type] = c.Count
	}

	noun := "notifications"
	if total == 1 {
		noun = "notification"
	}

	sorted := append([]string(nil), sourceIDs...)
	sort.Strings(sorted)
	name := strings.Join([]string{ownerID, period.String(), strings.Join(sorted, ",")}, "|")

	return domain.NotificationSnapshot{
		NotificationID: uuid.NewSHA1(digestNamespace, []byte(name)).String(),
		OwnerID:        ownerID,
		Type:           domain.NotificationTypeDigest,
		Title:          fmt.Sprintf("Your %s digest", period),
		Message:        fmt.Sprintf("You have %d unread %s: %s", total, noun, strings.Join(lines, ", ")),
		Metadata: map[string]any{
			"period":      period.String(),
			"windowStart": windowStart.Format(time.RFC3339),
			"total":       total,
			"counts":      byType,
		},
		Priority: domain.PriorityHigh,
	}
}
