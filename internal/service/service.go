package service

import (
	"context"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
)

// ChannelSender delivers a snapshot on a channel. *provider.Registry implements it.
type ChannelSender interface {
	Send(ctx context.Context, channel domain.Channel, snapshot domain.NotificationSnapshot) error
}

const maxErrorMessageLen = 1000

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxErrorMessageLen {
		return msg[:maxErrorMessageLen]
	}
	return msg
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
