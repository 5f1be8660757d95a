package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kursadbilgin/notify-engine/internal/domain"
)

var ErrNoSender = errors.New("no sender registered for channel")

// Sender delivers a notification snapshot on one channel.
type Sender interface {
	Send(ctx context.Context, snapshot domain.NotificationSnapshot) error
}

type SenderFunc func(ctx context.Context, snapshot domain.NotificationSnapshot) error

func (f SenderFunc) Send(ctx context.Context, snapshot domain.NotificationSnapshot) error {
	return f(ctx, snapshot)
}

// Registry resolves the sender for a channel.
type Registry struct {
	mu      sync.RWMutex
	senders map[domain.Channel]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[domain.Channel]Sender)}
}

func (r *Registry) Register(channel domain.Channel, sender Sender) error {
	if !channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, channel)
	}
	if sender == nil {
		return fmt.Errorf("sender for channel %s is nil", channel)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[channel] = sender
	return nil
}

func (r *Registry) Sender(channel domain.Channel) (Sender, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sender, ok := r.senders[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSender, channel)
	}
	return sender, nil
}

func (r *Registry) Channels() []domain.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]domain.Channel, 0, len(r.senders))
	for ch := range r.senders {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })
	return channels
}

// Send resolves the channel sender and invokes it. A panicking sender is
// reported as a send error.
func (r *Registry) Send(ctx context.Context, channel domain.Channel, snapshot domain.NotificationSnapshot) (err error) {
	sender, err := r.Sender(channel)
	if err != nil {
		return err
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			err = transientError(channel.String(), fmt.Sprintf("sender panicked: %v", recovered), nil)
		}
	}()

	return sender.Send(ctx, snapshot)
}
