package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notify-engine/internal/domain"
)

const defaultWebhookTimeout = 10 * time.Second

type webhookRequest struct {
	NotificationID string         `json:"notificationId,omitempty"`
	To             string         `json:"to"`
	Channel        string         `json:"channel"`
	Type           string         `json:"type"`
	Subject        string         `json:"subject,omitempty"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// WebhookSender delivers email or SMS notifications by posting them to a
// gateway webhook.
type WebhookSender struct {
	client   *resty.Client
	endpoint string
	channel  domain.Channel
}

func NewWebhookSender(channel domain.Channel, endpoint string) (*WebhookSender, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookSenderWithClient(channel, endpoint, client)
}

func NewWebhookSenderWithClient(channel domain.Channel, endpoint string, client *resty.Client) (*WebhookSender, error) {
	if !channel.IsValid() {
		return nil, fmt.Errorf("invalid webhook channel %q", channel)
	}
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	// Retries belong to the backoff engine and the retry queue.
	client.SetRetryCount(0)

	return &WebhookSender{
		client:   client,
		endpoint: trimmedEndpoint,
		channel:  channel,
	}, nil
}

func (s *WebhookSender) Send(ctx context.Context, snapshot domain.NotificationSnapshot) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("webhook sender is not initialized")
	}
	if err := snapshot.ValidateFor(s.channel); err != nil {
		return fmt.Errorf("invalid notification: %w", err)
	}

	to := strings.TrimSpace(snapshot.Recipient)
	if to == "" {
		to = snapshot.OwnerID
	}

	request := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(webhookRequest{
			NotificationID: snapshot.NotificationID,
			To:             to,
			Channel:        s.channel.String(),
			Type:           snapshot.Type,
			Subject:        snapshot.Title,
			Content:        snapshot.Message,
			Metadata:       snapshot.Metadata,
		})
	if snapshot.NotificationID != "" {
		request.SetHeader("Idempotency-Key", snapshot.NotificationID+":"+s.channel.String())
	}

	response, err := request.Post(s.endpoint)
	if err != nil {
		pe := transientError(s.channel.String(), "gateway request failed", err)
		pe.Transient = !errors.Is(err, context.Canceled)
		return pe
	}
	if response == nil {
		return transientError(s.channel.String(), "gateway returned empty response", nil)
	}
	if response.IsSuccess() {
		return nil
	}
	return statusError(s.channel.String(), response.StatusCode(), response.String())
}
