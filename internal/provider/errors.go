package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ProviderError is a failed channel send. Transient marks failures worth
// retrying immediately; the retry queue applies its own classification.
type ProviderError struct {
	Channel    string
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func transientError(channel, message string, cause error) *ProviderError {
	return &ProviderError{Channel: channel, Message: message, Transient: true, Cause: cause}
}

// statusError classifies a non-2xx gateway response. 429 and 5xx are
// transient, any other status is not.
func statusError(channel string, status int, body string) *ProviderError {
	message := fmt.Sprintf("gateway returned status %d", status)
	if body = strings.TrimSpace(body); body != "" {
		message += ": " + body
	}
	return &ProviderError{
		Channel:    channel,
		StatusCode: status,
		Message:    message,
		Transient:  status == http.StatusTooManyRequests || (status >= 500 && status <= 599),
	}
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString("send")
	if e.Channel != "" {
		b.WriteString(" via ")
		b.WriteString(e.Channel)
	}
	b.WriteString(" failed")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// HTTPStatus lets backoff.IsRetryable see the gateway status.
func (e *ProviderError) HTTPStatus() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// IsTransient reports whether an immediate resend could succeed.
func IsTransient(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}

	if pe := (*ProviderError)(nil); errors.As(err, &pe) {
		return pe.Transient
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
