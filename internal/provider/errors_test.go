package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestProviderErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *ProviderError
		want string
	}{
		{name: "status", err: statusError("sms", 503, " busy \n"), want: "send via sms failed (status 503): gateway returned status 503: busy"},
		{name: "cause", err: transientError("push", "failed to publish push delivery", errors.New("channel closed")), want: "send via push failed: failed to publish push delivery: channel closed"},
		{name: "bare", err: &ProviderError{}, want: "send failed"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("%s: Error() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: fmt.Errorf("send: %w", context.DeadlineExceeded), want: true},
		{name: "rate limited", err: statusError("email", 429, ""), want: true},
		{name: "rejected", err: statusError("email", 422, "bad address"), want: false},
		{name: "wrapped provider error", err: fmt.Errorf("attempt 2: %w", transientError("sms", "x", nil)), want: true},
		{name: "network timeout", err: timeoutErr{}, want: true},
		{name: "plain error", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("%s: IsTransient() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
