package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseChannelFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Channel
		wantErr bool
	}{
		{name: "valid lowercase with spaces", input: " sms ", want: ChannelSMS},
		{name: "valid uppercase", input: "EMAIL", want: ChannelEmail},
		{name: "dash normalized", input: "in-app", want: ChannelInApp},
		{name: "invalid", input: "fax", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseChannelFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseChannelFromString() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseChannelFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseChannelFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseChannelList(t *testing.T) {
	t.Parallel()

	got, err := ParseChannelList("in_app, email,,email")
	if err != nil {
		t.Fatalf("ParseChannelList() unexpected error = %v", err)
	}
	if diff := cmp.Diff([]Channel{ChannelInApp, ChannelEmail}, got); diff != "" {
		t.Fatalf("ParseChannelList() mismatch (-want +got):\n%s", diff)
	}

	if _, err := ParseChannelList("email,pigeon"); !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseChannelList() error = %v, want ErrValidation", err)
	}
}

func TestParsePriorityFromString(t *testing.T) {
	t.Parallel()

	got, err := ParsePriorityFromString(" URGENT ")
	if err != nil {
		t.Fatalf("ParsePriorityFromString() unexpected error = %v", err)
	}
	if got != PriorityUrgent {
		t.Fatalf("ParsePriorityFromString() = %s, want %s", got, PriorityUrgent)
	}

	_, err = ParsePriorityFromString("critical")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ParsePriorityFromString() error = %v, want ErrValidation", err)
	}
}

func TestPriorityDigestible(t *testing.T) {
	t.Parallel()

	want := map[Priority]bool{
		PriorityLow:    true,
		PriorityNormal: true,
		PriorityHigh:   false,
		PriorityUrgent: false,
	}
	for p, digestible := range want {
		if got := p.Digestible(); got != digestible {
			t.Fatalf("%s.Digestible() = %v, want %v", p, got, digestible)
		}
	}
}

func TestSnapshotValidateFor(t *testing.T) {
	t.Parallel()

	base := NotificationSnapshot{
		OwnerID:  "u1",
		Type:     "order_shipped",
		Title:    "Shipped",
		Message:  "hello",
		Priority: PriorityNormal,
	}

	tests := []struct {
		name    string
		channel Channel
		mutate  func(*NotificationSnapshot)
		wantErr bool
	}{
		{
			name:    "valid snapshot",
			channel: ChannelSMS,
			mutate:  func(s *NotificationSnapshot) {},
		},
		{
			name:    "missing owner",
			channel: ChannelInApp,
			mutate: func(s *NotificationSnapshot) {
				s.OwnerID = " "
			},
			wantErr: true,
		},
		{
			name:    "missing type",
			channel: ChannelInApp,
			mutate: func(s *NotificationSnapshot) {
				s.Type = ""
			},
			wantErr: true,
		},
		{
			name:    "missing message",
			channel: ChannelEmail,
			mutate: func(s *NotificationSnapshot) {
				s.Message = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid priority",
			channel: ChannelEmail,
			mutate: func(s *NotificationSnapshot) {
				s.Priority = Priority("critical")
			},
			wantErr: true,
		},
		{
			name:    "invalid channel",
			channel: Channel("voice"),
			mutate:  func(s *NotificationSnapshot) {},
			wantErr: true,
		},
		{
			name:    "sms content over limit",
			channel: ChannelSMS,
			mutate: func(s *NotificationSnapshot) {
				s.Message = strings.Repeat("a", MaxSMSContent+1)
			},
			wantErr: true,
		},
		{
			name:    "push content over limit",
			channel: ChannelPush,
			mutate: func(s *NotificationSnapshot) {
				s.Message = strings.Repeat("a", MaxPushContent+1)
			},
			wantErr: true,
		},
		{
			name:    "email content over limit",
			channel: ChannelEmail,
			mutate: func(s *NotificationSnapshot) {
				s.Message = strings.Repeat("a", MaxEmailContent+1)
			},
			wantErr: true,
		},
		{
			name:    "same content fits email",
			channel: ChannelEmail,
			mutate: func(s *NotificationSnapshot) {
				s.Message = strings.Repeat("a", MaxSMSContent+1)
			},
		},
		{
			name:    "rune-aware sms length accepted",
			channel: ChannelSMS,
			mutate: func(s *NotificationSnapshot) {
				s.Message = strings.Repeat("ğ", MaxSMSContent)
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			current := base
			tt.mutate(&current)

			err := current.ValidateFor(tt.channel)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ValidateFor() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateFor() unexpected error = %v", err)
			}
		})
	}
}

func TestSnapshotEncodeDecode(t *testing.T) {
	t.Parallel()

	snapshot := NotificationSnapshot{
		NotificationID: "n-1",
		OwnerID:        "u1",
		Type:           "price_alert",
		Title:          "Price drop",
		Message:        "Your item is cheaper",
		Metadata:       map[string]any{"sku": "A-1"},
		Priority:       PriorityLow,
	}

	raw, err := snapshot.Encode()
	if err != nil {
		t.Fatalf("Encode() unexpected error = %v", err)
	}

	got, err := DecodeSnapshot(raw)
	if err != nil {
		t.Fatalf("DecodeSnapshot() unexpected error = %v", err)
	}
	if diff := cmp.Diff(snapshot, got); diff != "" {
		t.Fatalf("DecodeSnapshot() mismatch (-want +got):\n%s", diff)
	}

	if _, err := DecodeSnapshot(nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("DecodeSnapshot(nil) error = %v, want ErrValidation", err)
	}
	if _, err := DecodeSnapshot([]byte("{not json")); !errors.Is(err, ErrValidation) {
		t.Fatalf("DecodeSnapshot(malformed) error = %v, want ErrValidation", err)
	}
}

func TestRetryRecordValidate(t *testing.T) {
	t.Parallel()

	base := RetryRecord{
		OwnerID:     "u1",
		Channel:     ChannelEmail,
		Snapshot:    []byte(`{"ownerId":"u1"}`),
		Status:      RetryStatusPending,
		MaxAttempts: 3,
		NextRetryAt: time.Now(),
	}

	tests := []struct {
		name    string
		mutate  func(*RetryRecord)
		wantErr bool
	}{
		{name: "valid", mutate: func(r *RetryRecord) {}},
		{name: "missing owner", mutate: func(r *RetryRecord) { r.OwnerID = "" }, wantErr: true},
		{name: "bad channel", mutate: func(r *RetryRecord) { r.Channel = "fax" }, wantErr: true},
		{name: "missing snapshot", mutate: func(r *RetryRecord) { r.Snapshot = nil }, wantErr: true},
		{name: "zero max attempts", mutate: func(r *RetryRecord) { r.MaxAttempts = 0 }, wantErr: true},
		{name: "attempt above max", mutate: func(r *RetryRecord) { r.AttemptNumber = 4 }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			current := base
			tt.mutate(&current)

			err := current.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestRetryRecordFinalAttempt(t *testing.T) {
	t.Parallel()

	record := RetryRecord{MaxAttempts: 3}
	for attempt, want := range []bool{false, false, true} {
		record.AttemptNumber = attempt
		if got := record.FinalAttempt(); got != want {
			t.Fatalf("FinalAttempt() at attempt %d = %v, want %v", attempt, got, want)
		}
	}
}

func TestParseDigestPeriod(t *testing.T) {
	t.Parallel()

	got, err := ParseDigestPeriod("Weekly")
	if err != nil {
		t.Fatalf("ParseDigestPeriod() unexpected error = %v", err)
	}
	if got != DigestWeekly {
		t.Fatalf("ParseDigestPeriod() = %s, want %s", got, DigestWeekly)
	}

	for _, input := range []string{"none", "monthly", ""} {
		if _, err := ParseDigestPeriod(input); !errors.Is(err, ErrValidation) {
			t.Fatalf("ParseDigestPeriod(%q) error = %v, want ErrValidation", input, err)
		}
	}
}
