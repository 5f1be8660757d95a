package domain

import (
	"fmt"
	"strings"
	"time"
)

// DigestFrequency controls how often an owner receives digests.
type DigestFrequency string

const (
	DigestNone   DigestFrequency = "none"
	DigestDaily  DigestFrequency = "daily"
	DigestWeekly DigestFrequency = "weekly"
)

func (f DigestFrequency) String() string { return string(f) }

func (f DigestFrequency) IsValid() bool {
	switch f {
	case DigestNone, DigestDaily, DigestWeekly:
		return true
	}
	return false
}

func ParseDigestFrequency(s string) (DigestFrequency, error) {
	f := DigestFrequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("%w: invalid digest frequency %q", ErrValidation, s)
	}
	return f, nil
}

// ParseDigestPeriod accepts only the frequencies a digest run can be invoked with.
func ParseDigestPeriod(s string) (DigestFrequency, error) {
	f, err := ParseDigestFrequency(s)
	if err != nil {
		return "", err
	}
	if f == DigestNone {
		return "", fmt.Errorf("%w: period must be daily or weekly", ErrValidation)
	}
	return f, nil
}

type NotificationPreference struct {
	OwnerID         string
	DigestFrequency DigestFrequency
	UpdatedAt       time.Time
}

// RateLimitLogEntry is one admitted request.
type RateLimitLogEntry struct {
	ID        string
	Identity  string
	Endpoint  string
	CreatedAt time.Time
}
