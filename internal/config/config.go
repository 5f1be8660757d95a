package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/kursadbilgin/notify-engine/internal/domain"
)

const (
	RateLimitBackendPostgres = "postgres"
	RateLimitBackendRedis    = "redis"
)

type Config struct {
	DatabaseDSN     string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL     string `env:"RABBITMQ_URL,required=true"`
	RedisURL        string `env:"REDIS_URL,required=true"`
	EmailWebhookURL string `env:"EMAIL_WEBHOOK_URL,required=true"`
	SMSWebhookURL   string `env:"SMS_WEBHOOK_URL,required=true"`
	APIPort         int    `env:"API_PORT,default=8080"`
	LogLevel        string `env:"LOG_LEVEL,default=info"`

	RateLimitBackend      string        `env:"RATE_LIMIT_BACKEND,default=postgres"`
	RateLimitLogRetention time.Duration `env:"RATE_LIMIT_LOG_RETENTION,default=24h"`

	RetryScanInterval        time.Duration `env:"RETRY_SCAN_INTERVAL,default=30s"`
	RetryBatchSize           int           `env:"RETRY_BATCH_SIZE,default=100"`
	RetryConcurrency         int           `env:"RETRY_CONCURRENCY,default=8"`
	RetryMaxAttempts         int           `env:"RETRY_MAX_ATTEMPTS,default=3"`
	RetryInitialDelay        time.Duration `env:"RETRY_INITIAL_DELAY,default=1s"`
	RetryMaxDelay            time.Duration `env:"RETRY_MAX_DELAY,default=30s"`
	RetryClaimLease          time.Duration `env:"RETRY_CLAIM_LEASE,default=2m"`
	RetryDeadLetterPermanent bool          `env:"RETRY_DEAD_LETTER_PERMANENT,default=false"`
	ImmediateSendRetries     int           `env:"IMMEDIATE_SEND_RETRIES,default=1"`
	ChannelSendRatePerSec    float64       `env:"CHANNEL_SEND_RATE_PER_SEC,default=50"`

	DigestChannels       string `env:"DIGEST_CHANNELS,default=in_app,email"`
	DigestTimezone       string `env:"DIGEST_TIMEZONE,default=UTC"`
	DigestDailySchedule  string `env:"DIGEST_DAILY_SCHEDULE,default=0 8 * * *"`
	DigestWeeklySchedule string `env:"DIGEST_WEEKLY_SCHEDULE,default=0 8 * * 1"`
	PruneSchedule        string `env:"RATE_LIMIT_PRUNE_SCHEDULE,default=@hourly"`

	IntentConsumers int `env:"INTENT_CONSUMERS,default=2"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	checks := []struct {
		name  string
		value int
	}{
		{"API_PORT", c.APIPort},
		{"RETRY_BATCH_SIZE", c.RetryBatchSize},
		{"RETRY_CONCURRENCY", c.RetryConcurrency},
		{"RETRY_MAX_ATTEMPTS", c.RetryMaxAttempts},
		{"INTENT_CONSUMERS", c.IntentConsumers},
	}
	for _, check := range checks {
		if check.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", check.name, check.value)
		}
	}
	if c.RetryMaxAttempts > domain.MaxAllowedAttempts {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at most %d", domain.MaxAllowedAttempts)
	}
	if c.ImmediateSendRetries < 0 {
		return fmt.Errorf("IMMEDIATE_SEND_RETRIES must not be negative")
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"RETRY_SCAN_INTERVAL", c.RetryScanInterval},
		{"RETRY_INITIAL_DELAY", c.RetryInitialDelay},
		{"RETRY_MAX_DELAY", c.RetryMaxDelay},
		{"RETRY_CLAIM_LEASE", c.RetryClaimLease},
		{"RATE_LIMIT_LOG_RETENTION", c.RateLimitLogRetention},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	if c.RetryMaxDelay < c.RetryInitialDelay {
		return fmt.Errorf("RETRY_MAX_DELAY must not be below RETRY_INITIAL_DELAY")
	}

	switch strings.ToLower(strings.TrimSpace(c.RateLimitBackend)) {
	case RateLimitBackendPostgres, RateLimitBackendRedis:
	default:
		return fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimitBackend)
	}

	if _, err := c.DigestChannelList(); err != nil {
		return fmt.Errorf("DIGEST_CHANNELS: %w", err)
	}
	if _, err := c.DigestLocation(); err != nil {
		return fmt.Errorf("DIGEST_TIMEZONE: %w", err)
	}
	return nil
}

func (c *Config) DigestChannelList() ([]domain.Channel, error) {
	channels, err := domain.ParseChannelList(c.DigestChannels)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("at least one digest channel is required")
	}
	return channels, nil
}

func (c *Config) DigestLocation() (*time.Location, error) {
	return time.LoadLocation(strings.TrimSpace(c.DigestTimezone))
}

func (c *Config) UsesRedisRateLimit() bool {
	return strings.EqualFold(strings.TrimSpace(c.RateLimitBackend), RateLimitBackendRedis)
}
