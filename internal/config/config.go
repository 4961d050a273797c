package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Job      JobConfig      `mapstructure:"job" validate:"required"`
	Otel     OtelConfig     `mapstructure:"otel"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	// Driver selects the store implementation: "postgres" or "sqlite".
	Driver string `mapstructure:"driver" validate:"required,oneof=postgres sqlite"`
	// URL is a PostgreSQL connection string or a SQLite file path.
	URL          string `mapstructure:"url" validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	// Provider selects the enrichment backend: "stub" or "gemini".
	Provider        string        `mapstructure:"provider" validate:"required,oneof=stub gemini"`
	GeminiAPIKey    string        `mapstructure:"gemini_api_key" validate:"required_if=Provider gemini"`
	Model           string        `mapstructure:"model" validate:"required"`
	Temperature     float32       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxOutputTokens int32         `mapstructure:"max_output_tokens" validate:"gt=0"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// PromptPath overrides the built-in prompt template.
	PromptPath string `mapstructure:"prompt_path"`
	// Concurrency bounds simultaneous provider calls per process.
	Concurrency int `mapstructure:"concurrency" validate:"gt=0"`
}

// JobConfig controls outbox dispatch, leasing and retries.
type JobConfig struct {
	NotifyEnabled bool   `mapstructure:"notify_enabled"`
	NotifyChannel string `mapstructure:"notify_channel" validate:"required,max=63"`
	// PollInterval is the fallback poll period. Zero selects 30s when
	// notifications are enabled and 2s otherwise.
	PollInterval    time.Duration   `mapstructure:"poll_interval" validate:"gte=0"`
	ReclaimInterval time.Duration   `mapstructure:"reclaim_interval" validate:"gt=0"`
	LeaseDuration   time.Duration   `mapstructure:"lease_duration" validate:"gt=0"`
	Backoff         []time.Duration `mapstructure:"backoff" validate:"min=1,dive,gte=0"`
	MaxRetries      int             `mapstructure:"max_retries" validate:"gte=0"`
	BatchSize       int             `mapstructure:"batch_size" validate:"gt=0"`
	// WorkerID overrides the generated hostname-pid-suffix identifier.
	WorkerID string `mapstructure:"worker_id"`
}

// EffectivePollInterval resolves the zero-value PollInterval.
func (c JobConfig) EffectivePollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	if c.NotifyEnabled {
		return 30 * time.Second
	}
	return 2 * time.Second
}

// OtelConfig configures tracing export.
type OtelConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}
