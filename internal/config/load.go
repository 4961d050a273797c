package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. LITEVAULT_DATABASE_URL.
const EnvPrefix = "LITEVAULT"

// Load configuration from environment variables and an optional config.yaml
// in the working directory. Environment variables take precedence.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile behaves like Load but reads the given config file when path is non-empty.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags and cross-field constraints.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Job.LeaseDuration <= cfg.LLM.Timeout {
		return fmt.Errorf(
			"config validation failed: job.lease_duration (%s) must exceed llm.timeout (%s)",
			cfg.Job.LeaseDuration,
			cfg.LLM.Timeout,
		)
	}
	return nil
}

// setDefaults registers every key so environment overrides are picked up by
// Unmarshal, and supplies the documented fallbacks.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("llm.provider", "stub")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_output_tokens", 1024)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.prompt_path", "")
	v.SetDefault("llm.concurrency", 3)

	v.SetDefault("job.notify_enabled", true)
	v.SetDefault("job.notify_channel", "litevault_jobs")
	v.SetDefault("job.poll_interval", time.Duration(0))
	v.SetDefault("job.reclaim_interval", 2*time.Minute)
	v.SetDefault("job.lease_duration", 5*time.Minute)
	v.SetDefault("job.backoff", []time.Duration{0, 30 * time.Second, 5 * time.Minute})
	v.SetDefault("job.max_retries", 3)
	v.SetDefault("job.batch_size", 10)
	v.SetDefault("job.worker_id", "")

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.service_name", "litevault-api")
}
