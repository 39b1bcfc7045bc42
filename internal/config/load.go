package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. GENQUEUE_SCHEDULER_MAX_CONCURRENT_TASKS.
const EnvPrefix = "GENQUEUE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.create_rate_limit", 5.0)
	v.SetDefault("server.create_burst", 10)

	v.SetDefault("scheduler.max_concurrent_tasks", 3)
	v.SetDefault("scheduler.tick_interval", time.Second)
	v.SetDefault("scheduler.default_max_retries", 3)
	v.SetDefault("scheduler.async_resolution", false)

	v.SetDefault("resolver.backend", "simulated")
	v.SetDefault("resolver.success_rate", 0.9)
	v.SetDefault("resolver.seed", 0)
	v.SetDefault("resolver.artifact_base_url", "https://artifacts.genqueue.local")
	v.SetDefault("resolver.gemini_api_key", "")
	v.SetDefault("resolver.image_model", "imagen-3.0-generate-002")
	v.SetDefault("resolver.artifact_dir", "")

	v.SetDefault("database.url", "")

	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "genqueue")

	v.SetDefault("auth.jwt_secret", "")
}

// Option adjusts the viper instance before values are read
type Option func(v *viper.Viper) error

// WithFlag binds a command-line flag to key. A flag the user set wins over
// the environment and the file.
func WithFlag(key string, flag *pflag.Flag) Option {
	return func(v *viper.Viper) error {
		if flag == nil {
			return fmt.Errorf("no flag to bind for %s", key)
		}
		return v.BindPFlag(key, flag)
	}
}

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from the file. When
// configFile is empty, config.yaml in the working directory is used if present.
// Returns a populated Config struct or an error if loading/validation fails.
func Load(configFile string, opts ...Option) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, fmt.Errorf("failed to bind option: %w", err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
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

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
