package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Resolver  ResolverConfig  `mapstructure:"resolver" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Events    EventsConfig    `mapstructure:"events"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// ShutdownTimeout bounds graceful shutdown of the HTTP server
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	// CreateRateLimit is the sustained task creations per second; zero disables limiting
	CreateRateLimit float64 `mapstructure:"create_rate_limit" validate:"gte=0"`
	CreateBurst     int     `mapstructure:"create_burst" validate:"gte=0"`
}

// SchedulerConfig controls admission and progress tracking.
type SchedulerConfig struct {
	MaxConcurrentTasks int           `mapstructure:"max_concurrent_tasks" validate:"gt=0"`
	TickInterval       time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	DefaultMaxRetries  int           `mapstructure:"default_max_retries" validate:"gte=0"`
	AsyncResolution    bool          `mapstructure:"async_resolution"`
}

// ResolverConfig selects and configures the backend that decides task outcomes.
type ResolverConfig struct {
	Backend         string  `mapstructure:"backend" validate:"required,oneof=simulated gemini"`
	SuccessRate     float64 `mapstructure:"success_rate" validate:"gte=0,lte=1"`
	Seed            uint64  `mapstructure:"seed"`
	ArtifactBaseURL string  `mapstructure:"artifact_base_url" validate:"required,url"`

	// Gemini settings, required when Backend is gemini
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required_if=Backend gemini"`
	ImageModel   string `mapstructure:"image_model" validate:"required_if=Backend gemini"`
	ArtifactDir  string `mapstructure:"artifact_dir" validate:"required_if=Backend gemini"`
}

// DatabaseConfig contains the credit ledger database settings.
// An empty URL disables the ledger.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// EventsConfig contains lifecycle event publishing settings.
// An empty NATSURL disables publishing.
type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url" validate:"omitempty,url"`
	SubjectPrefix string `mapstructure:"subject_prefix" validate:"required"`
}

// AuthConfig contains API authentication settings.
// An empty JWTSecret leaves the API open.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
}
