// Package config loads and validates server configuration from file,
// environment, and defaults via viper.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	Schema        SchemaConfig        `mapstructure:"schema"`
	Runtime       RuntimeConfig       `mapstructure:"runtime"`
	Subscriptions SubscriptionsConfig `mapstructure:"subscriptions"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	// DSN is a PostgreSQL connection string (postgres://... or key=value).
	DSN string `mapstructure:"dsn"`
	// DSNFile is a path to a file containing the DSN (use @- for stdin).
	DSNFile string `mapstructure:"dsn_file"`

	Pool struct {
		MaxOpen     int           `mapstructure:"max_open"`
		MaxIdle     int           `mapstructure:"max_idle"`
		MaxLifetime time.Duration `mapstructure:"max_lifetime"`
	} `mapstructure:"pool"`

	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	RateLimitEnabled bool    `mapstructure:"rate_limit_enabled"`
	RateLimitRPS     float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst   int     `mapstructure:"rate_limit_burst"`

	Admin AdminConfig `mapstructure:"admin"`
	Auth  AuthConfig  `mapstructure:"auth"`
}

// AdminConfig gates the artifact reload endpoint.
type AdminConfig struct {
	ReloadEnabled bool   `mapstructure:"reload_enabled"`
	AuthToken     string `mapstructure:"auth_token"`
	AuthTokenFile string `mapstructure:"auth_token_file"`
}

// AuthConfig configures capability extraction from bearer tokens.
type AuthConfig struct {
	// JWTSecret verifies HS256 bearer tokens. Empty disables verification
	// and requests run anonymously.
	JWTSecret     string `mapstructure:"jwt_secret"`
	JWTSecretFile string `mapstructure:"jwt_secret_file"`
	// CapabilitiesClaim names the JWT claim carrying capability tokens.
	CapabilitiesClaim string `mapstructure:"capabilities_claim"`
}

// SchemaConfig locates the schema inputs and tunes compilation.
type SchemaConfig struct {
	// SchemaFile is the authored schema JSON document.
	SchemaFile string `mapstructure:"schema_file"`
	// ArtifactFile is a precompiled artifact; when set it is loaded
	// directly and SchemaFile is ignored at serve time.
	ArtifactFile string `mapstructure:"artifact_file"`

	DefaultLimit      int      `mapstructure:"default_limit"`
	MaxLimit          int      `mapstructure:"max_limit"`
	KnownCapabilities []string `mapstructure:"known_capabilities"`
}

// RuntimeConfig tunes request execution.
type RuntimeConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AuditLog       bool          `mapstructure:"audit_log"`
}

// SubscriptionsConfig tunes the event dispatcher.
type SubscriptionsConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
}

// ObservabilityConfig configures logging, metrics, and tracing.
type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Environment    string `mapstructure:"environment"`

	MetricsEnabled   bool    `mapstructure:"metrics_enabled"`
	TracingEnabled   bool    `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64 `mapstructure:"trace_sample_ratio"`

	Logging LoggingConfig `mapstructure:"logging"`
	OTLP    OTLPConfig    `mapstructure:"otlp"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`
	Format         string `mapstructure:"format"`
	ExportsEnabled bool   `mapstructure:"exports_enabled"`
}

// OTLPConfig configures the OTLP exporters shared by traces and logs.
type OTLPConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Protocol string        `mapstructure:"protocol"`
	Insecure bool          `mapstructure:"insecure"`
	Timeout  time.Duration `mapstructure:"timeout"`
}
