// Package config defines the configuration of the harvest service.
// Configuration is loaded once at process start and is immutable thereafter.
//
// Values are resolved from the OS environment, then a .env file, then struct
// defaults. Advisory thresholds may additionally be overridden by a YAML
// file named in INSIGHTS_THRESHOLDS_FILE.
//
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"caneharvest/internal/types"
)

// Config is the top-level configuration struct.
// Sub-components receive only the config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"caneharvest-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	History       HistoryConfig
	Insights      InsightsConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo `ignored:"true"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s" validate:"gt=0"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds database connection, pool tuning, and circuit breaker
// parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2" validate:"min=0,ltefield=MaxConns"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`

	// Timezone of server-assigned created_at timestamps. Also defines "today"
	// for harvest date validation.
	Timezone string `envconfig:"DB_TIMEZONE" default:"America/Sao_Paulo" validate:"required"`

	// Circuit breaker: trips after more than BreakerMaxFailures consecutive
	// failures and stays open for BreakerTimeout.
	BreakerMaxFailures uint32        `envconfig:"DB_BREAKER_MAX_FAILURES" default:"5" validate:"min=1"`
	BreakerTimeout     time.Duration `envconfig:"DB_BREAKER_TIMEOUT" default:"30s" validate:"gt=0"`

	location *time.Location
}

// Location returns the resolved Timezone. It is UTC until the loader has
// resolved it.
func (d DatabaseConfig) Location() *time.Location {
	if d.location == nil {
		return time.UTC
	}
	return d.location
}

// HistoryConfig holds the JSON history log location.
type HistoryConfig struct {
	FilePath string `envconfig:"HISTORY_FILE_PATH" default:"harvest_history.json" validate:"required"`
}

// InsightsConfig holds the metrics precision and the advisory thresholds.
type InsightsConfig struct {
	Precision      int    `envconfig:"METRICS_PRECISION" default:"2" validate:"min=0,max=10"`
	ThresholdsFile string `envconfig:"INSIGHTS_THRESHOLDS_FILE"`
	Thresholds     types.Thresholds
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Harvest event stream. Publishing is disabled when empty.
	HarvestEventsQueue string `envconfig:"SQS_HARVEST_EVENTS" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"CaneHarvest"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrThresholdsFile indicates the YAML thresholds override could not be
	// read or decoded.
	ErrThresholdsFile ConfigErrorType = "THRESHOLDS_FILE_FAILED"
)
