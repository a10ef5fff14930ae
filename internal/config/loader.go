// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC as the process timezone.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Overlay advisory thresholds from INSIGHTS_THRESHOLDS_FILE, if set.
//  5. Populate BuildInfo from linker-injected variables.
//  6. Validate the struct using go-playground/validator.
//  7. Resolve the database timezone.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"caneharvest/internal/types"
)

// ConfigError is a diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// loaderDeps holds the injectable dependencies for the loader, enabling
// testing without touching the working directory.
type loaderDeps struct {
	loadDotenv   func() error
	readFile     func(name string) ([]byte, error)
	loadLocation func(name string) (*time.Location, error)
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		loadDotenv:   func() error { return godotenv.Load() },
		readFile:     os.ReadFile,
		loadLocation: time.LoadLocation,
	}
}

// LoadConfig loads and validates the service configuration.
func LoadConfig() (*Config, error) {
	return loadConfigWithDeps(defaultDeps())
}

func loadConfigWithDeps(deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// A missing .env file is normal outside local development. It never
	// overrides variables already present in the environment.
	_ = deps.loadDotenv()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	if path := cfg.Insights.ThresholdsFile; path != "" {
		data, err := deps.readFile(path)
		if err != nil {
			return nil, &ConfigError{
				Type:    ErrThresholdsFile,
				Message: fmt.Sprintf("failed to read thresholds file %s", path),
				Err:     err,
			}
		}
		th, err := DecodeThresholds(data, cfg.Insights.Thresholds)
		if err != nil {
			return nil, &ConfigError{
				Type:    ErrThresholdsFile,
				Message: fmt.Sprintf("failed to decode thresholds file %s", path),
				Err:     err,
			}
		}
		cfg.Insights.Thresholds = th
	}

	cfg.Build = NewBuildInfo()

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	loc, err := deps.loadLocation(cfg.Database.Timezone)
	if err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("unknown DB_TIMEZONE %q", cfg.Database.Timezone),
			Err:     err,
		}
	}
	cfg.Database.location = loc

	return &cfg, nil
}

// DecodeThresholds overlays the YAML document in data onto base. Keys absent
// from the document keep their base value; unknown keys are rejected. An
// empty document returns base unchanged.
func DecodeThresholds(data []byte, base types.Thresholds) (types.Thresholds, error) {
	out := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return base, nil
		}
		return base, err
	}
	return out, nil
}

// LoadThresholdsFile reads a YAML thresholds file and overlays it onto base.
func LoadThresholdsFile(path string, base types.Thresholds) (types.Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read thresholds file: %w", err)
	}
	th, err := DecodeThresholds(data, base)
	if err != nil {
		return base, fmt.Errorf("decode thresholds file %s: %w", path, err)
	}
	return th, nil
}
