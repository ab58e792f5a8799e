// Package config defines the run configuration and loads it from flags,
// environment and an optional JSON file.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultBaseURL    = "https://www.diner-cadeau.nl"
	DefaultListPath   = "/restaurant"
	DefaultGeocodeURL = "https://nominatim.openstreetmap.org/search"
	DefaultOutputFile = "dinercadeau_restaurants.csv"
)

// Config holds the full run configuration.
type Config struct {
	Fetch        FetchConfig   `mapstructure:"fetch"`
	Geocode      GeocodeConfig `mapstructure:"geocode"`
	OutputFile   string        `mapstructure:"output" validate:"required"`
	OutputFormat string        `mapstructure:"format" validate:"oneof=csv json dual xlsx"`
	MetricsFile  string        `mapstructure:"metrics_file"`
	Verbose      bool          `mapstructure:"verbose"`

	// GeocodingEnabled is derived by Load: a geocode section in the config
	// file, a geocode flag or an email turns it on, --no-geocoding off.
	GeocodingEnabled bool `mapstructure:"-"`
}

// FetchConfig controls how listing pages are requested.
type FetchConfig struct {
	BaseURL        string  `mapstructure:"base_url" validate:"required,url"`
	ListPath       string  `mapstructure:"list_path"`
	City           string  `mapstructure:"city"`
	MaxPages       int     `mapstructure:"max_pages" validate:"gte=1"`
	PauseSeconds   float64 `mapstructure:"pause_seconds" validate:"gte=0"`
	TimeoutSeconds float64 `mapstructure:"timeout_seconds" validate:"gt=0"`
	UserAgent      string  `mapstructure:"user_agent" validate:"required"`
}

// GeocodeConfig controls lookups against the Nominatim search API.
type GeocodeConfig struct {
	ProviderURL    string  `mapstructure:"provider_url" validate:"required,url"`
	Email          string  `mapstructure:"email" validate:"omitempty,email"`
	PauseSeconds   float64 `mapstructure:"pause_seconds" validate:"gte=0"`
	TimeoutSeconds float64 `mapstructure:"timeout_seconds" validate:"gt=0"`
	// Limit is how many candidates to request; the first one whose
	// importance reaches MinImportance is accepted.
	Limit         int     `mapstructure:"limit" validate:"gte=1,lte=40"`
	MinImportance float64 `mapstructure:"min_importance" validate:"gte=0,lte=1"`
	CountryCodes  string  `mapstructure:"country_codes"`
	CacheSize     int     `mapstructure:"cache_size" validate:"gte=0"`
	UserAgent     string  `mapstructure:"user_agent" validate:"required"`
}

// DefaultConfig returns conservative defaults for the listing site.
func DefaultConfig() *Config {
	return &Config{
		Fetch: FetchConfig{
			BaseURL:        DefaultBaseURL,
			ListPath:       DefaultListPath,
			MaxPages:       5,
			PauseSeconds:   1.0,
			TimeoutSeconds: 30,
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0 Safari/537.36",
		},
		Geocode: GeocodeConfig{
			ProviderURL:    DefaultGeocodeURL,
			PauseSeconds:   1.0,
			TimeoutSeconds: 30,
			Limit:          1,
			MinImportance:  0,
			CountryCodes:   "nl",
			CacheSize:      1024,
			UserAgent:      "dinercadeau-restaurants-index/0.1.0",
		},
		OutputFile:   DefaultOutputFile,
		OutputFormat: "csv",
	}
}

// Pause is the delay between successive listing requests.
func (f FetchConfig) Pause() time.Duration {
	return seconds(f.PauseSeconds)
}

// Timeout is the per-request HTTP timeout.
func (f FetchConfig) Timeout() time.Duration {
	return seconds(f.TimeoutSeconds)
}

// Pause is the delay between successive geocoding calls.
func (g GeocodeConfig) Pause() time.Duration {
	return seconds(g.PauseSeconds)
}

// Timeout is the per-request HTTP timeout.
func (g GeocodeConfig) Timeout() time.Duration {
	return seconds(g.TimeoutSeconds)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate ensures all configuration values are coherent. Every problem is
// reported as a *ConfigError; several are joined.
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return &ConfigError{Err: err}
		}
		for _, fe := range fieldErrs {
			errs = append(errs, &ConfigError{Field: fieldPath(fe), Err: errors.New(describe(fe))})
		}
	}

	if c.GeocodingEnabled && strings.TrimSpace(c.Geocode.Email) == "" {
		errs = append(errs, &ConfigError{Field: "geocode.email", Err: ErrMissingEmail})
	}

	return errors.Join(errs...)
}

// fieldPath turns "Config.fetch.max_pages" into "fetch.max_pages".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "cannot be empty"
	case "url":
		return fmt.Sprintf("%q is not a valid URL", fe.Value())
	case "email":
		return fmt.Sprintf("%q is not a valid email address", fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
