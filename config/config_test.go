package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "zero max pages",
			mutate: func(cfg *Config) {
				cfg.Fetch.MaxPages = 0
			},
			wantErr: "fetch.max_pages",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.Fetch.BaseURL = ""
			},
			wantErr: "fetch.base_url",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.Fetch.BaseURL = "not a url"
			},
			wantErr: "fetch.base_url",
		},
		{
			name: "negative pause",
			mutate: func(cfg *Config) {
				cfg.Fetch.PauseSeconds = -1
			},
			wantErr: "fetch.pause_seconds",
		},
		{
			name: "zero timeout",
			mutate: func(cfg *Config) {
				cfg.Fetch.TimeoutSeconds = 0
			},
			wantErr: "fetch.timeout_seconds",
		},
		{
			name: "unknown format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "parquet"
			},
			wantErr: "format",
		},
		{
			name: "empty output",
			mutate: func(cfg *Config) {
				cfg.OutputFile = ""
			},
			wantErr: "output",
		},
		{
			name: "malformed email",
			mutate: func(cfg *Config) {
				cfg.Geocode.Email = "not-an-email"
			},
			wantErr: "geocode.email",
		},
		{
			name: "importance above one",
			mutate: func(cfg *Config) {
				cfg.Geocode.MinImportance = 1.5
			},
			wantErr: "geocode.min_importance",
		},
		{
			name: "geocoding without email",
			mutate: func(cfg *Config) {
				cfg.GeocodingEnabled = true
			},
			wantErr: "contact email",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestGeocodingEnabledWithEmailValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GeocodingEnabled = true
	cfg.Geocode.Email = "ops@example.test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestMissingEmailIsSentinel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GeocodingEnabled = true
	if err := cfg.Validate(); !errors.Is(err, ErrMissingEmail) {
		t.Fatalf("expected ErrMissingEmail, got %v", err)
	}
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fetch.PauseSeconds = 1.5
	cfg.Geocode.TimeoutSeconds = 0.25

	if got := cfg.Fetch.Pause(); got != 1500*time.Millisecond {
		t.Fatalf("fetch pause = %v, want 1.5s", got)
	}
	if got := cfg.Geocode.Timeout(); got != 250*time.Millisecond {
		t.Fatalf("geocode timeout = %v, want 250ms", got)
	}
}
