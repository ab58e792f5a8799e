package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. DINERCADEAU_FETCH_CITY.
const EnvPrefix = "DINERCADEAU"

// Flags that have no config file key.
const (
	FlagConfig      = "config"
	FlagNoGeocoding = "no-geocoding"
)

// flagKeys maps every flag to its JSON config key.
var flagKeys = map[string]string{
	"city":                   "fetch.city",
	"max-pages":              "fetch.max_pages",
	"pause-seconds":          "fetch.pause_seconds",
	"base-url":               "fetch.base_url",
	"timeout-seconds":        "fetch.timeout_seconds",
	"email":                  "geocode.email",
	"geocode-pause-seconds":  "geocode.pause_seconds",
	"geocode-url":            "geocode.provider_url",
	"geocode-min-importance": "geocode.min_importance",
	"output":                 "output",
	"format":                 "format",
	"metrics-file":           "metrics_file",
	"verbose":                "verbose",
}

var geocodeFlags = []string{"email", "geocode-pause-seconds", "geocode-url", "geocode-min-importance"}

// RegisterFlags defines every configuration flag on fs with defaults from
// DefaultConfig.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()

	fs.String(FlagConfig, "", "Optional JSON config file (explicit flags override its values)")
	fs.String("city", d.Fetch.City, "Filter listings by city")
	fs.Int("max-pages", d.Fetch.MaxPages, "Number of listing pages to crawl")
	fs.Float64("pause-seconds", d.Fetch.PauseSeconds, "Seconds to wait between listing requests")
	fs.String("base-url", d.Fetch.BaseURL, "Base URL of the listing site")
	fs.Float64("timeout-seconds", d.Fetch.TimeoutSeconds, "HTTP timeout for listing requests in seconds")
	fs.String("email", d.Geocode.Email, "Contact email passed to the geocoding provider (enables geocoding)")
	fs.Float64("geocode-pause-seconds", d.Geocode.PauseSeconds, "Seconds to wait between geocoding lookups")
	fs.String("geocode-url", d.Geocode.ProviderURL, "Nominatim-compatible search endpoint")
	fs.Float64("geocode-min-importance", d.Geocode.MinImportance, "Minimum Nominatim importance (0-1) for accepting a match")
	fs.Bool(FlagNoGeocoding, false, "Skip geocoding lookups")
	fs.StringP("output", "o", d.OutputFile, "Output file path")
	fs.String("format", d.OutputFormat, "Output format: csv, json, dual or xlsx")
	fs.String("metrics-file", d.MetricsFile, "Write Prometheus metrics to this textfile after the run")
	fs.BoolP("verbose", "v", d.Verbose, "Enable verbose logging")

	// --pause is kept as an alias of --pause-seconds.
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "pause" {
			name = "pause-seconds"
		}
		return pflag.NormalizedName(name)
	})
}

// Load resolves the configuration from, in decreasing precedence: explicit
// flags, DINERCADEAU_* environment variables, the --config JSON file and
// defaults. Resolution is per field. The result is validated.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, _ := fs.GetString(FlagConfig)
	if path != "" {
		if err := ValidateFile(path); err != nil {
			return nil, err
		}
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, &ConfigError{Field: FlagConfig, Err: fmt.Errorf("read %s: %w", path, err)}
		}
	}

	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, &ConfigError{Field: key, Err: fmt.Errorf("bind flag --%s: %w", name, err)}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("decode: %w", err)}
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	cfg.Geocode.Email = strings.TrimSpace(cfg.Geocode.Email)

	noGeocoding, _ := fs.GetBool(FlagNoGeocoding)
	cfg.GeocodingEnabled = !noGeocoding &&
		(v.InConfig("geocode") || anyChanged(fs, geocodeFlags) || cfg.Geocode.Email != "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("fetch.base_url", d.Fetch.BaseURL)
	v.SetDefault("fetch.list_path", d.Fetch.ListPath)
	v.SetDefault("fetch.city", d.Fetch.City)
	v.SetDefault("fetch.max_pages", d.Fetch.MaxPages)
	v.SetDefault("fetch.pause_seconds", d.Fetch.PauseSeconds)
	v.SetDefault("fetch.timeout_seconds", d.Fetch.TimeoutSeconds)
	v.SetDefault("fetch.user_agent", d.Fetch.UserAgent)

	v.SetDefault("geocode.provider_url", d.Geocode.ProviderURL)
	v.SetDefault("geocode.email", d.Geocode.Email)
	v.SetDefault("geocode.pause_seconds", d.Geocode.PauseSeconds)
	v.SetDefault("geocode.timeout_seconds", d.Geocode.TimeoutSeconds)
	v.SetDefault("geocode.limit", d.Geocode.Limit)
	v.SetDefault("geocode.min_importance", d.Geocode.MinImportance)
	v.SetDefault("geocode.country_codes", d.Geocode.CountryCodes)
	v.SetDefault("geocode.cache_size", d.Geocode.CacheSize)
	v.SetDefault("geocode.user_agent", d.Geocode.UserAgent)

	v.SetDefault("output", d.OutputFile)
	v.SetDefault("format", d.OutputFormat)
	v.SetDefault("metrics_file", d.MetricsFile)
	v.SetDefault("verbose", d.Verbose)
}

func anyChanged(fs *pflag.FlagSet, names []string) bool {
	for _, name := range names {
		if fs.Changed(name) {
			return true
		}
	}
	return false
}
