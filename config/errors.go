package config

import (
	"errors"
	"fmt"
)

// ErrMissingEmail is returned when geocoding is enabled without the contact
// email the provider's usage policy requires.
var ErrMissingEmail = errors.New("geocoding requires a contact email (--email or geocode.email)")

// ConfigError reports invalid or unreadable configuration. It is fatal at
// startup.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
