package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON string

// ValidateFile checks a JSON config file against the embedded schema, so
// misspelled keys and wrong types fail loudly instead of being ignored.
func ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Field: FlagConfig, Err: fmt.Errorf("read %s: %w", path, err)}
	}
	return ValidateJSON(data)
}

// ValidateJSON checks raw config file content against the embedded schema.
func ValidateJSON(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return &ConfigError{Field: FlagConfig, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		problems = append(problems, fmt.Sprintf("%s: %s", field, desc.Description()))
	}
	return &ConfigError{Field: FlagConfig, Err: fmt.Errorf("schema violations: %s", strings.Join(problems, "; "))}
}
