package geocode

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMatch means the provider returned no acceptable candidate.
	ErrNoMatch = errors.New("no geocoding match")
	// ErrNoAddress means the record has nothing more specific than a
	// country to look up.
	ErrNoAddress = errors.New("no address to geocode")
)

// GeocodeError reports a failed lookup for one record. It is recoverable:
// the record is kept without coordinates.
type GeocodeError struct {
	Name  string
	Query string
	Err   error
}

func (e *GeocodeError) Error() string {
	return fmt.Sprintf("geocode %q (%s): %v", e.Name, e.Query, e.Err)
}

func (e *GeocodeError) Unwrap() error {
	return e.Err
}
