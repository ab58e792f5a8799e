package parser

import (
	"errors"
	"fmt"
)

// ErrNoListings means neither JSON-LD nor a bootstrap payload yielded a
// restaurant.
var ErrNoListings = errors.New("no structured data or bootstrap payload with listings")

// ParseError reports a page that produced no records. It is recoverable:
// the page is logged and skipped.
type ParseError struct {
	PageURL    string
	PageNumber int
	Err        error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse page %d (%s): %v", e.PageNumber, e.PageURL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
