package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput matches any *InvalidInputError via errors.Is
	ErrInvalidInput = errors.New("invalid input")
	// ErrCatalog matches any *CatalogError via errors.Is
	ErrCatalog = errors.New("catalog error")
)

// InvalidInputError reports a malformed or missing request field.
// It is a caller error and is never retried.
type InvalidInputError struct {
	Field  string
	Reason string
}

// NewInvalidInput builds an *InvalidInputError
func NewInvalidInput(field, reason string) *InvalidInputError {
	return &InvalidInputError{Field: field, Reason: reason}
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidInput) true
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// CatalogError reports bad rule or reference definitions found at load time.
// An engine must not serve from a source that produced one.
type CatalogError struct {
	Source   string
	Problems []string
	Err      error
}

func (e *CatalogError) Error() string {
	var b strings.Builder
	b.WriteString("catalog")
	if e.Source != "" {
		b.WriteString(" ")
		b.WriteString(e.Source)
	}
	switch {
	case len(e.Problems) > 0:
		fmt.Fprintf(&b, ": %d problem(s): %s", len(e.Problems), strings.Join(e.Problems, "; "))
	case e.Err != nil:
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying I/O or decode error, if any
func (e *CatalogError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrCatalog) true
func (e *CatalogError) Is(target error) bool {
	return target == ErrCatalog
}
