package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the extraction and query layers.
var (
	ErrSchemaKeyNotFound = errors.New("schema key not found")
	ErrExtractionStatus  = errors.New("extraction status is not success")
	ErrUnknownProduct    = errors.New("unknown product type")
	ErrManualShape       = errors.New("unexpected manual shape")
	ErrImageNotFound     = errors.New("image data not found")
	ErrInvalidQuery      = errors.New("invalid query")
	ErrQueryTooShort     = errors.New("query too short")
	ErrQueryInjection    = errors.New("query contains suspicious content")
	ErrUnsupportedQuery  = errors.New("unsupported query")
	ErrNoMatchingData    = errors.New("no matching data")
)

// SchemaKeyNotFoundError reports a generic relation key absent from the
// schema registry.
type SchemaKeyNotFoundError struct {
	Key string
}

func (e *SchemaKeyNotFoundError) Error() string {
	return fmt.Sprintf("schema: key %q not found", e.Key)
}

func (e *SchemaKeyNotFoundError) Unwrap() error { return ErrSchemaKeyNotFound }

// ShapeError reports a missing or mistyped key in a parsed manual.
type ShapeError struct {
	Path    string
	Wrapped error
}

func (e *ShapeError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("manual shape: %s: %v", e.Path, e.Wrapped)
	}
	return fmt.Sprintf("manual shape: %s", e.Path)
}

func (e *ShapeError) Unwrap() error { return ErrManualShape }

// NewShapeError creates a ShapeError for path.
func NewShapeError(path string, wrapped error) *ShapeError {
	return &ShapeError{Path: path, Wrapped: wrapped}
}

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
