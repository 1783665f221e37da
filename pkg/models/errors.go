package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors shared by the prediction pipeline and its transports.
var (
	// ErrPipelineNotReady is returned when one or more fitted artifacts
	// failed to load. It persists until the artifacts are reloaded.
	ErrPipelineNotReady = errors.New("prediction pipeline not ready")

	// ErrArtifactMismatch is returned when a fitted artifact receives a
	// vector whose width differs from the width it was fitted on.
	ErrArtifactMismatch = errors.New("artifact width mismatch")

	// ErrUnmappedCategory is returned under the reject policy when a
	// validated categorical value has no indicator column.
	ErrUnmappedCategory = errors.New("categorical value has no feature column")

	// ErrNonFinitePrediction is returned when a regressor yields NaN or Inf.
	ErrNonFinitePrediction = errors.New("regressor produced a non-finite value")
)

// ValidationError carries field-level validation messages.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError returns an empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string][]string)}
}

// Add records a message against a field.
func (e *ValidationError) Add(field, message string) {
	e.Fields[field] = append(e.Fields[field], message)
}

// HasErrors reports whether any field failed validation.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// FieldNames returns the failing field names in sorted order.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, name := range e.FieldNames() {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(e.Fields[name], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// PersistenceError reports a failed append to a named observation store.
type PersistenceError struct {
	Store string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("appending to %s: %v", e.Store, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// UnmappedCategoryError names the field whose value had no indicator column.
type UnmappedCategoryError struct {
	Field string
	Value string
}

func (e *UnmappedCategoryError) Error() string {
	return fmt.Sprintf("%s %q has no feature column", e.Field, e.Value)
}

func (e *UnmappedCategoryError) Unwrap() error {
	return ErrUnmappedCategory
}
