package assistant

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cashplan/cashplan/internal/llm"
)

var (
	ErrGenerationFailed   = llm.ErrGenerationFailed
	ErrValidationRejected = errors.New("assistant: generated sql rejected")
	ErrExecutionFailed    = errors.New("assistant: query execution failed")
	ErrExtractionFailed   = errors.New("assistant: could not extract entity")
	ErrEntityValidation   = errors.New("assistant: entity validation failed")
	ErrPersistFailed      = errors.New("assistant: could not save entity")
	ErrPromptContext      = errors.New("assistant: prompt context unavailable")
)

// RejectionError carries the reason generated SQL was refused. Stage is
// "validator" for the keyword rules and "scope" for the ownership check.
type RejectionError struct {
	Stage  string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("generated sql rejected by %s: %s", e.Stage, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return ErrValidationRejected
}

type EntityValidationError struct {
	Entity  EntityType
	Missing []string
	Invalid []string
}

func (e *EntityValidationError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing fields "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid fields "+strings.Join(e.Invalid, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Entity, strings.Join(parts, "; "))
}

func (e *EntityValidationError) Unwrap() error {
	return ErrEntityValidation
}

func (e *EntityValidationError) empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0
}

// ModelRefusalError is returned when the model answered with {"error": ...}
// instead of an entity. Reason is meant for the end user.
type ModelRefusalError struct {
	Reason string
}

func (e *ModelRefusalError) Error() string {
	return "model declined to extract entity: " + e.Reason
}
