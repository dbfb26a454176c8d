package shared

import (
	"errors"
	"fmt"
)

// Sentinel errors. Match them with errors.Is.
var (
	ErrNotFound = errors.New("entity not found")

	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	ErrInvalidState = errors.New("invalid state")

	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError attaches the entity and operation to a sentinel.
type DomainError struct {
	Domain  string // "quest", "persistence", "generator"
	Op      string
	Kind    error // sentinel matched by errors.Is
	Message string
	Err     error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap exposes the sentinel.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches another DomainError by sentinel.
func (e *DomainError) Is(target error) bool {
	if t, ok := target.(*DomainError); ok {
		return e.Domain == t.Domain && e.Op == t.Op && e.Message == t.Message
	}
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError builds a DomainError.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError adds entity and op context to err.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Quest domain errors
var (
	ErrInvalidTarget    = NewDomainError("quest", "Validate", ErrValueOutOfRange, "target must exceed progress")
	ErrInvalidQuestType = NewDomainError("quest", "Validate", ErrInvalidInput, "unknown quest type")
	ErrInvalidScope     = NewDomainError("quest", "Validate", ErrInvalidInput, "unknown section scope")
)

// Persistence errors
var (
	ErrActorRequired   = NewDomainError("persistence", "Scope", ErrInvalidInput, "actor id is required")
	ErrActorMismatch   = NewDomainError("persistence", "Load", ErrInvalidState, "snapshot belongs to another actor")
	ErrSnapshotCorrupt = NewDomainError("persistence", "Decode", ErrInvalidFormat, "snapshot cannot be decoded")
	ErrStoreClosed     = NewDomainError("persistence", "Store", ErrServiceUnavailable, "store is closed")
)

// Generator errors
var (
	ErrNoQuestsGenerated = NewDomainError("generator", "Generate", ErrInvalidState, "no valid quests could be generated")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is an input error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	if err == nil || IsValidation(err) {
		return false
	}
	return !errors.Is(err, ErrInvalidFormat) && !errors.Is(err, ErrInvalidState)
}
