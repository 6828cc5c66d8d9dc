package ir

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode categorizes store failures.
type ErrorCode string

const (
	// ErrCodeEncoding: payload cannot be canonicalized. Caller must fix input.
	ErrCodeEncoding ErrorCode = "ENCODING_ERROR"

	// ErrCodeNotFound: referenced id absent.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeIntegrityConflict: one id, two payloads. Fatal, never retried.
	ErrCodeIntegrityConflict ErrorCode = "INTEGRITY_CONFLICT"

	// ErrCodeDanglingReference: edge endpoint or run unknown at append.
	ErrCodeDanglingReference ErrorCode = "DANGLING_REFERENCE"

	// ErrCodeUnknownRelation: relation outside the closed set.
	ErrCodeUnknownRelation ErrorCode = "UNKNOWN_RELATION"

	// ErrCodeAppendTimeout: lock contention exceeded the bound. Safe to retry.
	ErrCodeAppendTimeout ErrorCode = "CONCURRENT_APPEND_TIMEOUT"

	// ErrCodeSchemaViolation: payload shape rejected by a type schema.
	ErrCodeSchemaViolation ErrorCode = "SCHEMA_VIOLATION"

	// ErrCodeInvalidTransition: run status change not allowed.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
)

// Error is the typed failure returned by every store operation.
// Every failure leaves the store in its pre-call state.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ID is the offending asset, run, or edge reference, if any.
	ID string

	// Err is the underlying cause, if any.
	Err error
}

// Sentinels for errors.Is matching by code.
var (
	ErrEncoding          = &Error{Code: ErrCodeEncoding}
	ErrNotFound          = &Error{Code: ErrCodeNotFound}
	ErrIntegrityConflict = &Error{Code: ErrCodeIntegrityConflict}
	ErrDanglingReference = &Error{Code: ErrCodeDanglingReference}
	ErrUnknownRelation   = &Error{Code: ErrCodeUnknownRelation}
	ErrAppendTimeout     = &Error{Code: ErrCodeAppendTimeout}
	ErrSchemaViolation   = &Error{Code: ErrCodeSchemaViolation}
	ErrInvalidTransition = &Error{Code: ErrCodeInvalidTransition}
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.ID != "" {
		msg += fmt.Sprintf(" (id=%s)", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare sentinel (code only) against any error with that code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.ID == "" && t.Err == nil && t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Retryable reports whether retrying the same call can succeed.
// Only append contention is transient; every other code is a data or logic
// error that a retry cannot fix.
func Retryable(err error) bool {
	return CodeOf(err) == ErrCodeAppendTimeout
}

// IsNotFound returns true if err carries ErrCodeNotFound.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsIntegrityConflict returns true if err carries ErrCodeIntegrityConflict.
func IsIntegrityConflict(err error) bool { return CodeOf(err) == ErrCodeIntegrityConflict }

// IsDanglingReference returns true if err carries ErrCodeDanglingReference.
func IsDanglingReference(err error) bool { return CodeOf(err) == ErrCodeDanglingReference }

// NewEncodingError creates an ENCODING_ERROR.
func NewEncodingError(message string, cause error) *Error {
	return &Error{Code: ErrCodeEncoding, Message: message, Err: cause}
}

// NewNotFound creates a NOT_FOUND for id.
func NewNotFound(id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: "no such asset or run", ID: id}
}

// NewIntegrityConflict creates an INTEGRITY_CONFLICT for id.
func NewIntegrityConflict(id, message string) *Error {
	return &Error{Code: ErrCodeIntegrityConflict, Message: message, ID: id}
}

// NewDanglingReference creates a DANGLING_REFERENCE naming which endpoint
// of the edge failed to resolve.
func NewDanglingReference(field, id string) *Error {
	return &Error{
		Code:    ErrCodeDanglingReference,
		Message: fmt.Sprintf("%s does not resolve to a known asset or run", field),
		ID:      id,
	}
}

// NewUnknownRelation creates an UNKNOWN_RELATION.
func NewUnknownRelation(rel string) *Error {
	return &Error{
		Code:    ErrCodeUnknownRelation,
		Message: fmt.Sprintf("relation %q is not one of USES, PRODUCES, CONFIGURES, DERIVES, LOGS", rel),
	}
}

// NewAppendTimeout creates a CONCURRENT_APPEND_TIMEOUT.
func NewAppendTimeout(bound time.Duration) *Error {
	return &Error{
		Code:    ErrCodeAppendTimeout,
		Message: fmt.Sprintf("could not acquire append slot within %s", bound),
	}
}

// NewSchemaViolation creates a SCHEMA_VIOLATION for an asset type.
func NewSchemaViolation(t AssetType, cause error) *Error {
	return &Error{
		Code:    ErrCodeSchemaViolation,
		Message: fmt.Sprintf("payload does not match the %s schema", t),
		Err:     cause,
	}
}

// NewInvalidTransition creates an INVALID_TRANSITION for a run.
func NewInvalidTransition(runID string, from, to RunStatus) *Error {
	return &Error{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("run status cannot move from %s to %s", from, to),
		ID:      runID,
	}
}

// prefixEncoding prepends a value path to encoding errors so nested
// failures read like `["kappa"][3]: non-finite number NaN`.
func prefixEncoding(path string, err error) error {
	var e *Error
	if errors.As(err, &e) && e.Code == ErrCodeEncoding {
		sep := ": "
		if strings.HasPrefix(e.Message, "[") {
			sep = ""
		}
		return &Error{Code: e.Code, Message: path + sep + e.Message, ID: e.ID, Err: e.Err}
	}
	return fmt.Errorf("%s: %w", path, err)
}
