package dispatcher

import (
	"errors"
	"fmt"
)

// ErrorKind classifies tool-level failures so the reasoning loop can decide
// how to recover without re-querying internal state.
type ErrorKind string

const (
	// KindValidation covers unknown tool names, malformed arguments, and
	// invalid schedule specs. No side effects have occurred.
	KindValidation ErrorKind = "validation"
	// KindTimeout means a synchronous tool exceeded its ceiling.
	KindTimeout ErrorKind = "timeout"
	// KindNotFound covers lookups of missing jobs or tasks.
	KindNotFound ErrorKind = "not_found"
	// KindConflict covers duplicate names and invalid state transitions.
	KindConflict ErrorKind = "conflict"
	// KindResourceExhausted means the spawn bound was reached; retry later.
	KindResourceExhausted ErrorKind = "resource_exhausted"
	// KindBlocked means a tool's safety contract refused the call.
	KindBlocked ErrorKind = "blocked"
	// KindInternal covers infrastructure failures (workspace unreachable,
	// store corruption); fatal for the affected operation.
	KindInternal ErrorKind = "internal"
)

// Error is a structured tool-level error: kind, the offending field when
// known, and a human-readable message.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Errorf builds a structured error with a formatted message.
func Errorf(kind ErrorKind, field string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the error kind, defaulting to internal for plain errors.
func KindOf(err error) ErrorKind {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.Kind
	}
	return KindInternal
}

// AsError normalizes any error into a structured one.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}
	return &Error{Kind: KindInternal, Message: err.Error()}
}
