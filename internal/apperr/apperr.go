// Package apperr defines the error kinds surfaced by the API and their HTTP mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindServer Kind = iota
	KindValidation
	KindDuplicateKey
	KindDuplicateSubmission
	KindInsufficientQuestions
	KindNotFound
	KindAuthorization
	KindUnauthenticated
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDuplicateKey:
		return "duplicate_key"
	case KindDuplicateSubmission:
		return "duplicate_submission"
	case KindInsufficientQuestions:
		return "insufficient_questions"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "forbidden"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindConflict:
		return "conflict"
	default:
		return "server"
	}
}

// Status returns the HTTP status for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindDuplicateKey, KindDuplicateSubmission, KindInsufficientQuestions:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FieldError is a single field-level validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the application error carried from services to the HTTP boundary.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

func DuplicateKey(what string) *Error {
	return &Error{Kind: KindDuplicateKey, Message: what + " already exists"}
}

func DuplicateSubmission(testID string) *Error {
	return &Error{Kind: KindDuplicateSubmission, Message: "test " + testID + " has already been submitted for this attempt"}
}

// InsufficientQuestions carries the shortfall as details.
func InsufficientQuestions(msg string, details any) *Error {
	return &Error{Kind: KindInsufficientQuestions, Message: msg, Details: details}
}

func NotFound(what, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", what, id)}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Server wraps an unexpected failure. The message is safe to show; err is for logs only.
func Server(err error) *Error {
	return &Error{Kind: KindServer, Message: "internal server error", Err: err}
}

// KindOf reports the kind of err, KindServer for anything that is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServer
}

// As converts any error into an *Error, wrapping unknown errors as server errors.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Server(err)
}

// Collector accumulates field errors during validation.
type Collector struct {
	fields []FieldError
}

func (c *Collector) Add(field, msg string) {
	c.fields = append(c.fields, FieldError{Field: field, Message: msg})
}

func (c *Collector) Require(field, value string) {
	if value == "" {
		c.Add(field, "is required")
	}
}

// Err returns a validation error when any field failed, nil otherwise.
func (c *Collector) Err() error {
	if len(c.fields) == 0 {
		return nil
	}
	return Validation("validation failed", c.fields...)
}
