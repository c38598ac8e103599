package errcode

import (
	"errors"
	"fmt"
	"net/http"
)

// Numeric codes attached to error responses:
// - 0: no error
// - 4xxx: caller errors (input, state, ownership)
// - 5xxx: system or upstream failures
const (
	OK              = 0
	InvalidInput    = 4000
	AccessDenied    = 4003
	ResourceMissing = 4004
	Duplicate       = 4009
	InvalidState    = 4010
	SystemError     = 5000
	UpstreamFailure = 5020
)

// Kind classifies failures for propagation and HTTP mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindForbidden
	KindState
	KindAIService
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindState:
		return "state"
	case KindAIService:
		return "ai_service"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error is a classified failure with a stable, user-visible message.
type Error struct {
	Kind    Kind
	Message string
	// Status overrides the default HTTP status of Kind when non-zero.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the response status for the error.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	return StatusFor(e.Kind)
}

// Code returns the numeric response code for the error.
func (e *Error) Code() int {
	return CodeFor(e.Kind)
}

// WithStatus overrides the HTTP status reported for e.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// New builds an Error without an underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func Validation(message string) *Error { return New(KindValidation, message) }
func Conflict(message string) *Error   { return New(KindConflict, message) }
func NotFound(message string) *Error   { return New(KindNotFound, message) }
func Forbidden(message string) *Error  { return New(KindForbidden, message) }
func State(message string) *Error      { return New(KindState, message) }

// Persistence wraps an unexpected storage failure.
func Persistence(message string, cause error) *Error {
	return Wrap(KindPersistence, message, cause)
}

// As extracts the classified error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindUnknown when it is not classified.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// StatusFor maps a Kind to its default HTTP status.
func StatusFor(kind Kind) int {
	switch kind {
	case KindValidation, KindState:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindAIService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CodeFor maps a Kind to its numeric response code.
func CodeFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return InvalidInput
	case KindConflict:
		return Duplicate
	case KindNotFound:
		return ResourceMissing
	case KindForbidden:
		return AccessDenied
	case KindState:
		return InvalidState
	case KindAIService:
		return UpstreamFailure
	default:
		return SystemError
	}
}
