package magiccode

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an [Error].
type Kind string

const (
	// KindConfiguration marks an invalid configuration detected at construction.
	KindConfiguration Kind = "configuration"
	// KindValidation marks a missing or malformed input field (client fault).
	KindValidation Kind = "validation"
	// KindAuth marks an invalid, expired or already consumed code.
	KindAuth Kind = "auth"
	// KindDelivery marks a delivery hook failure; nothing was persisted.
	KindDelivery Kind = "delivery"
	// KindUnknownAction marks an unrecognized dispatch action.
	KindUnknownAction Kind = "unknown_action"
	// KindStorage marks a storage backend failure.
	KindStorage Kind = "storage"
)

var (
	// ErrConfiguration matches every configuration error via errors.Is.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrValidation matches every missing/invalid field error via errors.Is.
	ErrValidation = errors.New("invalid request")
	// ErrInvalidCode is returned for every failed code validation. The cause is
	// deliberately not distinguished.
	ErrInvalidCode = &Error{
		Kind:    KindAuth,
		Code:    "Invalid code",
		Message: "Code does not exist, is already used or is expired.",
		Status:  http.StatusBadRequest,
	}
	// ErrDelivery matches every delivery failure via errors.Is.
	ErrDelivery = errors.New("code delivery failed")
	// ErrUnknownAction is returned by Authenticate for unrecognized actions.
	ErrUnknownAction = &Error{
		Kind:    KindUnknownAction,
		Code:    "Unknown action",
		Message: "The requested action is not supported.",
		Status:  http.StatusInternalServerError,
	}
	// ErrStorageUnavailable matches every storage backend failure via errors.Is.
	ErrStorageUnavailable = errors.New("storage backend unavailable")
	// ErrEngineNotReady is returned when an Engine was not produced by Builder.Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)

var kindSentinels = map[Kind]error{
	KindConfiguration: ErrConfiguration,
	KindValidation:    ErrValidation,
	KindAuth:          ErrInvalidCode,
	KindDelivery:      ErrDelivery,
	KindUnknownAction: ErrUnknownAction,
	KindStorage:       ErrStorageUnavailable,
}

// Error is the structured failure returned by every Engine operation. Code is a
// short machine-readable label, Message a human explanation and Status the
// suggested HTTP status for transport adapters.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	Status     int
	Violations []string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Code)
	if len(e.Violations) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Violations, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is the sentinel for e's kind, so
// errors.Is(err, ErrDelivery) and friends work on any *Error.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if sentinel, ok := kindSentinels[e.Kind]; ok && sentinel == target {
		return true
	}
	if t, ok := target.(*Error); ok {
		return t.Kind == e.Kind && t.Code == e.Code
	}
	return false
}

// StatusCode returns the suggested HTTP status, defaulting to 500.
func (e *Error) StatusCode() int {
	if e == nil || e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusOf returns the suggested HTTP status for err.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode()
	}
	return http.StatusInternalServerError
}

func missingFieldError(field string) error {
	return &Error{
		Kind:    KindValidation,
		Code:    "Missing field: " + field,
		Message: fmt.Sprintf("The field (%s) is missing.", field),
		Status:  http.StatusBadRequest,
	}
}

func invalidFieldError(field string) error {
	return &Error{
		Kind:    KindValidation,
		Code:    "Invalid field: " + field,
		Message: fmt.Sprintf("The field (%s) must be a string.", field),
		Status:  http.StatusBadRequest,
	}
}

func deliveryError(err error) error {
	return &Error{
		Kind:    KindDelivery,
		Code:    "Delivery failed",
		Message: "The code could not be delivered.",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func storageError(err error) error {
	return &Error{
		Kind:    KindStorage,
		Code:    "Storage unavailable",
		Message: "The code store could not be reached.",
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

func generationError(err error) error {
	return &Error{
		Kind:    KindStorage,
		Code:    "Code generation failed",
		Message: "A code could not be generated.",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func configurationError(violations []string) error {
	return &Error{
		Kind:       KindConfiguration,
		Code:       "Invalid configuration",
		Message:    "The configuration violates one or more constraints.",
		Status:     http.StatusInternalServerError,
		Violations: violations,
	}
}
