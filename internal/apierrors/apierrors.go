// Package apierrors defines the typed failure taxonomy for the
// transcription service and its mapping onto the OpenAI error envelope.
package apierrors

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Kind classifies a failure into one of the user-facing categories.
type Kind int

const (
	// KindValidation covers client-fixable input problems (bad extension,
	// oversized upload, unreadable audio).
	KindValidation Kind = iota
	// KindProcessing covers server-side I/O and subprocess failures.
	KindProcessing
	// KindModel covers inference and model-load failures.
	KindModel
	// KindModelNotLoaded signals the engine is not ready to serve.
	KindModelNotLoaded
	// KindUnsupportedParameter signals a request for an OpenAI feature
	// this implementation does not provide.
	KindUnsupportedParameter
)

// Error is the typed error carried through the request pipeline. It holds
// a human-readable message plus a structured detail map so the HTTP layer
// can build the OpenAI envelope without re-parsing messages.
type Error struct {
	Kind    Kind
	Message string
	Param   string
	Code    string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// WithDetail attaches a single detail entry and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Validation builds a client-fixable input error.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Code: "audio_validation_error", Param: "file"}
}

// Processing builds a server-side I/O or subprocess error.
func Processing(msg string, cause error) *Error {
	return &Error{Kind: KindProcessing, Message: msg, Code: "audio_processing_error", Cause: cause}
}

// Model builds an inference or model-load error.
func Model(msg string, cause error) *Error {
	return &Error{Kind: KindModel, Message: msg, Code: "model_error", Cause: cause}
}

// NotLoaded builds the typed "engine not ready" error. Callers receive it
// whenever transcription is attempted outside the READY state.
func NotLoaded() *Error {
	return &Error{
		Kind:    KindModelNotLoaded,
		Message: "Model is not loaded. Please wait for server initialization to complete.",
		Code:    "model_not_loaded",
	}
}

// UnsupportedParameter builds the error returned when a request names an
// OpenAI feature this implementation rejects.
func UnsupportedParameter(parameter string, value any, reason string) *Error {
	return &Error{
		Kind:    KindUnsupportedParameter,
		Message: fmt.Sprintf("Unsupported value for parameter '%s': %v. %s", parameter, value, reason),
		Param:   parameter,
		Code:    "unsupported_parameter",
		Details: map[string]any{"parameter": parameter, "value": value, "reason": reason},
	}
}

// As extracts a typed *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	if e, ok := As(err); ok {
		return e.Kind == kind
	}
	return false
}

// StatusCode maps an error to its HTTP status. Untyped errors map to 500.
func StatusCode(err error) int {
	e, ok := As(err)
	if !ok {
		return fiber.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		if e.Code == "file_too_large" {
			return fiber.StatusRequestEntityTooLarge
		}
		return fiber.StatusBadRequest
	case KindUnsupportedParameter:
		return fiber.StatusBadRequest
	case KindModelNotLoaded:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// errorType returns the OpenAI envelope "type" field for an error.
func errorType(err error) string {
	if e, ok := As(err); ok {
		switch e.Kind {
		case KindValidation, KindUnsupportedParameter:
			return "invalid_request_error"
		}
	}
	return "api_error"
}

// Envelope renders an error as the OpenAI-style error body. Untyped errors
// are replaced with a generic internal message so internals never leak.
func Envelope(err error, requestID string) fiber.Map {
	detail := fiber.Map{
		"type": errorType(err),
	}
	if e, ok := As(err); ok {
		detail["message"] = e.Message
		detail["code"] = e.Code
		if e.Param != "" {
			detail["param"] = e.Param
		}
	} else {
		detail["message"] = "An unexpected error occurred. Please try again later."
		detail["code"] = "internal_error"
	}
	if requestID != "" {
		detail["request_id"] = requestID
	}
	return fiber.Map{"error": detail}
}
