// Package errs provides structured error types and helpers for the fbflow runtime.
package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Code identifies a runtime error category.
type Code string

const (
	// CodeQueueFull indicates an event queue rejected an entry.
	CodeQueueFull Code = "queue_full"
	// CodePathMalformed indicates a browse path that cannot be parsed or is not rooted at /Objects.
	CodePathMalformed Code = "path_malformed"
	// CodeService indicates a non-good status returned by the OPC UA stack.
	CodeService Code = "service_error"
	// CodeTypeMismatch indicates an IEC datatype outside the supported scalar set or a value/type disagreement.
	CodeTypeMismatch Code = "type_mismatch"
	// CodeLifecycle indicates a management command that does not apply in the current engine state.
	CodeLifecycle Code = "lifecycle"
	// CodeNotFound indicates a missing node or resource.
	CodeNotFound Code = "not_found"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeUnavailable indicates a collaborator is temporarily unreachable.
	CodeUnavailable Code = "unavailable"
)

// E captures structured error information produced across the runtime.
type E struct {
	Component string
	Code      Code
	Message   string
	Status    uint32

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the component and error code.
func New(component string, code Code, opts ...Option) *E {
	e := &E{
		Component: strings.TrimSpace(component),
		Code:      code,
		Message:   "",
		Status:    0,
		cause:     nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithMessagef attaches a formatted human-readable message to the error.
func WithMessagef(format string, args ...any) Option {
	return WithMessage(fmt.Sprintf(format, args...))
}

// WithStatus records the raw OPC UA service status code.
func WithStatus(status uint32) Option {
	return func(e *E) {
		e.Status = status
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	component := strings.TrimSpace(e.Component)
	if component == "" {
		component = "unknown"
	}
	parts = append(parts, "component="+component)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=0x%08X", e.Status))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the runtime error code from err, or an empty Code when err
// does not carry an envelope.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given runtime error code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
