// Package errors provides structured error handling for the engine. Errors
// carry a JSON-RPC error code, a classification category and severity, and
// optional request context, so the dispatcher can convert any failure into a
// well-formed error envelope without losing diagnostic detail.
package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// Category classifies an error for handling and filtering.
type Category string

const (
	CategoryProtocol   Category = "protocol"
	CategoryValidation Category = "validation"
	CategoryNotFound   Category = "not_found"
	CategoryCancelled  Category = "cancelled"
	CategoryTransport  Category = "transport"
	CategoryInternal   Category = "internal"
)

// Severity indicates how critical an error is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Context records where and when an error occurred.
type Context struct {
	RequestID string    `json:"request_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Method    string    `json:"method,omitempty"`
	Component string    `json:"component,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EngineError is the interface implemented by all engine errors.
type EngineError interface {
	error

	// Code returns the JSON-RPC error code.
	Code() int

	// Message returns the human-readable error message.
	Message() string

	// Detail returns additional technical detail for debugging.
	Detail() string

	// Data returns structured error data destined for the wire.
	Data() interface{}

	// Category returns the error category.
	Category() Category

	// Severity returns the error severity.
	Severity() Severity

	// Context returns the error context, possibly nil.
	Context() *Context

	// WithContext returns a copy of the error with the given context.
	WithContext(ctx *Context) EngineError

	// WithDetail returns a copy of the error with appended detail.
	WithDetail(detail string) EngineError

	// WithData returns a copy of the error with the given wire data.
	WithData(data interface{}) EngineError

	// Unwrap returns the underlying cause for errors.Is/As traversal.
	Unwrap() error
}

type baseError struct {
	code     int
	message  string
	detail   string
	data     interface{}
	category Category
	severity Severity
	context  *Context
	cause    error
}

func (e *baseError) Error() string {
	if e.detail != "" {
		return fmt.Sprintf("%s: %s", e.message, e.detail)
	}
	return e.message
}

func (e *baseError) Code() int          { return e.code }
func (e *baseError) Message() string    { return e.message }
func (e *baseError) Detail() string     { return e.detail }
func (e *baseError) Data() interface{}  { return e.data }
func (e *baseError) Category() Category { return e.category }
func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) Context() *Context  { return e.context }
func (e *baseError) Unwrap() error      { return e.cause }

func (e *baseError) WithContext(ctx *Context) EngineError {
	clone := *e
	clone.context = ctx
	return &clone
}

func (e *baseError) WithDetail(detail string) EngineError {
	clone := *e
	if clone.detail != "" {
		clone.detail = fmt.Sprintf("%s; %s", clone.detail, detail)
	} else {
		clone.detail = detail
	}
	return &clone
}

func (e *baseError) WithData(data interface{}) EngineError {
	clone := *e
	clone.data = data
	return &clone
}

// MarshalJSON serializes the error for diagnostic output.
func (e *baseError) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"code":     e.code,
		"message":  e.message,
		"category": string(e.category),
		"severity": string(e.severity),
	}
	if e.detail != "" {
		out["detail"] = e.detail
	}
	if e.data != nil {
		out["data"] = e.data
	}
	if e.context != nil {
		out["context"] = e.context
	}
	if e.cause != nil {
		out["cause"] = e.cause.Error()
	}
	return json.Marshal(out)
}

// New creates an EngineError with the given code, message and classification.
func New(code int, message string, category Category, severity Severity) EngineError {
	return &baseError{
		code:     code,
		message:  message,
		category: category,
		severity: severity,
		context:  &Context{Timestamp: time.Now()},
	}
}

// Newf creates an EngineError with a formatted message.
func Newf(code int, category Category, severity Severity, format string, args ...interface{}) EngineError {
	return New(code, fmt.Sprintf(format, args...), category, severity)
}

// Wrap wraps an existing error, preserving it as the cause.
func Wrap(err error, code int, message string, category Category, severity Severity) EngineError {
	return &baseError{
		code:     code,
		message:  message,
		category: category,
		severity: severity,
		cause:    err,
		context:  &Context{Timestamp: time.Now()},
	}
}

// AsEngineError extracts an EngineError from err, if it is one.
func AsEngineError(err error) (EngineError, bool) {
	if err == nil {
		return nil, false
	}
	ee, ok := err.(EngineError)
	return ee, ok
}

// IsCode reports whether err is an EngineError with the given code.
func IsCode(err error, code int) bool {
	if ee, ok := AsEngineError(err); ok {
		return ee.Code() == code
	}
	return false
}

// IsCategory reports whether err is an EngineError in the given category.
func IsCategory(err error, category Category) bool {
	if ee, ok := AsEngineError(err); ok {
		return ee.Category() == category
	}
	return false
}
