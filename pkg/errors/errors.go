// Package errors provides structured errors for trackgen.
// Every error carries a code for programmatic handling, optional context and a
// short stack trace.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Code identifies an error category.
type Code string

const (
	// Configuration errors (1xx)
	CodeConfiguration       Code = "E101"
	CodeInvalidDistribution Code = "E102"

	// Source errors (2xx)
	CodeSourcesExhausted Code = "E201"
	CodeSourceOpen       Code = "E202"

	// Store errors (3xx)
	CodeStoreQuery Code = "E301"

	// Persistence errors (4xx)
	CodeCheckpoint Code = "E401"

	// Output errors (5xx)
	CodeExport Code = "E501"

	CodeUnknown Code = "E999"
)

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrConfiguration             = &Error{Code: CodeConfiguration, Message: "configuration error"}
	ErrInvalidDistributionOutput = &Error{Code: CodeInvalidDistribution, Message: "invalid distribution output"}
	ErrSourcesExhausted          = &Error{Code: CodeSourcesExhausted, Message: "sources exhausted"}
)

// Error is the base error type for all trackgen errors.
type Error struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error. It returns nil if err is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *Error) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// Configuration creates a configuration error.
func Configuration(format string, args ...interface{}) *Error {
	return &Error{
		Code:       CodeConfiguration,
		Message:    fmt.Sprintf(format, args...),
		StackTrace: captureStack(2),
	}
}

// InvalidDistributionOutput reports a count sample that is negative or not an
// integer.
func InvalidDistributionOutput(value float64) *Error {
	return New(CodeInvalidDistribution, "count distribution must yield a non-negative integer").
		WithContext("value", value)
}

// SourcesExhausted reports that the cursor rolled past the last source.
func SourcesExhausted(sources int, last string) *Error {
	return New(CodeSourcesExhausted, "all sources exhausted").
		WithContext("sources", sources).
		WithContext("last", last)
}

// SourceOpen wraps a failure to open or stage a source.
func SourceOpen(source string, err error) *Error {
	return Wrap(err, CodeSourceOpen, "failed to open source").
		WithContext("source", source)
}

// StoreQuery wraps a failed store query.
func StoreQuery(query string, err error) *Error {
	return Wrap(err, CodeStoreQuery, "store query failed").
		WithContext("query", query)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var tgErr *Error
	if errors.As(err, &tgErr) {
		return tgErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var tgErr *Error
	if errors.As(err, &tgErr) {
		return tgErr.Code
	}
	return CodeUnknown
}

// IsFatal returns true if retrying the same call cannot succeed without
// reconfiguration.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeConfiguration, CodeInvalidDistribution, CodeSourcesExhausted:
		return true
	default:
		return false
	}
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
