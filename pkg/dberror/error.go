package dberror

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCategory classifies engine errors by how a caller is expected to react.
// None of the categories is retried by the engine itself.
type ErrorCategory int

const (
	// CategoryConfiguration represents an operator that was configured with a
	// value it cannot run with: a batch size expression that is not a positive
	// integer, an unparsable cache TTL, a cache provider that is not registered.
	// Raised when the operator is opened.
	CategoryConfiguration ErrorCategory = iota

	// CategoryContract represents a collaborator that broke the execution
	// contract, e.g. an index-capable operator that did not consume the outer
	// values placed in the context. These imply silent data loss if ignored
	// and are never swallowed.
	CategoryContract

	// CategoryEvaluation represents a failing expression. Evaluation errors are
	// normally passed through untouched; the category exists for evaluators
	// that want to tag their own failures.
	CategoryEvaluation

	// CategoryResource represents interrupted or failed infrastructure such as
	// the worker pool or the result queue of the batch parallel operator.
	CategoryResource
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryConfiguration:
		return "configuration"
	case CategoryContract:
		return "contract"
	case CategoryEvaluation:
		return "evaluation"
	case CategoryResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Error codes used by the engine.
const (
	CodeInvalidBatchSize     = "INVALID_BATCH_SIZE"
	CodeInvalidCacheTTL      = "INVALID_CACHE_TTL"
	CodeInvalidCacheName     = "INVALID_CACHE_NAME"
	CodeInvalidCacheKey      = "INVALID_CACHE_KEY"
	CodeMissingCacheProvider = "MISSING_CACHE_PROVIDER"
	CodeMissingIndex         = "MISSING_INDEX"
	CodeInvalidConfig        = "INVALID_CONFIG"

	CodeOuterValuesNotConsumed = "OUTER_VALUES_NOT_CONSUMED"
	CodeMissingOuterValues     = "MISSING_OUTER_VALUES"
	CodeUnexpectedTuple        = "UNEXPECTED_TUPLE"
	CodeUnsortedInput          = "UNSORTED_INPUT"

	CodeQueueInterrupted = "QUEUE_INTERRUPTED"
	CodeWorkerFailed     = "WORKER_FAILED"
	CodeCacheProvider    = "CACHE_PROVIDER_FAILED"
)

// DBError represents a structured engine error with rich context information.
type DBError struct {
	// Code is a unique identifier for this error type (e.g., "OUTER_VALUES_NOT_CONSUMED").
	Code string

	// Category classifies the error for appropriate handling strategy.
	Category ErrorCategory

	// Message is a human-readable description of what went wrong.
	Message string

	// Detail provides additional context about the specific error instance.
	Detail string

	// Hint suggests how the user might fix or work around this error.
	Hint string

	// Operation identifies the operation that was being performed when the error occurred.
	// Examples: "Open", "ProbeBatch", "FetchCache".
	Operation string

	// Component identifies the operator or subsystem where the error originated.
	// Examples: "BatchHashJoin", "BatchCache", "RedisProvider".
	Component string

	// Cause is the underlying error that triggered this error.
	Cause error

	// Stack contains the call stack where this error was created.
	Stack []uintptr
}

// New creates a new DBError with the specified code, category, and message.
func New(category ErrorCategory, code, message string) *DBError {
	return &DBError{
		Code:     code,
		Category: category,
		Message:  message,
		Stack:    captureStack(),
	}
}

// Configuration creates a configuration error. Configuration errors are fatal
// and raised when an operator is opened.
func Configuration(code, component, format string, args ...any) *DBError {
	err := New(CategoryConfiguration, code, fmt.Sprintf(format, args...))
	err.Component = component
	err.Operation = "Open"
	return err
}

// ContractViolation creates an error describing a collaborator that broke the
// execution contract.
func ContractViolation(code, component, format string, args ...any) *DBError {
	err := New(CategoryContract, code, fmt.Sprintf(format, args...))
	err.Component = component
	return err
}

// Resource wraps an infrastructure failure.
func Resource(cause error, code, component, message string) *DBError {
	err := New(CategoryResource, code, message)
	err.Component = component
	err.Cause = cause
	return err
}

// Wrap wraps an existing error with engine-specific context information.
// If the error is already a DBError, it enriches the existing error with
// operation and component context (only if not already set).
func Wrap(err error, code, operation, component string) *DBError {
	if err == nil {
		return nil
	}

	var dbErr *DBError
	if errors.As(err, &dbErr) {
		if dbErr.Operation == "" {
			dbErr.Operation = operation
		}
		if dbErr.Component == "" {
			dbErr.Component = component
		}
		return dbErr
	}

	return &DBError{
		Code:      code,
		Category:  CategoryResource,
		Message:   err.Error(),
		Operation: operation,
		Component: component,
		Cause:     err,
		Stack:     captureStack(),
	}
}

// WithDetail sets the detail and returns the error for chaining.
func (e *DBError) WithDetail(format string, args ...any) *DBError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithHint sets the hint and returns the error for chaining.
func (e *DBError) WithHint(hint string) *DBError {
	e.Hint = hint
	return e
}

// Is reports whether err, or any error it wraps, is a DBError of the category.
func Is(err error, category ErrorCategory) bool {
	var dbErr *DBError
	if errors.As(err, &dbErr) {
		return dbErr.Category == category
	}
	return false
}

// HasCode reports whether err, or any error it wraps, is a DBError with the code.
func HasCode(err error, code string) bool {
	var dbErr *DBError
	if errors.As(err, &dbErr) {
		return dbErr.Code == code
	}
	return false
}

// captureStack captures the current call stack for debugging purposes.
// It skips the first 3 frames to exclude captureStack, New/Wrap, and the
// immediate caller, focusing on the actual error origin.
func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[0:n]
}

// Error implements the standard Go error interface
//
// The format follows the pattern:
// [ERROR_CODE] Message: Detail (operation: Operation, component: Component) caused by: underlying error
func (e *DBError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)

	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}

	if e.Operation != "" {
		fmt.Fprintf(&b, " (operation: %s", e.Operation)
		if e.Component != "" {
			fmt.Fprintf(&b, ", component: %s", e.Component)
		}
		b.WriteString(")")
	} else if e.Component != "" {
		fmt.Fprintf(&b, " (component: %s)", e.Component)
	}

	if e.Cause != nil {
		fmt.Fprintf(&b, " caused by: %v", e.Cause)
	}

	return b.String()
}

// Unwrap returns the underlying cause error, enabling error chain traversal
// with Go's standard error handling functions like errors.Is and errors.As.
func (e *DBError) Unwrap() error {
	return e.Cause
}

// FormatStack returns a human-readable stack trace for debugging purposes.
func (e *DBError) FormatStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(e.Stack)

	b.WriteString("Stack trace:\n")
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "  %s\n    %s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}

	return b.String()
}
