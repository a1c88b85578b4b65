package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// ClassifiedError is a build failure with a category, a severity, a retry
// hint and structured context.
type ClassifiedError struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	context  ErrorContext
}

func (e *ClassifiedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.category, e.severity, e.message, e.cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.category, e.severity, e.message)
}

func (e *ClassifiedError) Unwrap() error { return e.cause }

func (e *ClassifiedError) Category() ErrorCategory      { return e.category }
func (e *ClassifiedError) Severity() ErrorSeverity      { return e.severity }
func (e *ClassifiedError) RetryStrategy() RetryStrategy { return e.retry }
func (e *ClassifiedError) Message() string              { return e.message }
func (e *ClassifiedError) Context() ErrorContext        { return e.context }

// WithContext returns a copy of e with key set in its context.
func (e *ClassifiedError) WithContext(key string, value any) *ClassifiedError {
	cp := *e
	cp.context = e.context.Merge(ErrorContext{key: value})
	return &cp
}

// Is reports whether target is a ClassifiedError with the same category and message.
func (e *ClassifiedError) Is(target error) bool {
	if other, ok := target.(*ClassifiedError); ok {
		return e.category == other.category && e.message == other.message
	}
	return false
}

// CanRetry reports whether an automatic retry makes sense.
func (e *ClassifiedError) CanRetry() bool {
	return e.retry != RetryNever && e.retry != RetryUserAction
}

// IsFatal reports whether the error stops the build.
func (e *ClassifiedError) IsFatal() bool { return e.severity == SeverityFatal }

// IsTransient reports whether the condition may clear on its own.
func (e *ClassifiedError) IsTransient() bool {
	return e.retry == RetryImmediate || e.retry == RetryBackoff || e.retry == RetryRateLimit
}

// LogValue renders the error as a group so JSON logs keep category and
// context as fields.
func (e *ClassifiedError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("category", string(e.category)),
		slog.String("message", e.message),
	}
	for _, k := range slices.Sorted(maps.Keys(e.context)) {
		attrs = append(attrs, slog.Any(k, e.context[k]))
	}
	if e.cause != nil {
		attrs = append(attrs, slog.String("cause", e.cause.Error()))
	}
	return slog.GroupValue(attrs...)
}

// AsClassified returns the outermost ClassifiedError in the chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified, true
	}
	return nil, false
}

// IsClassified reports whether any error in the chain is a ClassifiedError.
func IsClassified(err error) bool {
	_, ok := AsClassified(err)
	return ok
}

// HasCategory checks if any ClassifiedError in the chain belongs to category.
// Joined errors are searched branch by branch.
func HasCategory(err error, category ErrorCategory) bool {
	switch e := err.(type) {
	case nil:
		return false
	case *ClassifiedError:
		if e.category == category {
			return true
		}
		return HasCategory(e.cause, category)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if HasCategory(inner, category) {
				return true
			}
		}
		return false
	default:
		return HasCategory(errors.Unwrap(err), category)
	}
}

// GetCategory returns the category of the outermost classified error, or
// CategoryInternal.
func GetCategory(err error) ErrorCategory {
	if classified, ok := AsClassified(err); ok {
		return classified.category
	}
	return CategoryInternal
}

// IsBuildFailure reports whether err already carries one of the categories
// that abort a build, so callers can propagate it without rewrapping.
func IsBuildFailure(err error) bool {
	for _, c := range BuildCategories {
		if HasCategory(err, c) {
			return true
		}
	}
	return false
}
