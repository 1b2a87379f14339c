// Package errs is the shared error-kind taxonomy used at every component
// boundary. Handlers map a Kind to an HTTP status and response body;
// internal callers check Kind with errors.As instead of comparing strings.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindAuth                 Kind = "auth"
	KindRateLimited          Kind = "rate_limited"
	KindMonthlyLimitExceeded Kind = "monthly_limit_exceeded"
	KindInvalidState         Kind = "invalid_state"
	KindNotFound             Kind = "not_found"
	KindValidation           Kind = "validation"
	KindUpstream             Kind = "upstream"
	KindConflict             Kind = "conflict"
	KindInternal             Kind = "internal"
)

// Error is the structured error type returned at component boundaries.
// Fields is set for error kinds whose response body carries structured
// data (monthly-limit-exceeded carries Used/Limit, for instance).
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = map[string]any{}
	}
	e.Fields[key] = value
	return e
}

// MonthlyLimitExceeded builds the structured 429 body spec.md describes for
// the proxy's usage-cap rejection.
func MonthlyLimitExceeded(used, limit int64) *Error {
	return New(KindMonthlyLimitExceeded, "monthly token limit exceeded").
		WithField("used", used).
		WithField("limit", limit)
}

// As pulls a *Error out of an error chain, the same way callers elsewhere
// use errors.As directly.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
