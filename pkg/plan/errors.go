package plan

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	ErrDocumentParse     = errors.New("plan document could not be parsed")
	ErrDuplicateElement  = errors.New("duplicate element name")
	ErrUnknownComparator = errors.New("unknown comparator")
	ErrInvalidCheckTime  = errors.New("invalid check time")
	ErrElementNotFound   = errors.New("element not found")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrGraphSealed       = errors.New("graph is published and read-only")
)

// Error provides structured error information for plan operations.
type Error struct {
	Op       string   // Operation that failed (e.g., "Add", "ParseSense")
	Category Category // Element category (if applicable)
	Name     string   // Element or sense name (if applicable)
	Cause    error    // Underlying error
	Context  string   // Additional context
}

// Error implements the error interface.
func (e *Error) Error() string {
	var subject string
	switch {
	case e.Category != 0 && e.Name != "":
		subject = fmt.Sprintf(" %s %q", e.Category, e.Name)
	case e.Name != "":
		subject = fmt.Sprintf(" %q", e.Name)
	case e.Category != 0:
		subject = " " + e.Category.String()
	}
	if e.Context != "" {
		return fmt.Sprintf("%s%s (%s): %v", e.Op, subject, e.Context, e.Cause)
	}
	return fmt.Sprintf("%s%s: %v", e.Op, subject, e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target error matches this error's cause.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	return errors.Is(e.Cause, target)
}

// ErrorBuilder provides a fluent interface for building plan Errors.
type ErrorBuilder struct {
	err Error
}

// NewError creates a new error builder with the given operation.
func NewError(op string) *ErrorBuilder {
	return &ErrorBuilder{err: Error{Op: op}}
}

// Element sets the category and name of the element involved.
func (b *ErrorBuilder) Element(c Category, name string) *ErrorBuilder {
	b.err.Category = c
	b.err.Name = name
	return b
}

// Name sets the name involved without a category (e.g. a sense).
func (b *ErrorBuilder) Name(name string) *ErrorBuilder {
	b.err.Name = name
	return b
}

// Context adds free-form context.
func (b *ErrorBuilder) Context(ctx string) *ErrorBuilder {
	b.err.Context = ctx
	return b
}

// Cause sets the underlying error and returns the built error.
func (b *ErrorBuilder) Cause(cause error) error {
	b.err.Cause = cause
	e := b.err
	return &e
}
