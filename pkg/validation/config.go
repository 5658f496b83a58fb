package validation

import (
	"errors"
	"fmt"
	"time"
)

// ConfigValidator provides a fluent interface for validating configuration values.
// It collects all validation errors rather than failing on the first one.
type ConfigValidator struct {
	errors []error
	name   string // config section name for error messages
}

// NewConfigValidator creates a new config validator with the given config name.
func NewConfigValidator(configName string) *ConfigValidator {
	return &ConfigValidator{
		name:   configName,
		errors: make([]error, 0),
	}
}

func (cv *ConfigValidator) fail(field, format string, args ...any) *ConfigValidator {
	cv.errors = append(cv.errors, fmt.Errorf("%s.%s: %s", cv.name, field, fmt.Sprintf(format, args...)))
	return cv
}

// Required validates that a string field is not empty.
func (cv *ConfigValidator) Required(field, value string) *ConfigValidator {
	if value == "" {
		return cv.fail(field, "required field is empty")
	}
	return cv
}

// Positive validates that an int field is positive (> 0).
func (cv *ConfigValidator) Positive(field string, value int) *ConfigValidator {
	if value <= 0 {
		return cv.fail(field, "value %d must be positive", value)
	}
	return cv
}

// NonNegative validates that an int field is non-negative (>= 0).
func (cv *ConfigValidator) NonNegative(field string, value int) *ConfigValidator {
	if value < 0 {
		return cv.fail(field, "value %d must be non-negative", value)
	}
	return cv
}

// MinDuration validates that a duration is at least the minimum.
func (cv *ConfigValidator) MinDuration(field string, value, min time.Duration) *ConfigValidator {
	if value < min {
		return cv.fail(field, "duration %v is below minimum %v", value, min)
	}
	return cv
}

// MaxDuration validates that a duration does not exceed the maximum.
func (cv *ConfigValidator) MaxDuration(field string, value, max time.Duration) *ConfigValidator {
	if value > max {
		return cv.fail(field, "duration %v exceeds maximum %v", value, max)
	}
	return cv
}

// OneOf validates that a string field is one of the allowed values.
func (cv *ConfigValidator) OneOf(field, value string, allowed []string) *ConfigValidator {
	for _, a := range allowed {
		if value == a {
			return cv
		}
	}
	return cv.fail(field, "value %q must be one of %v", value, allowed)
}

// ListenAddr validates a host:port listen address.
func (cv *ConfigValidator) ListenAddr(field, value string) *ConfigValidator {
	if err := ValidateListenAddr(value); err != nil {
		return cv.fail(field, "%v", err)
	}
	return cv
}

// Custom applies a custom validation function.
func (cv *ConfigValidator) Custom(field string, fn func() error) *ConfigValidator {
	if err := fn(); err != nil {
		cv.errors = append(cv.errors, fmt.Errorf("%s.%s: %w", cv.name, field, err))
	}
	return cv
}

// When conditionally applies validations if the condition is true.
func (cv *ConfigValidator) When(condition bool, validations func(*ConfigValidator)) *ConfigValidator {
	if condition {
		validations(cv)
	}
	return cv
}

// HasErrors returns true if any validation errors occurred.
func (cv *ConfigValidator) HasErrors() bool {
	return len(cv.errors) > 0
}

// Errors returns all validation errors.
func (cv *ConfigValidator) Errors() []error {
	return cv.errors
}

// Validate returns every collected error joined, or nil.
func (cv *ConfigValidator) Validate() error {
	return errors.Join(cv.errors...)
}

// DefaultOr returns the value if it's non-zero, otherwise returns the default.
func DefaultOr[T comparable](value, defaultValue T) T {
	var zero T
	if value == zero {
		return defaultValue
	}
	return value
}

// DefaultOrDuration returns the value if it's positive, otherwise returns the default.
func DefaultOrDuration(value, defaultValue time.Duration) time.Duration {
	if value <= 0 {
		return defaultValue
	}
	return value
}
