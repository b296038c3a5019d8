package config

import (
	"fmt"
	"strings"

	"github.com/wesleyorama2/bombard/internal/logger"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e *ValidationErrors) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		out[i] = err
	}
	return out
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks the run shape. It returns nil or a *ValidationErrors.
func (e ExecutionConfig) Validate() error {
	errs := &ValidationErrors{}
	e.validate(errs)
	if errs.HasErrors() {
		return errs
	}
	return nil
}

func (e ExecutionConfig) validate(errs *ValidationErrors) {
	if e.ThreadCount <= 0 {
		errs.Add("thread_count", "must be greater than 0")
	}
	if e.Iterations < 0 {
		errs.Add("iterations", "cannot be negative")
	}
	if e.ExecutionTime < 0 {
		errs.Add("execution_time", "cannot be negative")
	}
	if e.RampUpTime <= 0 {
		errs.Add("rampup_time", "must be greater than 0")
	}
	if e.ThreadDelay < 0 {
		errs.Add("thread_delay", "cannot be negative")
	}
	if e.Iterations == 0 && e.ExecutionTime == 0 {
		errs.Add("iterations", "execution_time and iterations cannot both be 0")
	}
}

// Validate validates the entire configuration.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if c.CollectionFile == "" {
		errs.Add("collection_file", "collection file is required")
	}
	if c.ReportFile == "" {
		errs.Add("report_file", "report file is required")
	}

	c.Execution().validate(errs)

	if c.Timeout < 0 {
		errs.Add("timeout", "cannot be negative")
	}
	if c.RetryMax < 0 {
		errs.Add("retry_max", "cannot be negative")
	}
	if c.LogLevel != "" {
		if _, err := logger.ResolveLevel(c.LogLevel); err != nil {
			errs.Add("log_level", err.Error())
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
