package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/labels"

	"dashsync/pkg/logging"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// AddError records err against field unless it is nil.
func (ve *ValidationErrors) AddError(err error) {
	if err == nil {
		return
	}
	if v, ok := err.(ValidationError); ok {
		*ve = append(*ve, v)
		return
	}
	*ve = append(*ve, ValidationError{Message: err.Error()})
}

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: "is required",
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateMin checks that an integer is at least min.
func ValidateMin(field string, value, min int) error {
	if value < min {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("must be at least %d", min),
		}
	}
	return nil
}

// ValidateDuration checks that a duration is positive, or not negative when
// zero is allowed.
func ValidateDuration(field string, value time.Duration, allowZero bool) error {
	if value < 0 || (value == 0 && !allowZero) {
		msg := "must be positive"
		if allowZero {
			msg = "must not be negative"
		}
		return ValidationError{Field: field, Value: value, Message: msg}
	}
	return nil
}

// ValidateHTTPURL checks that value is an absolute http or https URL.
func ValidateHTTPURL(field, value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return ValidationError{Field: field, Value: value, Message: fmt.Sprintf("is not a valid URL: %v", err)}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ValidationError{Field: field, Value: value, Message: "must be an absolute http or https URL"}
	}
	return nil
}

// Validate checks the configuration and returns every problem found as
// ValidationErrors, or nil.
func (c Config) Validate() error {
	var errs ValidationErrors

	if err := ValidateRequired("grafana.url", c.Grafana.URL); err != nil {
		errs.AddError(err)
	} else {
		errs.AddError(ValidateHTTPURL("grafana.url", c.Grafana.URL))
	}
	if c.Grafana.Password != "" && c.Grafana.Username == "" && c.Grafana.APIKey == "" {
		errs.Add("grafana.username", "is required when grafana.password is set")
	}
	errs.AddError(ValidateDuration("grafana.timeout", c.Grafana.Timeout, false))
	if strings.ContainsAny(c.Grafana.MarkerTag, ",") {
		errs.Add("grafana.markerTag", "must not contain commas", c.Grafana.MarkerTag)
	}

	errs.AddError(ValidateOneOf("source.mode", c.Source.Mode, []string{SourceModeKubernetes, SourceModeFilesystem}))
	if c.Source.Mode == SourceModeFilesystem {
		errs.AddError(ValidateRequired("source.path", c.Source.Path))
	}
	if _, err := labels.Parse(c.Source.Selector); err != nil {
		errs.Add("source.selector", fmt.Sprintf("is not a valid label selector: %v", err), c.Source.Selector)
	}
	if _, err := filepath.Match(c.Source.FilePattern, ""); err != nil || c.Source.FilePattern == "" {
		errs.Add("source.filePattern", "is not a valid file pattern", c.Source.FilePattern)
	}
	errs.AddError(ValidateDuration("source.resyncPeriod", c.Source.ResyncPeriod, true))
	errs.AddError(ValidateDuration("source.debounceInterval", c.Source.DebounceInterval, true))

	errs.AddError(ValidateMin("reconcile.maxAttempts", c.Reconcile.MaxAttempts, 1))
	errs.AddError(ValidateMin("reconcile.concurrency", c.Reconcile.Concurrency, 1))
	errs.AddError(ValidateDuration("reconcile.initialBackoff", c.Reconcile.InitialBackoff, false))
	errs.AddError(ValidateDuration("reconcile.maxBackoff", c.Reconcile.MaxBackoff, false))
	if c.Reconcile.MaxBackoff > 0 && c.Reconcile.MaxBackoff < c.Reconcile.InitialBackoff {
		errs.Add("reconcile.maxBackoff", "must not be less than reconcile.initialBackoff", c.Reconcile.MaxBackoff)
	}
	errs.AddError(ValidateDuration("reconcile.shutdownGracePeriod", c.Reconcile.ShutdownGracePeriod, true))

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs.Add("log.level", err.Error(), c.Log.Level)
	}
	errs.AddError(ValidateOneOf("log.format", c.Log.Format, []string{logging.FormatConsole, logging.FormatJSON}))

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// LabelSelector parses the configured ConfigMap selector.
func (c Config) LabelSelector() (labels.Selector, error) {
	selector, err := labels.Parse(c.Source.Selector)
	if err != nil {
		return nil, fmt.Errorf("invalid label selector %q: %w", c.Source.Selector, err)
	}
	return selector, nil
}
