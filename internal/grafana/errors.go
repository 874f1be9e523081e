package grafana

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies backend failures by how the caller should react.
type ErrorKind int

const (
	// KindTransient failures are retried with backoff.
	KindTransient ErrorKind = iota

	// KindConflict means the object already exists or changed concurrently.
	KindConflict

	// KindNotFound means the object does not exist.
	KindNotFound

	// KindFatal failures are not retried until the input changes.
	KindFatal
)

// String returns the lowercase name used in logs and metric labels.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Sentinel errors matched by errors.Is against an *APIError of the same kind.
var (
	ErrTransient = errors.New("transient backend error")
	ErrConflict  = errors.New("dashboard conflict")
	ErrNotFound  = errors.New("dashboard not found")
	ErrFatal     = errors.New("fatal backend error")
)

// APIError describes a failed backend call.
type APIError struct {
	Kind       ErrorKind
	Operation  string
	UID        string
	StatusCode int
	Message    string

	// Err is the underlying transport or encoding error, if any.
	Err error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("grafana %s %s: %s (status %d): %s", e.Operation, e.UID, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("grafana %s %s: %s: %s", e.Operation, e.UID, e.Kind, msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrFatal:
		return e.Kind == KindFatal
	}
	return false
}

// KindForStatus maps an HTTP status code to an ErrorKind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict, status == http.StatusPreconditionFailed:
		return KindConflict
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return KindTransient
	case status >= 500:
		return KindTransient
	default:
		return KindFatal
	}
}

// KindOf classifies any error. Errors that are not APIErrors are treated as
// transient, since they originate from transports or cancelled contexts.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindTransient
}

// IsConflict reports whether err is a conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsFatal reports whether err must not be retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}

// transportError wraps an error returned by the HTTP client.
func transportError(operation, uid string, err error) *APIError {
	apiErr := &APIError{Kind: KindTransient, Operation: operation, UID: uid, Err: err}

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		apiErr.Message = "request cancelled"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		apiErr.Message = "request timed out"
	}
	return apiErr
}
