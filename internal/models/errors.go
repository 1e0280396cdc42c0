package models

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes routing failures. The kind decides how the fallback
// coordinator reacts: backend-class failures advance to the next candidate,
// policy and configuration failures abort the request.
type ErrorKind string

const (
	KindConfiguration      ErrorKind = "configuration_error"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindRateLimited        ErrorKind = "rate_limited"
	KindTimeout            ErrorKind = "timeout"
	KindBackend            ErrorKind = "backend_error"
	KindQuotaExceeded      ErrorKind = "quota_exceeded"
	KindAllProvidersFailed ErrorKind = "all_providers_failed"
	KindNotSupported       ErrorKind = "not_supported"
)

// RoutingError is the structured error used across the orchestration core.
type RoutingError struct {
	Kind       ErrorKind
	Message    string
	Backend    string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *RoutingError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Backend != "" {
		msg = fmt.Sprintf("%s: %s (backend %s)", e.Kind, e.Message, e.Backend)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}

// Is matches two routing errors by kind, so callers can compare against the
// kind sentinels below with errors.Is.
func (e *RoutingError) Is(target error) bool {
	t, ok := target.(*RoutingError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Kind sentinels for errors.Is comparisons.
var (
	ErrConfiguration      = &RoutingError{Kind: KindConfiguration}
	ErrServiceUnavailable = &RoutingError{Kind: KindServiceUnavailable}
	ErrRateLimited        = &RoutingError{Kind: KindRateLimited}
	ErrTimeout            = &RoutingError{Kind: KindTimeout}
	ErrBackend            = &RoutingError{Kind: KindBackend}
	ErrQuotaExceeded      = &RoutingError{Kind: KindQuotaExceeded}
	ErrAllProvidersFailed = &RoutingError{Kind: KindAllProvidersFailed}
	ErrNotSupported       = &RoutingError{Kind: KindNotSupported}
)

// NewConfigurationError reports a bad or missing credential or descriptor.
func NewConfigurationError(message string, err error) *RoutingError {
	return &RoutingError{Kind: KindConfiguration, Message: message, Err: err}
}

// NewServiceUnavailable reports that no candidate survived filtering.
func NewServiceUnavailable(message string) *RoutingError {
	return &RoutingError{Kind: KindServiceUnavailable, Message: message}
}

// NewRateLimited reports an admission-control rejection made before any
// network call.
func NewRateLimited(backend, message string) *RoutingError {
	return &RoutingError{Kind: KindRateLimited, Message: message, Backend: backend, Retryable: true}
}

// NewTimeout reports an adapter call that exceeded its deadline.
func NewTimeout(backend string, err error) *RoutingError {
	return &RoutingError{Kind: KindTimeout, Message: "call exceeded deadline", Backend: backend, Retryable: true, Err: err}
}

// NewBackendError reports a vendor-side failure. Retryable follows the HTTP
// class: 5xx and 429 are transient, auth and bad-request classes are not.
func NewBackendError(backend, message string, statusCode int, retryable bool, err error) *RoutingError {
	return &RoutingError{
		Kind:       KindBackend,
		Message:    message,
		Backend:    backend,
		StatusCode: statusCode,
		Retryable:  retryable,
		Err:        err,
	}
}

// NewQuotaExceeded reports a budget ceiling breach. It halts the whole
// request, not just one backend.
func NewQuotaExceeded(message string) *RoutingError {
	return &RoutingError{Kind: KindQuotaExceeded, Message: message}
}

// NewAllProvidersFailed reports that every ranked candidate was attempted
// and failed; lastErr is the final candidate's error.
func NewAllProvidersFailed(attempts int, lastErr error) *RoutingError {
	return &RoutingError{
		Kind:    KindAllProvidersFailed,
		Message: fmt.Sprintf("all %d candidate backends exhausted", attempts),
		Err:     lastErr,
	}
}

// NewNotSupported reports an operation the backend family does not expose.
func NewNotSupported(backend, operation string) *RoutingError {
	return &RoutingError{Kind: KindNotSupported, Message: operation + " is not supported", Backend: backend}
}

// KindOf returns the kind of a routing error, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var re *RoutingError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// IsRetryable reports whether the error is worth retrying against the same
// backend. Foreign errors (transport failures without a status) are treated
// as transient.
func IsRetryable(err error) bool {
	var re *RoutingError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return true
}
