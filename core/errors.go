package core

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Validation errors
	ErrValidation = errors.New("validation failed")

	// Workflow errors
	ErrUnknownWorkflow  = errors.New("unknown workflow kind")
	ErrCyclicDependency = errors.New("circular dependency detected in workflow steps")
	ErrWorkflowNotFound = errors.New("workflow not found")

	// Transaction errors
	ErrTransactionCreation = errors.New("transaction creation failed")
	ErrWorkflowStartup     = errors.New("failed to start any workflows")

	// Credential errors
	ErrPasswordNotFound           = errors.New("password not found for taxpayer")
	ErrPasswordServiceUnavailable = errors.New("password service unavailable")

	// Transient infrastructure errors (retryable)
	ErrConnectionFailed         = errors.New("connection failed")
	ErrTimeout                  = errors.New("operation timeout")
	ErrServiceUnavailable       = errors.New("service unavailable")
	ErrGatewayTimeout           = errors.New("gateway timeout")
	ErrSessionPoolExhausted     = errors.New("browser session pool exhausted")
	ErrBrowserSessionNotCreated = errors.New("browser session not created")
	ErrGridUnavailable          = errors.New("browser grid unavailable")
	ErrDriverFailure            = errors.New("browser driver failure")
)

// DuplicateTransactionError is returned when a request's fingerprint is
// already known to the transaction store. It carries the exchange id of
// the run that owns the fingerprint.
type DuplicateTransactionError struct {
	ExistingExchangeID string
}

func (e *DuplicateTransactionError) Error() string {
	return fmt.Sprintf("duplicate transaction found: %s", e.ExistingExchangeID)
}

// Error kinds used for persisted error classification. Kinds survive the
// round trip through the transaction store, which only holds strings;
// retry eligibility is decided on the kind, never on the message text.
const (
	KindInfrastructure = "infrastructure"
	KindBrowserSession = "browser_session"
	KindConnection     = "connection"
	KindTimeout        = "timeout"
	KindBusiness       = "business"
	KindValidation     = "validation"
	KindSystem         = "system"
	KindUnknown        = "unknown"
)

// ErrorKind classifies err into one of the Kind* constants by error
// identity. Message contents are never inspected.
func ErrorKind(err error) string {
	if err == nil {
		return KindUnknown
	}
	switch {
	case errors.Is(err, ErrSessionPoolExhausted),
		errors.Is(err, ErrBrowserSessionNotCreated),
		errors.Is(err, ErrDriverFailure):
		return KindBrowserSession
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrGatewayTimeout):
		return KindTimeout
	case errors.Is(err, ErrConnectionFailed),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED):
		return KindConnection
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, ErrGridUnavailable):
		return KindInfrastructure
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrPasswordNotFound),
		errors.Is(err, ErrPasswordServiceUnavailable):
		return KindBusiness
	case errors.Is(err, ErrCyclicDependency),
		errors.Is(err, ErrUnknownWorkflow),
		errors.Is(err, ErrInvalidConfiguration),
		errors.Is(err, ErrMissingConfiguration):
		return KindSystem
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}

	return KindUnknown
}

// IsRetryable reports whether err is a transient infrastructure failure
// worth retrying. Classification is by error kind only.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return KindIsRetryable(ErrorKind(err))
}

// KindIsRetryable reports whether a persisted error kind belongs to the
// retryable taxonomy.
func KindIsRetryable(kind string) bool {
	switch kind {
	case KindInfrastructure, KindBrowserSession, KindConnection, KindTimeout:
		return true
	}
	return false
}
