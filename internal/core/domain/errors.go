package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain error with a structured error code.
// Codes follow the format RX-{AREA}-{NNNN}; the last four digits mirror the
// closest HTTP status.
type DomainError struct {
	Code    string // Error code (e.g., "RX-PROTO-4000")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true // Only check if it's a DomainError
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Protocol errors (PROTO) are fatal to the connection.
var (
	// ErrMalformedMessage indicates the peer sent bytes that are not valid HTTP/1.x.
	ErrMalformedMessage = NewDomainError("RX-PROTO-4000", "malformed message")

	// ErrHeaderTooLarge indicates the request line or headers exceed the limit.
	ErrHeaderTooLarge = NewDomainError("RX-PROTO-4130", "header section too large")

	// ErrChunkTooLarge indicates a body chunk exceeds the limit.
	ErrChunkTooLarge = NewDomainError("RX-PROTO-4131", "chunk too large")
)

// Connection errors (CONN).
var (
	// ErrConnectionRejected indicates the admission filter refused the connection.
	ErrConnectionRejected = NewDomainError("RX-CONN-4030", "connection rejected")

	// ErrConnectionClosed indicates an operation on a closed connection.
	ErrConnectionClosed = NewDomainError("RX-CONN-5030", "connection closed")
)

// Splice errors (SPLICE) come from splitting a message stream into meta and body.
var (
	// ErrNoMeta indicates the stream terminated before its meta item.
	ErrNoMeta = NewDomainError("RX-SPLICE-5000", "stream completed without meta")

	// ErrUnexpectedItem indicates the first item of a stream was not a meta item.
	ErrUnexpectedItem = NewDomainError("RX-SPLICE-5001", "unexpected item before meta")

	// ErrBodyDiscarded is signalled to a body subscriber that arrives after
	// the spliced result was cancelled.
	ErrBodyDiscarded = NewDomainError("RX-SPLICE-5002", "body discarded")
)

// Exchange errors (HTTP).
var (
	// ErrHandlerFailed wraps an error raised by the service for one exchange.
	ErrHandlerFailed = NewDomainError("RX-HTTP-5000", "handler failed")
)
