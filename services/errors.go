package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeCapture      ErrorType = "capture"
	ErrorTypeProvisioning ErrorType = "provisioning"
	ErrorTypePublish      ErrorType = "publish"
	ErrorTypeDispatch     ErrorType = "dispatch"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is. Two domain errors match when both type and
// message are equal, so an error built with Wrap matches its sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Message == t.Message
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Capture Errors
	ErrNothingToCapture = NewDomainError(ErrorTypeCapture, "nothing to capture", nil)
	ErrBodyNotText      = NewDomainError(ErrorTypeCapture, "response body is not valid text", nil)
	ErrBodyUnreadable   = NewDomainError(ErrorTypeCapture, "response body could not be read", nil)

	// Provisioning Errors
	ErrQueueCreateFailed       = NewDomainError(ErrorTypeProvisioning, "failed to create queue", nil)
	ErrQueueResolveFailed      = NewDomainError(ErrorTypeProvisioning, "failed to resolve queue address", nil)
	ErrProvisioningInterrupted = NewDomainError(ErrorTypeProvisioning, "queue provisioning interrupted", nil)
	ErrPublisherFailed         = NewDomainError(ErrorTypeProvisioning, "publisher provisioning failed", nil)

	// Publish Errors
	ErrNilRecord           = NewDomainError(ErrorTypePublish, "nil log record", nil)
	ErrSerializationFailed = NewDomainError(ErrorTypePublish, "failed to serialize log record", nil)
	ErrSendFailed          = NewDomainError(ErrorTypePublish, "failed to send log record", nil)

	// Dispatch Errors
	ErrDispatchBufferFull   = NewDomainError(ErrorTypeDispatch, "dispatch buffer full", nil)
	ErrDispatcherNotStarted = NewDomainError(ErrorTypeDispatch, "dispatcher not started", nil)
)

// Error type checking helper functions

// IsCaptureError checks if an error is a capture error
func IsCaptureError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeCapture
	}
	return false
}

// IsProvisioningError checks if an error is a provisioning error
func IsProvisioningError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeProvisioning
	}
	return false
}

// IsPublishError checks if an error is a publish error
func IsPublishError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypePublish
	}
	return false
}

// IsDispatchError checks if an error is a dispatch error
func IsDispatchError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeDispatch
	}
	return false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// Wrap returns a new error of the sentinel's kind carrying err as its cause.
// The result matches sentinel under errors.Is and has its own Details.
func Wrap(sentinel *DomainError, err error) *DomainError {
	return NewDomainError(sentinel.Type, sentinel.Message, err)
}
