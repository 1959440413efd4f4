package errors

// ErrorCode represents a machine-readable error identifier for frontend error handling.
type ErrorCode string

// Validation errors (request input validation)
const (
	ErrCodeMissingField ErrorCode = "missing_field"
	ErrCodeInvalidField ErrorCode = "invalid_field"
)

// Resource/state errors
const (
	ErrCodePaymentNotFound ErrorCode = "payment_not_found"
)

// External service errors
const (
	ErrCodeProcessorError ErrorCode = "processor_error"
	ErrCodeNetworkError   ErrorCode = "network_error"
)

// Internal/system errors
const (
	ErrCodeInternalError ErrorCode = "internal_error"
	ErrCodeConfigError   ErrorCode = "config_error"
)

// IsRetryable returns whether an error code represents a retryable error.
// The server itself never retries; this flag tells the client whether
// repeating the same request can succeed.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeProcessorError, ErrCodeNetworkError:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the appropriate HTTP status code for this error.
// Processor failures on create operations surface as a generic 500: the
// client's recovery action (retry the whole create) is the same either way.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrCodeMissingField, ErrCodeInvalidField:
		return 400
	case ErrCodePaymentNotFound:
		return 404
	default:
		return 500
	}
}
