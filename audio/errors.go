package audio

import (
	"errors"
	"fmt"
)

// ErrorCode classifies playback failures. The set is closed; anything
// unclassifiable maps to CodeUnknown.
type ErrorCode int

const (
	CodeUnknown ErrorCode = iota
	CodeContentNotFound
	CodeUnsupportedFormat
	CodePermissionDenied
	CodeDeviceBusy
	CodeInsufficientMemory
	CodeHardwareError
	CodeDecodingError
	CodeInterrupted
	CodeTimeout
	CodeConfigurationError
	CodePlatformError
)

// String returns the code name
func (c ErrorCode) String() string {
	switch c {
	case CodeContentNotFound:
		return "content-not-found"
	case CodeUnsupportedFormat:
		return "unsupported-format"
	case CodePermissionDenied:
		return "permission-denied"
	case CodeDeviceBusy:
		return "device-busy"
	case CodeInsufficientMemory:
		return "insufficient-memory"
	case CodeHardwareError:
		return "hardware-error"
	case CodeDecodingError:
		return "decoding-error"
	case CodeInterrupted:
		return "interrupted"
	case CodeTimeout:
		return "timeout"
	case CodeConfigurationError:
		return "configuration-error"
	case CodePlatformError:
		return "platform-error"
	default:
		return "unknown"
	}
}

// Recoverable reports whether the failure class admits a fallback or
// retry at some layer
func (c ErrorCode) Recoverable() bool {
	switch c {
	case CodeContentNotFound, CodeDeviceBusy, CodeInsufficientMemory,
		CodeInterrupted, CodeTimeout:
		return true
	default:
		return false
	}
}

// transient reports whether the engine itself retries once
func (c ErrorCode) transient() bool {
	switch c {
	case CodeDeviceBusy, CodeTimeout, CodeInsufficientMemory:
		return true
	default:
		return false
	}
}

// Error is a classified playback failure tied to the request that
// caused it when known
type Error struct {
	Code      ErrorCode
	RequestID string
	Err       error
}

// Error implements error
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("audio: %s", e.Code)
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, requestID string, err error) *Error {
	return &Error{Code: code, RequestID: requestID, Err: err}
}

// CodeOf extracts the ErrorCode from err, CodeUnknown when err carries
// no classification
func CodeOf(err error) ErrorCode {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// Sentinel errors
var (
	ErrEngineStopped = errors.New("audio engine not running")
	ErrOverBudget    = errors.New("payload exceeds cache budget")
)
