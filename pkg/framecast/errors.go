package framecast

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a failure class of the broadcast protocol.
type ErrorCode string

// ErrorCode constants.
const (
	CodeAlreadyExists       ErrorCode = "ALREADY_EXISTS"
	CodeResourceExhausted   ErrorCode = "RESOURCE_EXHAUSTED"
	CodeChannelNotFound     ErrorCode = "CHANNEL_NOT_FOUND"
	CodeIncompatibleChannel ErrorCode = "INCOMPATIBLE_CHANNEL"
	CodeLockTimeout         ErrorCode = "LOCK_TIMEOUT"
	CodeStaleServer         ErrorCode = "STALE_SERVER"
	CodeNoNewFrame          ErrorCode = "NO_NEW_FRAME"
	CodeBufferTooSmall      ErrorCode = "BUFFER_TOO_SMALL"
	CodeFrameTooLarge       ErrorCode = "FRAME_TOO_LARGE"
	CodeNotConnected        ErrorCode = "NOT_CONNECTED"
	CodeClosed              ErrorCode = "CLOSED"
	CodeUnsupported         ErrorCode = "UNSUPPORTED"
)

// Error is returned by every Server and Client operation.
type Error struct {
	Code    ErrorCode `json:"code"`
	Op      string    `json:"op,omitempty"`
	Message string    `json:"message"`
	Cause   error     `json:"cause,omitempty"`
}

// Sentinel errors for errors.Is matching. Only the Code is compared.
var (
	ErrAlreadyExists       = &Error{Code: CodeAlreadyExists, Message: "channel already owned by a live server"}
	ErrResourceExhausted   = &Error{Code: CodeResourceExhausted, Message: "cannot allocate channel resources"}
	ErrChannelNotFound     = &Error{Code: CodeChannelNotFound, Message: "channel not found"}
	ErrIncompatibleChannel = &Error{Code: CodeIncompatibleChannel, Message: "channel magic or version mismatch"}
	ErrLockTimeout         = &Error{Code: CodeLockTimeout, Message: "timed out waiting for channel lock"}
	ErrStaleServer         = &Error{Code: CodeStaleServer, Message: "channel has no live server"}
	ErrNoNewFrame          = &Error{Code: CodeNoNewFrame, Message: "no new frame since last read"}
	ErrBufferTooSmall      = &Error{Code: CodeBufferTooSmall, Message: "destination smaller than frame, partial copy"}
	ErrFrameTooLarge       = &Error{Code: CodeFrameTooLarge, Message: "frame exceeds slot capacity"}
	ErrNotConnected        = &Error{Code: CodeNotConnected, Message: "client not connected"}
	ErrClosed              = &Error{Code: CodeClosed, Message: "server not created or already closed"}
	ErrUnsupported         = &Error{Code: CodeUnsupported, Message: "shared memory channels are not supported on this platform"}
)

func newError(code ErrorCode, op, message string, cause error) *Error {
	return &Error{Code: code, Op: op, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// HasCode checks if the error matches a specific code.
func (e *Error) HasCode(code ErrorCode) bool {
	return e.Code == code
}

// CodeOf extracts the ErrorCode from err, or "" if err is not an *Error.
func CodeOf(err error) ErrorCode {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsRetryable reports whether the caller should simply try the same call
// again later.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeLockTimeout, CodeNoNewFrame, CodeChannelNotFound, CodeStaleServer:
		return true
	default:
		return false
	}
}
