package widget

import "errors"

type ErrorCode string

const (
	ErrorCodeUnauthorized       ErrorCode = "unauthorized"
	ErrorCodeSessionUnavailable ErrorCode = "session_unavailable"
	ErrorCodeSendFailed         ErrorCode = "send_failed"
	ErrorCodeOffline            ErrorCode = "offline"
	ErrorCodeValidation         ErrorCode = "validation"
)

var (
	// ErrUnauthenticated is wrapped by transports when the backend rejects the bearer token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrRejected is wrapped by transports when the backend refuses the request content;
	// repeating the same request cannot succeed.
	ErrRejected = errors.New("request rejected")
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the widget error code carried by err, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Code
	}
	return ""
}

// transportError converts a REST failure into the widget taxonomy: a rejected token
// routes to login, everything else is retryable.
func transportError(fallback ErrorCode, message string, err error) *Error {
	var werr *Error
	if errors.As(err, &werr) {
		return werr
	}
	if errors.Is(err, ErrUnauthenticated) {
		return newError(ErrorCodeUnauthorized, "please log in to chat with support", err)
	}
	return newError(fallback, message, err)
}
