package api

import (
	"net/http"

	"storefront-chat/internal/dto"
)

// HTTPError carries the status and client-facing message for a failed request. Code, when
// set, is the service error code echoed to clients; ErrorLog is only logged.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
	ErrorLog   error
}

func (e *HTTPError) Error() string {
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.ErrorLog
}

func (e *HTTPError) body() dto.ErrorResponse {
	return dto.ErrorResponse{Message: e.Message, Code: e.Code}
}

var errInternal = &HTTPError{StatusCode: http.StatusInternalServerError, Code: "internal_error", Message: "Internal server error"}
