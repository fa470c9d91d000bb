package types

import (
	"fmt"
	"net/http"
)

// ErrorCode tags every failure the relay can surface so release sites and
// handlers never inspect message strings.
type ErrorCode string

const (
	ErrorCodeConfig             ErrorCode = "config_error"
	ErrorCodePoolExhausted      ErrorCode = "pool_exhausted"
	ErrorCodeTokenRefresh       ErrorCode = "token_refresh_failed"
	ErrorCodeRateLimited        ErrorCode = "rate_limited"
	ErrorCodeInvalidModel       ErrorCode = "invalid_model"
	ErrorCodeUpstream           ErrorCode = "upstream_error"
	ErrorCodeUnexpectedResponse ErrorCode = "unexpected_response"
	ErrorCodeTransport          ErrorCode = "transport_error"
)

// APIError is the single error type crossing package boundaries. StatusCode
// is what the served client receives; the penalty decision is derived from
// the code, never from the message.
type APIError struct {
	Code       ErrorCode
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, statusCode int, format string, args ...any) *APIError {
	return &APIError{
		Code:       code,
		StatusCode: statusCode,
		Message:    fmt.Sprintf(format, args...),
	}
}

func NewPoolExhaustedError() *APIError {
	return NewError(ErrorCodePoolExhausted, http.StatusServiceUnavailable, "no available accounts")
}

func NewTokenRefreshError(detail string) *APIError {
	return NewError(ErrorCodeTokenRefresh, http.StatusBadGateway, "token error: %s", detail)
}

func NewRateLimitedError() *APIError {
	return NewError(ErrorCodeRateLimited, http.StatusTooManyRequests, "server busy, please retry later")
}

func NewInvalidModelError(model string) *APIError {
	return NewError(ErrorCodeInvalidModel, http.StatusBadRequest, "model %q is not available on this endpoint", model)
}

func NewUpstreamError(format string, args ...any) *APIError {
	return NewError(ErrorCodeUpstream, http.StatusBadGateway, format, args...)
}

// ShouldPenalize reports whether the failure counts against the account's
// health. An unsupported model is the caller's fault, not the account's.
func (e *APIError) ShouldPenalize() bool {
	switch e.Code {
	case ErrorCodeInvalidModel, ErrorCodePoolExhausted:
		return false
	}
	return true
}

// OpenAIErrorType maps the internal code onto the error type string OpenAI
// clients expect in the response body.
func (e *APIError) OpenAIErrorType() string {
	switch e.Code {
	case ErrorCodeInvalidModel:
		return "invalid_request_error"
	case ErrorCodeRateLimited:
		return "rate_limit"
	default:
		return "upstream_error"
	}
}
