package binance

import (
	"errors"
	"fmt"
)

// Binance API error codes
var (
	rateLimitCodes = map[int]bool{-1003: true, -1015: true}
	authCodes      = map[int]bool{-1022: true, -2014: true, -2015: true}
)

// APIError is an error response from the Binance REST API.
type APIError struct {
	Code       int    `json:"code"`
	Message    string `json:"msg"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance API error %d: %s", e.Code, e.Message)
}

// IsRateLimitError reports whether err is a Binance rate-limit or IP-ban
// rejection. These are retryable after a wait.
func IsRateLimitError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return rateLimitCodes[apiErr.Code] || apiErr.HTTPStatus == 429 || apiErr.HTTPStatus == 418
	}
	return false
}

// IsAuthError reports whether err is an API key/signature rejection.
// Auth errors are never retried.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return authCodes[apiErr.Code] || apiErr.HTTPStatus == 401 || apiErr.HTTPStatus == 403
	}
	return false
}

// IsTransient reports whether err is worth retrying: network failures and
// server-side errors, but not auth rejections or order-level rejections.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsAuthError(err) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return rateLimitCodes[apiErr.Code] || apiErr.HTTPStatus >= 500
	}
	// Plain transport errors (timeouts, connection resets).
	return true
}
