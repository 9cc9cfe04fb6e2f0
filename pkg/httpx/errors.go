package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
)

// NetworkError means no response was obtainable: connection failure, DNS,
// timeout. It is never retried automatically by this layer.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error for %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError is a well-formed non-2xx response, returned as data rather than
// hidden. Code and Message are extracted from the standard error envelope
// when the body carries one.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Body    []byte
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("http %d", e.Status)
}

// newHTTPError builds an HTTPError from a response body, pulling the
// human-readable message out of the usual envelope fields.
func newHTTPError(status int, body []byte) *HTTPError {
	e := &HTTPError{Status: status, Body: body}

	var envelope struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		e.Code = envelope.Code
		e.Message = envelope.Message
		if e.Message == "" {
			e.Message = envelope.Error
		}
	}
	return e
}

// StatusOf returns the HTTP status carried by err, or 0 when err is not an
// *HTTPError.
func StatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == 401
}
