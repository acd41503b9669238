package client

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrBadEndpoint = errors.New("invalid endpoint")
	// ErrEncodeRequest means the request body could not be serialized, so
	// nothing was sent.
	ErrEncodeRequest = errors.New("could not encode request body")
)

// APIError is an error reported by the server in a well formed error envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed with %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// ProtocolError is a response whose envelope status disagrees with its HTTP
// status, or whose body is not the expected JSON.
type ProtocolError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("server response violates protocol (status %d)", e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// RequestError wraps a transport failure: no usable HTTP response was received.
type RequestError struct {
	Method string
	URL    string
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Method, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Timeout() bool {
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// IdentifierError reports a malformed resource identifier.
type IdentifierError struct {
	Kind  string
	Value string
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("invalid %s identifier: %q", e.Kind, e.Value)
}

// IsStatus reports whether err carries the given HTTP status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == code
	}
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return protoErr.StatusCode == code
	}
	return false
}

func IsTimeout(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Timeout()
}

// IsRetryable reports whether another attempt might succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return isRetryableRequestErr(reqErr.Err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return shouldRetryStatus(apiErr.StatusCode)
	}
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return shouldRetryStatus(protoErr.StatusCode)
	}
	return false
}
