package uvc

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrAuth        = errors.New("controller: authentication rejected")
	ErrNotFound    = errors.New("controller: resource not found")
	ErrUnavailable = errors.New("controller: host unreachable or transport failure")
	ErrUpstream    = errors.New("controller: request rejected or internal error")
	ErrBadBody     = errors.New("controller: invalid response format or malformed data")
	ErrTimeout     = errors.New("controller: request timed out")
)

// APIError is a rich error type that wraps the sentinel errors with context.
type APIError struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error // Nested lower-level error (e.g. net.Error)
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("uvc: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}

// classifyStatus maps an HTTP response code onto the sentinel taxonomy.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrUpstream
	}
}

// statusError builds the APIError for a non-2xx controller response.
func statusError(op string, status int, body []byte) *APIError {
	return &APIError{
		Sentinel:  classifyStatus(status),
		Operation: op,
		Status:    status,
		Body:      truncateBody(body),
	}
}

// transportError builds the APIError for a request that never produced a
// usable response.
func transportError(op string, sentinel, err error) *APIError {
	return &APIError{
		Sentinel:  sentinel,
		Operation: op,
		Err:       err,
	}
}

const maxErrBodyBytes = 512

func truncateBody(body []byte) string {
	if len(body) > maxErrBodyBytes {
		return string(body[:maxErrBodyBytes]) + "..."
	}
	return string(body)
}
