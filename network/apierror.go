package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// APIError is a non-2xx response from a platform endpoint.
type APIError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d message=%s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error: status=%d", e.Status)
}

func statusOf(err error) (int, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status, true
	}
	return 0, false
}

// IsUnauthorized reports whether err is an HTTP 401 response.
func IsUnauthorized(err error) bool {
	status, ok := statusOf(err)
	return ok && status == http.StatusUnauthorized
}

// IsForbidden reports whether err is an HTTP 403 response.
func IsForbidden(err error) bool {
	status, ok := statusOf(err)
	return ok && status == http.StatusForbidden
}

// IsClientError reports whether err is an HTTP 400 response. On a datafeed
// read this means the server-side queue is stale.
func IsClientError(err error) bool {
	status, ok := statusOf(err)
	return ok && status == http.StatusBadRequest
}

// IsMinorError reports whether err is transient: a 5xx or 429 response, a
// network failure, or a timeout. Caller-initiated cancellation is not
// transient.
func IsMinorError(err error) bool {
	if err == nil {
		return false
	}
	if status, ok := statusOf(err); ok {
		return status == http.StatusTooManyRequests || status >= 500
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
