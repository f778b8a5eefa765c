package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTimeout is returned when a request exceeds its per-call timeout.
	ErrTimeout = errors.New("request timed out, please try again")
	// ErrUnauthorized matches any 401 response; the credentials are already wiped when it is returned.
	ErrUnauthorized = errors.New("unauthorized")
)

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// Is makes errors.Is(err, ErrUnauthorized) hold for 401 responses.
func (e *HTTPError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// NetworkError is a transport-level failure: DNS, refused connection, reset.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func statusMessage(code int) string {
	return fmt.Sprintf("Request failed with status %d", code)
}
