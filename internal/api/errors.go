package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a failed API exchange. StatusCode is zero when the request
// never produced a response (dial failure, timeout).
type Error struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Message)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is an API error caused by a
// missing or rejected API key.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}
