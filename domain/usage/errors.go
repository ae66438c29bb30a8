package usage

import (
	"errors"
	"fmt"
)

// ErrUnknownFoundation is returned for a foundation name that is not configured.
var ErrUnknownFoundation = errors.New("unknown foundation")

// UpstreamError is a failed call to a foundation's usage or cloud controller API.
// Status is zero when no response was received.
type UpstreamError struct {
	Foundation string
	URL        string
	Status     int
	Body       string
	Timeout    bool
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("upstream %s: timeout calling %s", e.Foundation, e.URL)
	case e.Status != 0:
		return fmt.Sprintf("upstream %s: status %d from %s: %s", e.Foundation, e.Status, e.URL, truncate(e.Body, 200))
	default:
		return fmt.Sprintf("upstream %s: %s: %v", e.Foundation, e.URL, e.Err)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsNotFound reports whether the upstream answered 404.
func (e *UpstreamError) IsNotFound() bool {
	return e.Status == 404
}

// ParseError is an upstream payload that does not match the expected schema.
type ParseError struct {
	Kind string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ConfigurationError means a foundation lacks what it needs to be queried.
type ConfigurationError struct {
	Foundation string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("foundation %s misconfigured: %s", e.Foundation, e.Reason)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
