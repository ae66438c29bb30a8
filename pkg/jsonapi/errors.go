package jsonapi

import (
	"fmt"
	"net/http"
	"strconv"
)

// ErrorBuilder provides a fluent API for building Error objects.
type ErrorBuilder struct {
	err Error
}

// NewError creates a new ErrorBuilder with the given status, code, and title.
func NewError(status int, code, title string) *ErrorBuilder {
	return &ErrorBuilder{
		err: Error{
			Status: strconv.Itoa(status),
			Code:   code,
			Title:  title,
		},
	}
}

// Detail sets the error detail message.
func (b *ErrorBuilder) Detail(detail string) *ErrorBuilder {
	b.err.Detail = detail
	return b
}

// Detailf sets the error detail message with formatting.
func (b *ErrorBuilder) Detailf(format string, args ...any) *ErrorBuilder {
	b.err.Detail = fmt.Sprintf(format, args...)
	return b
}

// ID sets the error ID.
func (b *ErrorBuilder) ID(id string) *ErrorBuilder {
	b.err.ID = id
	return b
}

// Parameter sets the path or query parameter that caused the error.
func (b *ErrorBuilder) Parameter(param string) *ErrorBuilder {
	if b.err.Source == nil {
		b.err.Source = &ErrorSource{}
	}
	b.err.Source.Parameter = param
	return b
}

// Meta adds metadata to the error.
func (b *ErrorBuilder) Meta(key string, value any) *ErrorBuilder {
	if b.err.Meta == nil {
		b.err.Meta = make(Meta)
	}
	b.err.Meta[key] = value
	return b
}

// Build returns the constructed Error.
func (b *ErrorBuilder) Build() Error {
	return b.err
}

// StatusCode returns the HTTP status code as an int.
func (e Error) StatusCode() int {
	code, _ := strconv.Atoi(e.Status)
	return code
}

// Common error constructors

// ErrNotFound creates a 404 Not Found error for an unmatched path.
func ErrNotFound(path string) Error {
	return NewError(http.StatusNotFound, "not_found", "Not Found").
		Detailf("No route matches %s", path).
		Build()
}

// ErrInternal creates a 500 Internal Server Error.
func ErrInternal(detail string) Error {
	if detail == "" {
		detail = "An internal error occurred"
	}
	return NewError(http.StatusInternalServerError, "internal_error", "Internal Server Error").Detail(detail).Build()
}

// ErrServiceUnavailable creates a 503 Service Unavailable error.
func ErrServiceUnavailable(detail string) Error {
	if detail == "" {
		detail = "Service temporarily unavailable"
	}
	return NewError(http.StatusServiceUnavailable, "service_unavailable", "Service Unavailable").Detail(detail).Build()
}

// -----------------------------------------------------------------------------
// Usage API Errors
// -----------------------------------------------------------------------------

// ErrInvalidDate creates a 400 error for a year, quarter or date that cannot
// be resolved.
func ErrInvalidDate(param, detail string) Error {
	b := NewError(http.StatusBadRequest, "invalid_date", "Invalid Date").Detail(detail)
	if param != "" {
		b.Parameter(param)
	}
	return b.Build()
}

// ErrUnknownFoundation creates a 404 error for a foundation that is not configured.
func ErrUnknownFoundation(name string) Error {
	return NewError(http.StatusNotFound, "unknown_foundation", "Unknown Foundation").
		Detailf("Foundation '%s' is not configured", name).
		Parameter("foundation").
		Build()
}

// ErrConfiguration creates a 500 error for a foundation that is configured
// incompletely.
func ErrConfiguration(foundation, reason string) Error {
	return NewError(http.StatusInternalServerError, "configuration_error", "Configuration Error").
		Detailf("Foundation '%s' is misconfigured: %s", foundation, reason).
		Build()
}

// ErrUpstream creates a 502 error for a failed call to a foundation.
func ErrUpstream(foundation string, status int) Error {
	b := NewError(http.StatusBadGateway, "upstream_error", "Bad Gateway").
		Detailf("Foundation '%s' did not answer successfully", foundation)
	if status != 0 {
		b.Meta("upstream_status", status)
	}
	return b.Build()
}

// ErrUpstreamTimeout creates a 504 error for a foundation that did not answer in time.
func ErrUpstreamTimeout(foundation string) Error {
	return NewError(http.StatusGatewayTimeout, "upstream_timeout", "Gateway Timeout").
		Detailf("Foundation '%s' did not answer in time", foundation).
		Build()
}

// ErrBadUpstreamPayload creates a 502 error for an upstream body that could not be parsed.
func ErrBadUpstreamPayload(detail string) Error {
	return NewError(http.StatusBadGateway, "bad_upstream_payload", "Bad Gateway").Detail(detail).Build()
}

// ErrRefreshInProgress creates a 409 error when a bulk refresh is already running.
func ErrRefreshInProgress() Error {
	return NewError(http.StatusConflict, "refresh_in_progress", "Conflict").
		Detail("A refresh is already running").
		Build()
}
