package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Sternrassler/pokeref/pkg/pokeapi"
	"github.com/Sternrassler/pokeref/pkg/resource"
	"github.com/gin-gonic/gin"
)

// API error codes.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeNotFound            = "NOT_FOUND"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeTimeout             = "TIMEOUT"
	CodeInternalError       = "INTERNAL_ERROR"
)

// APIError is the body of the error envelope {"error": {...}}.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorEnvelope is the JSON shape of every error response.
type errorEnvelope struct {
	Error *APIError `json:"error"`
}

// dataEnvelope is the JSON shape of every procedure response.
type dataEnvelope struct {
	Data any `json:"data"`
}

// classify maps an error to an HTTP status and API error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, resource.ErrUnknownKind):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, ErrUnknownProcedure):
		return http.StatusNotFound, CodeNotFound
	// Checked before upstream: an UpstreamError wrapping the deadline
	// matches both.
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	case errors.Is(err, pokeapi.ErrUpstreamUnavailable):
		return http.StatusBadGateway, CodeUpstreamUnavailable
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

// writeError aborts the request with the error envelope.
func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorEnvelope{Error: &APIError{Code: code, Message: err.Error()}})
}

// writeNotFound aborts with a NOT_FOUND envelope.
func writeNotFound(c *gin.Context, format string, args ...any) {
	c.AbortWithStatusJSON(http.StatusNotFound, errorEnvelope{Error: &APIError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf(format, args...),
	}})
}

// RemoteError is an error envelope received from a pokeref server.
// It matches the sentinel its code was produced from, so callers can use
// errors.Is across the wire.
type RemoteError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// Is maps API error codes back to sentinel errors.
func (e *RemoteError) Is(target error) bool {
	switch e.Code {
	case CodeBadRequest:
		return target == ErrBadRequest
	case CodeNotFound:
		return target == ErrUnknownProcedure
	case CodeUpstreamUnavailable:
		return target == pokeapi.ErrUpstreamUnavailable
	case CodeTimeout:
		return target == context.DeadlineExceeded
	default:
		return false
	}
}
