package pokeapi

import (
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable is matched (errors.Is) by every failure of the
// remote data source: transport errors, non-2xx responses and bodies that
// do not match the expected schema.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors (except 429).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport and timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassValidation represents bodies that cannot be parsed or fail schema checks.
	ErrorClassValidation ErrorClass = "validation"
)

// UpstreamError describes a failed PokeAPI request.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	status := ""
	if e.StatusCode > 0 {
		status = fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("pokeapi %s error%s on %s: %s: %v",
			e.ErrorClass, status, e.Endpoint, e.Message, e.Err)
	}
	return fmt.Sprintf("pokeapi %s error%s on %s: %s",
		e.ErrorClass, status, e.Endpoint, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is makes every UpstreamError match ErrUpstreamUnavailable.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// classifyStatus maps an HTTP status code to an error class.
// Returns "" for success codes.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == 429:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry determines if an error class is worth retrying.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// 4xx and schema failures will not get better on retry
		return false
	}
}
