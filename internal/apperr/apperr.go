// Package apperr defines the error taxonomy used across the dispatch core
// and the single mapping layer that converts it to HTTP responses.
package apperr

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Code is the surface-level error classification.
type Code string

const (
	Invalid        Code = "invalid"
	Unauthenticated Code = "unauthenticated"
	Forbidden      Code = "forbidden"
	NotFound       Code = "not_found"
	Conflict       Code = "conflict"
	RateLimited    Code = "rate_limited"
	Unavailable    Code = "unavailable"
	Internal       Code = "internal"
)

// FieldError is a single field-level validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the typed error every component returns instead of throwing or
// comparing err.Error() strings.
type Error struct {
	Code          Code
	Message       string
	Fields        []FieldError
	RetryAfter    *int
	CorrelationID string
	cause         error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func new(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func NewInvalid(msg string, fields ...FieldError) *Error {
	e := new(Invalid, msg)
	e.Fields = fields
	return e
}

func NewUnauthenticated(msg string) *Error { return new(Unauthenticated, msg) }

func NewForbidden(msg string) *Error { return new(Forbidden, msg) }

func NewNotFound(msg string) *Error { return new(NotFound, msg) }

func NewConflict(msg string) *Error { return new(Conflict, msg) }

func NewRateLimited(msg string, retryAfterSeconds int) *Error {
	e := new(RateLimited, msg)
	e.RetryAfter = &retryAfterSeconds
	return e
}

func NewUnavailable(msg string, cause error) *Error {
	e := new(Unavailable, msg)
	e.cause = cause
	return e
}

// NewInternal wraps an unexpected error with a fresh correlation id. The
// caller is expected to log `cause` with the same id.
func NewInternal(cause error) *Error {
	e := new(Internal, "an unexpected error occurred")
	e.cause = cause
	e.CorrelationID = uuid.New().String()
	return e
}

// As extracts an *Error from any error, wrapping unknowns as Internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return NewInternal(err)
}

func httpStatus(code Code) int {
	switch code {
	case Invalid:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// body is the user-visible shape defined in spec §7.
type body struct {
	Message       string       `json:"message"`
	Errors        []FieldError `json:"errors,omitempty"`
	RetryAfter    *int         `json:"retryAfter,omitempty"`
	CorrelationID string       `json:"correlationId,omitempty"`
}

// WriteHTTP is the one mapping layer at the transport boundary: every
// handler funnels its error return through here.
func WriteHTTP(c *gin.Context, err error) {
	e := As(err)
	if e.Code == Internal {
		// Full detail goes to the log; only the correlation id is user-visible.
		// The request's own correlation id, when the middleware stamped one,
		// replaces the freshly generated one so header, body and log agree.
		if requestID, ok := c.Get("correlation_id"); ok {
			if id, ok := requestID.(string); ok && id != "" {
				e.CorrelationID = id
			}
		}
		log.Printf("internal error [%s]: %v", e.CorrelationID, e.cause)
	}
	c.AbortWithStatusJSON(httpStatus(e.Code), body{
		Message:       e.Message,
		Errors:        e.Fields,
		RetryAfter:    e.RetryAfter,
		CorrelationID: e.CorrelationID,
	})
}
