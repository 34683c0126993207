package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies a failure so callers can decide what to do without
// reading the diagnostic detail.
type ErrorKind string

const (
	KindInvalidInput          ErrorKind = "InvalidInput"
	KindUnsupportedURL        ErrorKind = "UnsupportedUrl"
	KindTokenResolutionFailed ErrorKind = "TokenResolutionFailed"
	KindSessionExchangeFailed ErrorKind = "SessionExchangeFailed"
	KindUpstreamFetchFailed   ErrorKind = "UpstreamFetchFailed"
	KindPostNotFound          ErrorKind = "PostNotFound"
	KindNoMediaFound          ErrorKind = "NoMediaFound"
	KindNoSupportedMedia      ErrorKind = "NoSupportedMedia"
)

// Domain errors.
var (
	// ErrInvalidInput is returned when the URL is missing or unparseable.
	ErrInvalidInput = errors.New("missing or invalid URL")

	// ErrUnsupportedURL is returned when the URL is not a known post link.
	ErrUnsupportedURL = errors.New("invalid tweet URL")

	// ErrTokenResolution is returned when the bearer token cannot be scraped.
	ErrTokenResolution = errors.New("failed to get bearer token")

	// ErrSessionExchange is returned when the guest activation fails.
	ErrSessionExchange = errors.New("failed to get guest token")

	// ErrUpstreamFetch is returned when the tweet query fails.
	ErrUpstreamFetch = errors.New("failed to get tweet details")

	// ErrPostNotFound is returned when the required tweet fields are absent.
	ErrPostNotFound = errors.New("tweet not found")

	// ErrNoMediaFound is returned when the tweet carries no media entities.
	ErrNoMediaFound = errors.New("no media found in tweet")

	// ErrNoSupportedMedia is returned when media exists but none is usable.
	ErrNoSupportedMedia = errors.New("no supported media found in tweet")

	// ErrMalformedPayload marks upstream bodies that are not the expected JSON.
	ErrMalformedPayload = errors.New("malformed upstream payload")
)

var kindSentinels = map[ErrorKind]error{
	KindInvalidInput:          ErrInvalidInput,
	KindUnsupportedURL:        ErrUnsupportedURL,
	KindTokenResolutionFailed: ErrTokenResolution,
	KindSessionExchangeFailed: ErrSessionExchange,
	KindUpstreamFetchFailed:   ErrUpstreamFetch,
	KindPostNotFound:          ErrPostNotFound,
	KindNoMediaFound:          ErrNoMediaFound,
	KindNoSupportedMedia:      ErrNoSupportedMedia,
}

// Error wraps a failure with its kind and diagnostic context.
type Error struct {
	Kind           ErrorKind
	Op             string
	UpstreamStatus int    // HTTP status returned by the upstream, 0 if none
	Detail         string // pattern names, JSON paths probed, etc.
	Err            error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message())
	if e.UpstreamStatus != 0 {
		fmt.Fprintf(&b, " (upstream status %d)", e.UpstreamStatus)
	}
	if e.Detail != "" {
		b.WriteString(" [")
		b.WriteString(e.Detail)
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Message returns the caller-facing message for the error kind.
func (e *Error) Message() string {
	if s, ok := kindSentinels[e.Kind]; ok {
		return s.Error()
	}
	return "internal error"
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := kindSentinels[e.Kind]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewError creates a new Error.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{
		Kind: kind,
		Op:   op,
		Err:  err,
	}
}

// WithStatus records the upstream HTTP status.
func (e *Error) WithStatus(status int) *Error {
	e.UpstreamStatus = status
	return e
}

// WithDetail records diagnostic detail.
func (e *Error) WithDetail(format string, args ...any) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// KindOf returns the kind of err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// HTTPStatus maps an error to the status returned to the caller.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, ErrMalformedPayload) {
		return http.StatusBadGateway
	}
	switch KindOf(err) {
	case KindInvalidInput, KindUnsupportedURL:
		return http.StatusBadRequest
	case KindPostNotFound, KindNoMediaFound, KindNoSupportedMedia:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
