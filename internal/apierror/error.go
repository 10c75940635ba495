// Package apierror implements the unified error taxonomy described in
// spec.md §4.1: a closed set of error kinds, a status→kind mapping, and
// the retryability predicate the rest of the module relies on.
package apierror

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/haasonsaas/claudekit/pkg/models"
)

// Kind is the closed error taxonomy from spec.md §3.
type Kind string

const (
	KindBadRequest          Kind = "bad_request"
	KindAuth                Kind = "auth"
	KindPermissionDenied    Kind = "permission_denied"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindUnprocessableEntity Kind = "unprocessable_entity"
	KindRateLimit           Kind = "rate_limit"
	KindOverloaded          Kind = "overloaded"
	KindServerError         Kind = "server_error"
	KindAPIError            Kind = "api_error"
	KindResponseValidation  Kind = "response_validation"
	KindConnection          Kind = "connection"
	KindTimeout             Kind = "timeout"
	KindInvalidRequest      Kind = "invalid_request"
	KindInvalidURL          Kind = "invalid_url"
	KindStreaming           Kind = "streaming"
	KindMissingConfig       Kind = "missing_config"
	KindFeatureUnavailable  Kind = "feature_unavailable"
	KindInvalidHeader       Kind = "invalid_header"
	KindToolExecution       Kind = "tool_execution"
	KindOther               Kind = "other"
)

// Error is the single sum type the core returns for every failure.
// It implements error and Unwrap so errors.Is/errors.As compose the way
// the rest of the module's wrapped errors do.
type Error struct {
	Kind       Kind
	Status     int
	Message    string
	RequestID  string
	ValidationErrors []string
	RateLimit  *models.RateLimitSnapshot
	Cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.RequestID != "" {
		msg += fmt.Sprintf(" (request_id=%s)", e.RequestID)
	}
	return msg
}

// Unwrap exposes the underlying cause, if any, for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext wraps the message without losing the source chain. It
// returns a new value; Error instances are treated as immutable once
// constructed, matching the ownership note in spec.md §3.
func (e *Error) WithContext(msg string) *Error {
	clone := *e
	clone.Message = msg + ": " + e.Message
	clone.Cause = e
	return &clone
}

// IsRetryable implements the predicate from spec.md §3: rate_limit,
// overloaded, server_error, connection, timeout are always retryable;
// api_error is retryable when its status is >= 500 or in {408, 409}.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindRateLimit, KindOverloaded, KindServerError, KindConnection, KindTimeout:
		return true
	case KindAPIError:
		return e.Status >= 500 || e.Status == http.StatusRequestTimeout || e.Status == http.StatusConflict
	default:
		return false
	}
}

// envelope mirrors the upstream JSON error body:
// {error:{type,message,details?:{validation_errors?}}}.
type envelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Details struct {
			ValidationErrors []string `json:"validation_errors"`
		} `json:"details"`
	} `json:"error"`
}

// FromResponse attempts to parse an upstream JSON error envelope and maps
// it by status to a specific Kind. On parse failure it falls back to a
// status-keyed KindAPIError holding the raw body. For status 429 it
// populates the rate-limit snapshot from the header set described in
// spec.md §4.1.
func FromResponse(status int, body []byte, headers http.Header) *Error {
	e := &Error{Status: status, RequestID: headers.Get("x-request-id")}

	var env envelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		e.Message = env.Error.Message
		e.ValidationErrors = env.Error.Details.ValidationErrors
	} else {
		e.Message = string(body)
	}

	e.Kind = kindForStatus(status)

	if status == http.StatusTooManyRequests {
		e.RateLimit = rateLimitFromHeaders(headers)
	}

	return e
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusUnauthorized:
		return KindAuth
	case http.StatusForbidden:
		return KindPermissionDenied
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindAPIError
	case http.StatusUnprocessableEntity:
		return KindUnprocessableEntity
	case http.StatusTooManyRequests:
		return KindRateLimit
	case 529: // vendor-specific "overloaded"
		return KindOverloaded
	default:
		if status >= 500 {
			return KindServerError
		}
		return KindAPIError
	}
}

func rateLimitFromHeaders(h http.Header) *models.RateLimitSnapshot {
	snap := &models.RateLimitSnapshot{}
	if v := h.Get("anthropic-ratelimit-limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			snap.Limit = n
		}
	}
	if v := h.Get("anthropic-ratelimit-remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			snap.Remaining = n
		}
	}
	if v := h.Get("anthropic-ratelimit-reset"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			snap.Reset = t
		}
	}
	if v := h.Get("retry-after"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			snap.RetryAfter = time.Duration(n) * time.Second
		}
	}
	return snap
}

// New builds an Error of the given kind with a plain message, for cases
// that never see an upstream response (invalid_url, streaming framing
// errors, missing_config, and similar local conditions).
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an KindConnection/KindTimeout/KindOther error from a
// transport-level cause.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Message: cause.Error(), Cause: cause}
}

// Is reports whether err is an *Error of the given kind, for terse
// call-site checks (e.g. `apierror.Is(err, apierror.KindRateLimit)`).
func Is(err error, kind Kind) bool {
	var apiErr *Error
	if ok := asError(err, &apiErr); ok {
		return apiErr.Kind == kind
	}
	return false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
