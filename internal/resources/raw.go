package resources

import (
	"net/http"
	"strconv"
	"time"

	"github.com/haasonsaas/claudekit/pkg/models"
)

// Raw wraps a parsed resource response with the transport-level metadata
// callers sometimes need: status, headers, request id, rate-limit info,
// retry count, and elapsed time. Every resource exposes a with_raw_response
// variant that returns this instead of the bare parsed value.
type Raw[T any] struct {
	Parsed  T
	Status  int
	Header  http.Header
	Retries int
	Elapsed time.Duration
}

// RequestID reads the x-request-id response header.
func (r Raw[T]) RequestID() string {
	return r.Header.Get("x-request-id")
}

// RateLimit parses the rate-limit headers into a snapshot, or nil if absent.
func (r Raw[T]) RateLimit() *models.RateLimitSnapshot {
	if r.Header.Get("anthropic-ratelimit-limit") == "" {
		return nil
	}
	snap := &models.RateLimitSnapshot{}
	if v := r.Header.Get("anthropic-ratelimit-limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			snap.Limit = n
		}
	}
	if v := r.Header.Get("anthropic-ratelimit-remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			snap.Remaining = n
		}
	}
	if v := r.Header.Get("anthropic-ratelimit-reset"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			snap.Reset = t
		}
	}
	return snap
}

// RetriesTaken reports how many retry attempts preceded this response.
func (r Raw[T]) RetriesTaken() int { return r.Retries }

// ElapsedTime reports the total time the request (including retries) took.
func (r Raw[T]) ElapsedTime() time.Duration { return r.Elapsed }
