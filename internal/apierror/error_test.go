package apierror

import (
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestFromResponseMapsStatus(t *testing.T) {
	cases := []struct {
		status  int
		kind    Kind
		retry   bool
	}{
		{http.StatusBadRequest, KindBadRequest, false},
		{http.StatusUnauthorized, KindAuth, false},
		{http.StatusForbidden, KindPermissionDenied, false},
		{http.StatusNotFound, KindNotFound, false},
		{http.StatusConflict, KindAPIError, true},
		{http.StatusUnprocessableEntity, KindUnprocessableEntity, false},
		{http.StatusTooManyRequests, KindRateLimit, true},
		{http.StatusInternalServerError, KindServerError, true},
		{529, KindOverloaded, true},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("status=%d", c.status), func(t *testing.T) {
			err := FromResponse(c.status, []byte(`{"error":{"type":"x","message":"boom"}}`), http.Header{})
			if err.Kind != c.kind {
				t.Errorf("Kind = %s, want %s", err.Kind, c.kind)
			}
			if err.IsRetryable() != c.retry {
				t.Errorf("IsRetryable() = %v, want %v", err.IsRetryable(), c.retry)
			}
		})
	}
}

func TestFromResponseRateLimitHeaders(t *testing.T) {
	reset := time.Now().Add(time.Minute).UTC().Format(time.RFC3339)
	h := http.Header{}
	h.Set("retry-after", "2")
	h.Set("anthropic-ratelimit-limit", "100")
	h.Set("anthropic-ratelimit-remaining", "0")
	h.Set("anthropic-ratelimit-reset", reset)
	h.Set("x-request-id", "req_123")

	err := FromResponse(http.StatusTooManyRequests, nil, h)
	if err.RateLimit == nil {
		t.Fatal("expected rate-limit snapshot")
	}
	if err.RateLimit.Limit != 100 || err.RateLimit.Remaining != 0 {
		t.Errorf("unexpected snapshot: %+v", err.RateLimit)
	}
	if err.RateLimit.RetryAfter != 2*time.Second {
		t.Errorf("RetryAfter = %v, want 2s", err.RateLimit.RetryAfter)
	}
	if err.RequestID != "req_123" {
		t.Errorf("RequestID = %q, want req_123", err.RequestID)
	}
}

func TestFromResponseFallsBackOnUnparsableBody(t *testing.T) {
	err := FromResponse(http.StatusInternalServerError, []byte("not json"), http.Header{})
	if err.Kind != KindServerError {
		t.Errorf("Kind = %s, want %s", err.Kind, KindServerError)
	}
	if err.Message != "not json" {
		t.Errorf("Message = %q, want raw body", err.Message)
	}
}

func TestIsRetryableNonAPIKinds(t *testing.T) {
	retryable := []Kind{KindRateLimit, KindOverloaded, KindServerError, KindConnection, KindTimeout}
	for _, k := range retryable {
		if !(&Error{Kind: k}).IsRetryable() {
			t.Errorf("%s should be retryable", k)
		}
	}
	notRetryable := []Kind{KindBadRequest, KindAuth, KindPermissionDenied, KindNotFound, KindInvalidURL}
	for _, k := range notRetryable {
		if (&Error{Kind: k}).IsRetryable() {
			t.Errorf("%s should not be retryable", k)
		}
	}
}

func TestWithContextPreservesChain(t *testing.T) {
	base := New(KindConnection, "dial tcp: refused")
	wrapped := base.WithContext("sending message")

	if wrapped.Message != "sending message: dial tcp: refused" {
		t.Errorf("unexpected message: %q", wrapped.Message)
	}
	if wrapped.Unwrap() != base {
		t.Error("expected Unwrap to return the original error")
	}
}

func TestIsHelper(t *testing.T) {
	err := fmt.Errorf("wrap: %w", New(KindTimeout, "deadline exceeded"))
	if !Is(err, KindTimeout) {
		t.Error("expected Is to find the wrapped timeout error")
	}
	if Is(err, KindConnection) {
		t.Error("Is should not match a different kind")
	}
}
