// Package transport implements the generic HTTP/SSE request pipeline
// described in spec.md §4.3: URL assembly, header injection, retries,
// and the three-operation contract every provider adapter implements.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haasonsaas/claudekit/internal/apierror"
	"github.com/haasonsaas/claudekit/internal/retry"
)

// Response is a buffered, non-streaming transport result.
type Response struct {
	Status  int
	Header  http.Header
	Body    []byte
	Retries int
	Elapsed time.Duration
}

// StreamResponse is a chunked transport result whose Body is not buffered.
// The caller is responsible for closing Body.
type StreamResponse struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

// RequestBuilder assembles an unusual request path/method pair before
// handing off to Do/DoStreaming — the mutable builder from spec.md §4.3's
// create_request operation.
type RequestBuilder struct {
	Method  string
	Path    string
	Header  http.Header
	Body    []byte
	query   url.Values
}

// NewRequestBuilder returns a builder with an initialized header/query set.
func NewRequestBuilder(method, path string) *RequestBuilder {
	return &RequestBuilder{Method: method, Path: path, Header: http.Header{}, query: url.Values{}}
}

// WithQuery sets a query parameter, returning the builder for chaining.
func (b *RequestBuilder) WithQuery(key, value string) *RequestBuilder {
	b.query.Set(key, value)
	return b
}

// WithJSON marshals v as the request body and sets content-type.
func (b *RequestBuilder) WithJSON(v any) (*RequestBuilder, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInvalidRequest, err)
	}
	b.Body = data
	b.Header.Set("content-type", "application/json")
	return b, nil
}

func (b *RequestBuilder) url(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/" + strings.TrimLeft(b.Path, "/"))
	if err != nil {
		return "", apierror.New(apierror.KindInvalidURL, "malformed request URL: "+err.Error())
	}
	if len(b.query) > 0 {
		q := u.Query()
		for k, vs := range b.query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Transport is the contract every provider adapter (C4) implements.
type Transport interface {
	// Name is a stable lowercase identifier used for routing and logging.
	Name() string
	// SupportsBeta reports whether this adapter accepts the beta header.
	SupportsBeta() bool
	// BaseURL is the effective base URL this adapter sends requests to.
	BaseURL() string
	// Do performs a buffered request.
	Do(ctx context.Context, method, path string, body any) (*Response, error)
	// DoStreaming performs a request and returns its chunked body.
	DoStreaming(ctx context.Context, method, path string, body any) (*StreamResponse, error)
	// NewRequest returns a builder for unusual request shapes.
	NewRequest(method, path string) *RequestBuilder
	// Unwrap exposes adapter-specific extras without type erasure leaking
	// into the resource layer — e.g. the beta-header builder.
	Unwrap() any
}

// Config is the shared configuration every concrete Transport embeds.
type Config struct {
	// BaseURL is the scheme+host(+path prefix) every request is resolved against.
	BaseURL string
	// APIVersion is injected into every request, header name depends on the adapter.
	APIVersion string
	// DefaultHeaders are merged into every request; caller-supplied headers win on duplicates.
	DefaultHeaders http.Header
	// HTTPClient is the underlying client; a zero value gets sane pooling defaults.
	HTTPClient *http.Client
	// Retry configures the backoff policy wrapped around the underlying send.
	Retry retry.Config
	// MaxIdlePerHost and IdleTimeout configure the connection pool, per
	// spec.md §4.3's connection_pool.max_idle_per_host/idle_timeout.
	MaxIdlePerHost int
	IdleTimeout    time.Duration
	// RequestTimeout bounds a single attempt; 0 means no per-attempt timeout.
	RequestTimeout time.Duration
}

func (c *Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	maxIdle := c.MaxIdlePerHost
	if maxIdle <= 0 {
		maxIdle = 10
	}
	idleTimeout := c.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 90 * time.Second
	}
	rt := http.DefaultTransport.(*http.Transport).Clone()
	rt.MaxIdleConnsPerHost = maxIdle
	rt.IdleConnTimeout = idleTimeout
	c.HTTPClient = &http.Client{Transport: rt}
	return c.HTTPClient
}

// applyAuth is implemented by each adapter to inject credentials into a
// request just before it is sent.
type applyAuth func(req *http.Request) error

// send builds and executes an http.Request for builder b against cfg,
// applying default headers (caller headers win on key collisions per
// spec.md §4.3), the auth callback, and an optional per-attempt timeout.
// streaming controls whether the body is buffered before return.
func send(ctx context.Context, cfg *Config, b *RequestBuilder, auth applyAuth, streaming bool) (*http.Response, error) {
	fullURL, err := b.url(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	attemptCtx := ctx
	if cfg.RequestTimeout > 0 && !streaming {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if b.Body != nil {
		bodyReader = bytes.NewReader(b.Body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, b.Method, fullURL, bodyReader)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInvalidRequest, err)
	}

	for k, vs := range cfg.DefaultHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if cfg.APIVersion != "" && req.Header.Get("anthropic-version") == "" {
		req.Header.Set("anthropic-version", cfg.APIVersion)
	}
	for k, vs := range b.Header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	if auth != nil {
		if err := auth(req); err != nil {
			return nil, err
		}
	}

	resp, err := cfg.httpClient().Do(req)
	if err != nil {
		if ctxErr := attemptCtx.Err(); ctxErr != nil {
			return nil, apierror.New(apierror.KindTimeout, fmt.Sprintf("request timed out: %v", err))
		}
		return nil, apierror.Wrap(apierror.KindConnection, err)
	}
	return resp, nil
}

// Do performs a single buffered request through cfg with the given auth
// callback, wrapping the underlying send in the retry policy.
func Do(ctx context.Context, cfg *Config, b *RequestBuilder, auth applyAuth) (*Response, error) {
	var out *Response
	result := retry.Do(ctx, cfg.Retry, func() error {
		resp, err := send(ctx, cfg, b, auth, false)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return apierror.Wrap(apierror.KindConnection, readErr)
		}

		if resp.StatusCode >= 300 {
			return apierror.FromResponse(resp.StatusCode, data, resp.Header)
		}

		out = &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}
		return nil
	})
	if result.Err != nil {
		return nil, result.Err
	}
	out.Retries = result.Attempts - 1
	out.Elapsed = result.Duration
	return out, nil
}

// DoStreaming opens a streaming request. Per spec.md §4.3, retries apply
// only to the connection attempt before the stream begins; once bytes
// start flowing, a mid-stream failure is surfaced to the caller instead
// of silently retried (a retry would duplicate already-delivered events).
func DoStreaming(ctx context.Context, cfg *Config, b *RequestBuilder, auth applyAuth) (*StreamResponse, error) {
	var resp *http.Response
	result := retry.Do(ctx, cfg.Retry, func() error {
		r, err := send(ctx, cfg, b, auth, true)
		if err != nil {
			return err
		}
		if r.StatusCode >= 300 {
			data, _ := io.ReadAll(r.Body)
			r.Body.Close()
			return apierror.FromResponse(r.StatusCode, data, r.Header)
		}
		resp = r
		return nil
	})
	if result.Err != nil {
		return nil, result.Err
	}
	return &StreamResponse{Status: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
}
