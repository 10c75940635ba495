package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/haasonsaas/claudekit/internal/apierror"
)

const defaultAPIVersion = "2023-06-01"
const defaultDirectBaseURL = "https://api.anthropic.com"

// DirectConfig configures the Direct adapter. Exactly one of APIKey or
// BearerToken must be set; both or neither is a configuration error.
type DirectConfig struct {
	APIKey      string
	BearerToken string
	BaseURL     string
	APIVersion  string
	Beta        []string
	Transport   Config
}

// Direct is the single-base-URL adapter described in spec.md §4.4: API
// key or bearer-token auth, with an optional beta-header request path.
// Grounded on internal/agent/providers/anthropic.go's client construction
// (option.WithAPIKey/option.WithBaseURL), reimplemented over our own
// transport pipeline instead of the vendored SDK's client.
type Direct struct {
	cfg  Config
	auth applyAuth
	beta []string
}

// NewDirect validates cfg and returns a ready-to-use Direct transport.
func NewDirect(cfg DirectConfig) (*Direct, error) {
	if (cfg.APIKey == "") == (cfg.BearerToken == "") {
		return nil, apierror.New(apierror.KindMissingConfig, "exactly one of APIKey or BearerToken must be set")
	}

	base := cfg.BaseURL
	if base == "" {
		base = defaultDirectBaseURL
	}
	version := cfg.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}

	t := cfg.Transport
	t.BaseURL = base
	t.APIVersion = version

	var auth applyAuth
	if cfg.APIKey != "" {
		key := cfg.APIKey
		auth = func(req *http.Request) error {
			req.Header.Set("x-api-key", key)
			return nil
		}
	} else {
		token := cfg.BearerToken
		auth = func(req *http.Request) error {
			req.Header.Set("authorization", "Bearer "+token)
			return nil
		}
	}

	return &Direct{cfg: t, auth: auth, beta: cfg.Beta}, nil
}

func (d *Direct) Name() string       { return "direct" }
func (d *Direct) SupportsBeta() bool { return true }
func (d *Direct) BaseURL() string    { return d.cfg.BaseURL }

func (d *Direct) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	b, err := d.build(method, path, body)
	if err != nil {
		return nil, err
	}
	return Do(ctx, &d.cfg, b, d.auth)
}

func (d *Direct) DoStreaming(ctx context.Context, method, path string, body any) (*StreamResponse, error) {
	b, err := d.build(method, path, body)
	if err != nil {
		return nil, err
	}
	return DoStreaming(ctx, &d.cfg, b, d.auth)
}

func (d *Direct) NewRequest(method, path string) *RequestBuilder {
	return NewRequestBuilder(method, path)
}

// NewBetaRequest is the "optional second request constructor" from
// spec.md §4.4: it tags the request with every configured beta flag.
func (d *Direct) NewBetaRequest(method, path string) *RequestBuilder {
	b := NewRequestBuilder(method, path)
	for _, beta := range d.beta {
		b.Header.Add("anthropic-beta", beta)
	}
	return b
}

// Unwrap exposes NewBetaRequest to callers that need it without forcing
// every Transport implementation to carry a beta-header builder.
func (d *Direct) Unwrap() any { return d }

func (d *Direct) build(method, path string, body any) (*RequestBuilder, error) {
	b := NewRequestBuilder(method, path)
	if body != nil {
		if _, err := b.WithJSON(body); err != nil {
			return nil, fmt.Errorf("direct transport: %w", err)
		}
	}
	return b, nil
}
