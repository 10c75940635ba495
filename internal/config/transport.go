package config

import (
	"net/http"

	"github.com/haasonsaas/claudekit/internal/retry"
	"github.com/haasonsaas/claudekit/internal/transport"
)

// RetryConfig maps the configured retry knobs onto retry.Config, falling
// back to retry.DefaultConfig() for anything left at its zero value.
func (c *Config) RetryConfig() retry.Config {
	def := retry.DefaultConfig()
	if c.MaxRetries > 0 {
		def.MaxAttempts = c.MaxRetries + 1
	}
	return def
}

// TransportConfig maps Config onto transport.Config, the shared
// configuration every concrete Transport embeds, per spec.md §6's
// base_url/api_version/default_headers/connection_pool fields.
func (c *Config) TransportConfig() transport.Config {
	headers := make(http.Header, len(c.DefaultHeaders))
	for k, v := range c.DefaultHeaders {
		headers.Set(k, v)
	}
	return transport.Config{
		BaseURL:        c.BaseURL,
		APIVersion:     c.APIVersion,
		DefaultHeaders: headers,
		Retry:          c.RetryConfig(),
		MaxIdlePerHost: c.ConnectionPool.MaxIdlePerHost,
		IdleTimeout:    c.ConnectionPool.IdleTimeout,
		RequestTimeout: c.Timeout,
	}
}

// DirectConfig maps Config onto transport.DirectConfig for the Direct
// (api.anthropic.com) adapter. Callers using the Bedrock or Vertex
// gateways build those adapters' configs directly — this package only
// covers the fields spec.md §6 enumerates, which describe Direct auth.
func (c *Config) DirectConfig() transport.DirectConfig {
	return transport.DirectConfig{
		APIKey:      c.APIKey,
		BearerToken: c.AuthToken,
		BaseURL:     c.BaseURL,
		APIVersion:  c.APIVersion,
		Transport:   c.TransportConfig(),
	}
}
