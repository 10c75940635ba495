// Package resources implements the typed endpoint layer described in
// spec.md §4.5: Messages (create/stream/count_tokens/batches) and Models
// (list/get), each with a with_raw_response variant.
package resources

import (
	"sync"

	"github.com/haasonsaas/claudekit/internal/transport"
)

// Client composes a Transport into the typed resource surface. It is
// safe for concurrent use; sub-resources are lazily built and memoized.
type Client struct {
	t transport.Transport

	once    sync.Once
	batches *Batches
}

// NewClient wraps t in the typed resource layer.
func NewClient(t transport.Transport) *Client {
	return &Client{t: t}
}

// Messages returns the messages resource. Cheap to call repeatedly; it
// does not own any lazily-built state of its own (only Batches does).
func (c *Client) Messages() *Messages {
	return &Messages{c: c}
}

// Models returns the models resource.
func (c *Client) Models() *Models {
	return &Models{c: c}
}

// batchesResource lazily builds and memoizes the Batches sub-resource for
// the lifetime of c, generalizing internal/infra/singleflight.go's
// duplicate-suppression pattern from "dedupe concurrent identical calls"
// to "build exactly once, share forever."
func (c *Client) batchesResource() *Batches {
	c.once.Do(func() {
		c.batches = &Batches{c: c}
	})
	return c.batches
}
