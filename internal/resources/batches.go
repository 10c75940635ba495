package resources

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/haasonsaas/claudekit/internal/apierror"
	"github.com/haasonsaas/claudekit/internal/infra"
	"github.com/haasonsaas/claudekit/pkg/models"
)

// Batches is the message-batches sub-resource from spec.md §4.5: create,
// list, get, cancel, and results.
type Batches struct {
	c *Client

	// getGroup coalesces concurrent Get calls for the same batch id,
	// which is the common shape of a poll loop racing a retry: many
	// callers waiting on the same not-yet-ended batch only need one
	// underlying HTTP round trip between them.
	getGroup infra.Group[string, *models.Batch]
}

// Create submits a batch of requests, per spec.md §4.5's
// messages.batches.create operation.
func (b *Batches) Create(ctx context.Context, requests []models.BatchRequest) (*models.Batch, error) {
	if len(requests) == 0 {
		return nil, apierror.New(apierror.KindInvalidRequest, "batch requests must not be empty")
	}
	body := struct {
		Requests []models.BatchRequest `json:"requests"`
	}{Requests: requests}

	resp, err := b.c.t.Do(ctx, "POST", "/v1/messages/batches", body)
	if err != nil {
		return nil, err
	}
	var batch models.Batch
	if err := json.Unmarshal(resp.Body, &batch); err != nil {
		return nil, apierror.Wrap(apierror.KindResponseValidation, err)
	}
	return &batch, nil
}

// BatchPage is the paginated payload of Batches.List.
type BatchPage struct {
	Data    []models.Batch `json:"data"`
	HasMore bool           `json:"has_more"`
	FirstID string         `json:"first_id,omitempty"`
	LastID  string         `json:"last_id,omitempty"`
}

// BatchListParams are the optional cursor/limit parameters of Batches.List.
type BatchListParams struct {
	Limit    int
	BeforeID string
	AfterID  string
}

// List returns a page of batches, per spec.md §4.5's messages.batches.list
// operation. Limit is clamped to [1,1000].
func (b *Batches) List(ctx context.Context, params BatchListParams) (*BatchPage, error) {
	q := url.Values{}
	if params.Limit != 0 {
		limit := params.Limit
		if limit < minListLimit {
			limit = minListLimit
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		q.Set("limit", strconv.Itoa(limit))
	}
	if params.BeforeID != "" {
		q.Set("before_id", params.BeforeID)
	}
	if params.AfterID != "" {
		q.Set("after_id", params.AfterID)
	}

	path := "/v1/messages/batches"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := b.c.t.Do(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	var page BatchPage
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, apierror.Wrap(apierror.KindResponseValidation, err)
	}
	return &page, nil
}

// Get fetches a single batch by id, per spec.md §4.5's
// messages.batches.get operation.
func (b *Batches) Get(ctx context.Context, id string) (*models.Batch, error) {
	if id == "" {
		return nil, apierror.New(apierror.KindInvalidRequest, "batch id is required")
	}
	batch, err, _ := b.getGroup.Do(id, func() (*models.Batch, error) {
		resp, err := b.c.t.Do(ctx, "GET", "/v1/messages/batches/"+id, nil)
		if err != nil {
			return nil, err
		}
		var batch models.Batch
		if err := json.Unmarshal(resp.Body, &batch); err != nil {
			return nil, apierror.Wrap(apierror.KindResponseValidation, err)
		}
		return &batch, nil
	})
	return batch, err
}

// Cancel requests cancellation of an in-progress batch, per spec.md
// §4.5's messages.batches.cancel operation.
func (b *Batches) Cancel(ctx context.Context, id string) (*models.Batch, error) {
	if id == "" {
		return nil, apierror.New(apierror.KindInvalidRequest, "batch id is required")
	}
	resp, err := b.c.t.Do(ctx, "POST", "/v1/messages/batches/"+id+"/cancel", nil)
	if err != nil {
		return nil, err
	}
	var batch models.Batch
	if err := json.Unmarshal(resp.Body, &batch); err != nil {
		return nil, apierror.Wrap(apierror.KindResponseValidation, err)
	}
	return &batch, nil
}

// Results streams the per-request results of an ended batch, per spec.md
// §4.5's messages.batches.results operation. It fails invalid_request if
// the batch has no results_url yet (not ended, or ended with nothing to
// fetch).
func (b *Batches) Results(ctx context.Context, id string) ([]models.BatchResult, error) {
	batch, err := b.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if batch.ResultsURL == "" {
		return nil, apierror.New(apierror.KindInvalidRequest, "batch "+id+" has no results available yet")
	}

	// results_url is same-host as the rest of the API surface; resolve it
	// to a path so the call still goes through the configured Transport
	// (and its auth/retry/pooling), rather than opening a bare HTTP client.
	u, err := url.Parse(batch.ResultsURL)
	if err != nil {
		return nil, apierror.New(apierror.KindInvalidURL, "malformed results_url: "+err.Error())
	}
	path := u.Path
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	resp, err := b.c.t.Do(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var out []models.BatchResult
	scanner := bufio.NewScanner(bytes.NewReader(resp.Body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var result models.BatchResult
		if err := json.Unmarshal(line, &result); err != nil {
			return nil, apierror.Wrap(apierror.KindResponseValidation, err)
		}
		out = append(out, result)
	}
	if err := scanner.Err(); err != nil {
		return nil, apierror.Wrap(apierror.KindResponseValidation, err)
	}
	return out, nil
}
