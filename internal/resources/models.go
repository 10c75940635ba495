package resources

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/haasonsaas/claudekit/internal/apierror"
	"github.com/haasonsaas/claudekit/pkg/models"
)

// Models is the resource from spec.md §4.5: list and get.
type Models struct {
	c *Client
}

// ListParams are the optional cursor/limit parameters of Models.List.
type ListParams struct {
	// Limit clamps to [1,1000]; 0 selects the server default.
	Limit    int
	BeforeID string
	AfterID  string
}

const (
	minListLimit = 1
	maxListLimit = 1000
)

// List returns a page of available models, per spec.md §4.5's
// models.list operation. Limit is clamped to [1,1000].
func (m *Models) List(ctx context.Context, params ListParams) (*models.ModelPage, error) {
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

	path := "/v1/models"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := m.c.t.Do(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	var page models.ModelPage
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, apierror.Wrap(apierror.KindResponseValidation, err)
	}
	return &page, nil
}

// Get fetches a single model by id, per spec.md §4.5's models.get
// operation.
func (m *Models) Get(ctx context.Context, id string) (*models.Model, error) {
	if id == "" {
		return nil, apierror.New(apierror.KindInvalidRequest, "model id is required")
	}
	resp, err := m.c.t.Do(ctx, "GET", "/v1/models/"+id, nil)
	if err != nil {
		return nil, err
	}
	var mdl models.Model
	if err := json.Unmarshal(resp.Body, &mdl); err != nil {
		return nil, apierror.Wrap(apierror.KindResponseValidation, err)
	}
	return &mdl, nil
}
