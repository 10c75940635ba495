package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/haasonsaas/claudekit/internal/apierror"
)

const (
	vertexScope           = "https://www.googleapis.com/auth/cloud-platform"
	vertexAnthropicVersion = "vertex-2023-10-16"
)

// VertexConfig configures the Gateway-B adapter: region/project URL
// templating against a cloud LLM endpoint, grounded on the donor's
// golang.org/x/oauth2 + golang.org/x/oauth2/google dependency pair for
// ambient credential discovery (the donor never calls Vertex directly --
// this is new code, following the donor's own preference for a raw
// net/http client over a generated SDK when no client exists for the
// target API, since the region/project URL template this adapter needs
// isn't something a higher-level client would expose anyway).
type VertexConfig struct {
	Project     string
	Region      string
	BearerToken string // explicit token; ambient credentials used when empty
	Transport   Config
}

// Vertex is the Gateway-B adapter from spec.md §4.4.
type Vertex struct {
	cfg       Config
	project   string
	region    string
	tokenFunc func(context.Context) (string, error)
}

// NewVertex resolves credentials (ambient via google.FindDefaultCredentials
// unless BearerToken is set) and returns a ready Gateway-B adapter.
func NewVertex(ctx context.Context, cfg VertexConfig) (*Vertex, error) {
	if cfg.Project == "" || cfg.Region == "" {
		return nil, apierror.New(apierror.KindMissingConfig, "vertex: Project and Region are required")
	}

	v := &Vertex{
		cfg:     cfg.Transport,
		project: cfg.Project,
		region:  cfg.Region,
	}
	v.cfg.BaseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com", cfg.Region)

	if cfg.BearerToken != "" {
		token := cfg.BearerToken
		v.tokenFunc = func(context.Context) (string, error) { return token, nil }
		return v, nil
	}

	creds, err := google.FindDefaultCredentials(ctx, vertexScope)
	if err != nil {
		return nil, apierror.New(apierror.KindMissingConfig, "vertex: failed to resolve ambient credentials: "+err.Error())
	}
	var ts oauth2.TokenSource = creds.TokenSource
	v.tokenFunc = func(ctx context.Context) (string, error) {
		tok, err := ts.Token()
		if err != nil {
			return "", apierror.Wrap(apierror.KindAuth, err)
		}
		return tok.AccessToken, nil
	}
	return v, nil
}

func (v *Vertex) Name() string       { return "vertex" }
func (v *Vertex) SupportsBeta() bool { return false }
func (v *Vertex) BaseURL() string    { return v.cfg.BaseURL }
func (v *Vertex) Unwrap() any        { return v }

func (v *Vertex) NewRequest(method, path string) *RequestBuilder {
	return NewRequestBuilder(method, path)
}

const vertexMessagesPath = "/v1/messages"

// modelURL builds projects/{project}/locations/{region}/publishers/anthropic/models/{model}:{op}
// and extracts+removes the model field from the body, per spec.md §4.4.
func (v *Vertex) modelURL(body map[string]any, op string) (string, error) {
	model, _ := body["model"].(string)
	if model == "" {
		return "", apierror.New(apierror.KindInvalidRequest, "vertex: request body must carry a model field")
	}
	delete(body, "model")
	return fmt.Sprintf("/v1/projects/%s/locations/%s/publishers/anthropic/models/%s:%s",
		v.project, v.region, model, op), nil
}

func (v *Vertex) prepareBody(body any) (map[string]any, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInvalidRequest, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apierror.Wrap(apierror.KindInvalidRequest, err)
	}
	m["anthropic_version"] = vertexAnthropicVersion
	return m, nil
}

func (v *Vertex) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	if path != vertexMessagesPath {
		return nil, apierror.New(apierror.KindInvalidURL, "vertex gateway only supports "+vertexMessagesPath)
	}
	m, err := v.prepareBody(body)
	if err != nil {
		return nil, err
	}
	opPath, err := v.modelURL(m, "rawPredict")
	if err != nil {
		return nil, err
	}
	b := NewRequestBuilder(method, opPath)
	if _, err := b.WithJSON(m); err != nil {
		return nil, err
	}
	return Do(ctx, &v.cfg, b, v.auth)
}

func (v *Vertex) DoStreaming(ctx context.Context, method, path string, body any) (*StreamResponse, error) {
	if path != vertexMessagesPath {
		return nil, apierror.New(apierror.KindInvalidURL, "vertex gateway only supports "+vertexMessagesPath)
	}
	m, err := v.prepareBody(body)
	if err != nil {
		return nil, err
	}
	opPath, err := v.modelURL(m, "streamRawPredict")
	if err != nil {
		return nil, err
	}
	b := NewRequestBuilder(method, opPath)
	if _, err := b.WithJSON(m); err != nil {
		return nil, err
	}
	return DoStreaming(ctx, &v.cfg, b, v.auth)
}

func (v *Vertex) auth(req *http.Request) error {
	token, err := v.tokenFunc(req.Context())
	if err != nil {
		return err
	}
	req.Header.Set("authorization", "Bearer "+token)
	return nil
}
