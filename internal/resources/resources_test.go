package resources

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/haasonsaas/claudekit/internal/transport"
	"github.com/haasonsaas/claudekit/pkg/models"
)

// fakeTransport is a minimal in-memory Transport double: each call records
// the method/path/body it received and returns a pre-scripted response.
type fakeTransport struct {
	doFunc          func(ctx context.Context, method, path string, body any) (*transport.Response, error)
	doStreamingFunc func(ctx context.Context, method, path string, body any) (*transport.StreamResponse, error)

	lastMethod string
	lastPath   string
	lastBody   any
}

func (f *fakeTransport) Name() string       { return "fake" }
func (f *fakeTransport) SupportsBeta() bool { return false }
func (f *fakeTransport) BaseURL() string    { return "https://fake.example" }
func (f *fakeTransport) Unwrap() any        { return f }

func (f *fakeTransport) NewRequest(method, path string) *transport.RequestBuilder {
	return transport.NewRequestBuilder(method, path)
}

func (f *fakeTransport) Do(ctx context.Context, method, path string, body any) (*transport.Response, error) {
	f.lastMethod, f.lastPath, f.lastBody = method, path, body
	return f.doFunc(ctx, method, path, body)
}

func (f *fakeTransport) DoStreaming(ctx context.Context, method, path string, body any) (*transport.StreamResponse, error) {
	f.lastMethod, f.lastPath, f.lastBody = method, path, body
	return f.doStreamingFunc(ctx, method, path, body)
}

func jsonResponse(status int, v any) *transport.Response {
	data, _ := json.Marshal(v)
	return &transport.Response{Status: status, Header: http.Header{}, Body: data}
}

func validRequest() *models.MessageRequest {
	return &models.MessageRequest{
		Model:     "claude-3-5-sonnet-20241022",
		MaxTokens: 256,
		Messages: []models.RequestMessage{
			{Role: models.RoleUser, Content: []models.ContentBlock{models.NewTextBlock("hi")}},
		},
	}
}
