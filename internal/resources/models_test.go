package resources

import (
	"context"
	"strings"
	"testing"

	"github.com/haasonsaas/claudekit/internal/apierror"
	"github.com/haasonsaas/claudekit/internal/transport"
	"github.com/haasonsaas/claudekit/pkg/models"
)

func TestModelsList_NoParams(t *testing.T) {
	ft := &fakeTransport{doFunc: func(ctx context.Context, method, path string, body any) (*transport.Response, error) {
		if path != "/v1/models" {
			t.Fatalf("unexpected path: %s", path)
		}
		return jsonResponse(200, models.ModelPage{Data: []models.Model{{ID: "claude-3-5-sonnet-20241022"}}}), nil
	}}
	page, err := NewClient(ft).Models().List(context.Background(), ListParams{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Data) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestModelsList_ClampsLimit(t *testing.T) {
	cases := []struct {
		in   int
		want string
	}{
		{in: -5, want: "limit=1"},
		{in: 0, want: ""},
		{in: 50, want: "limit=50"},
		{in: 5000, want: "limit=1000"},
	}
	for _, tc := range cases {
		var gotPath string
		ft := &fakeTransport{doFunc: func(ctx context.Context, method, path string, body any) (*transport.Response, error) {
			gotPath = path
			return jsonResponse(200, models.ModelPage{}), nil
		}}
		if _, err := NewClient(ft).Models().List(context.Background(), ListParams{Limit: tc.in}); err != nil {
			t.Fatalf("List(%d): %v", tc.in, err)
		}
		if tc.want == "" {
			if strings.Contains(gotPath, "limit=") {
				t.Fatalf("List(%d): expected no limit param, got path %s", tc.in, gotPath)
			}
			continue
		}
		if !strings.Contains(gotPath, tc.want) {
			t.Fatalf("List(%d): expected path to contain %q, got %s", tc.in, tc.want, gotPath)
		}
	}
}

func TestModelsList_CursorParams(t *testing.T) {
	var gotPath string
	ft := &fakeTransport{doFunc: func(ctx context.Context, method, path string, body any) (*transport.Response, error) {
		gotPath = path
		return jsonResponse(200, models.ModelPage{}), nil
	}}
	_, err := NewClient(ft).Models().List(context.Background(), ListParams{BeforeID: "model_b", AfterID: "model_a"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !strings.Contains(gotPath, "before_id=model_b") || !strings.Contains(gotPath, "after_id=model_a") {
		t.Fatalf("unexpected query path: %s", gotPath)
	}
}

func TestModelsGet_Success(t *testing.T) {
	ft := &fakeTransport{doFunc: func(ctx context.Context, method, path string, body any) (*transport.Response, error) {
		if path != "/v1/models/claude-3-5-sonnet-20241022" {
			t.Fatalf("unexpected path: %s", path)
		}
		return jsonResponse(200, models.Model{ID: "claude-3-5-sonnet-20241022", DisplayName: "Claude 3.5 Sonnet"}), nil
	}}
	m, err := NewClient(ft).Models().Get(context.Background(), "claude-3-5-sonnet-20241022")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.DisplayName != "Claude 3.5 Sonnet" {
		t.Fatalf("unexpected model: %+v", m)
	}
}

func TestModelsGet_RejectsEmptyID(t *testing.T) {
	_, err := NewClient(&fakeTransport{}).Models().Get(context.Background(), "")
	if !apierror.Is(err, apierror.KindInvalidRequest) {
		t.Fatalf("expected invalid_request, got %v", err)
	}
}
