package resources

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/haasonsaas/claudekit/internal/apierror"
	"github.com/haasonsaas/claudekit/internal/transport"
	"github.com/haasonsaas/claudekit/pkg/models"
)

func TestMessagesCreate_Success(t *testing.T) {
	ft := &fakeTransport{
		doFunc: func(ctx context.Context, method, path string, body any) (*transport.Response, error) {
			if method != "POST" || path != "/v1/messages" {
				t.Fatalf("unexpected request: %s %s", method, path)
			}
			return jsonResponse(200, models.Message{ID: "msg_1", Role: models.RoleAssistant, Content: []models.ContentBlock{models.NewTextBlock("hello")}}), nil
		},
	}
	c := NewClient(ft)
	msg, err := c.Messages().Create(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if msg.ID != "msg_1" || msg.Text() != "hello" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestMessagesCreate_RejectsEmptyModel(t *testing.T) {
	req := validRequest()
	req.Model = ""
	ft := &fakeTransport{doFunc: func(context.Context, string, string, any) (*transport.Response, error) {
		t.Fatal("transport should not be reached on local validation failure")
		return nil, nil
	}}
	_, err := NewClient(ft).Messages().Create(context.Background(), req)
	if !apierror.Is(err, apierror.KindInvalidRequest) {
		t.Fatalf("expected invalid_request, got %v", err)
	}
}

func TestMessagesCreate_RejectsZeroMaxTokens(t *testing.T) {
	req := validRequest()
	req.MaxTokens = 0
	_, err := NewClient(&fakeTransport{}).Messages().Create(context.Background(), req)
	if !apierror.Is(err, apierror.KindInvalidRequest) {
		t.Fatalf("expected invalid_request, got %v", err)
	}
}

func TestMessagesCreate_RejectsNonAlternatingRoles(t *testing.T) {
	req := validRequest()
	req.Messages = append(req.Messages, models.RequestMessage{Role: models.RoleUser, Content: req.Messages[0].Content})
	_, err := NewClient(&fakeTransport{}).Messages().Create(context.Background(), req)
	if !apierror.Is(err, apierror.KindInvalidRequest) {
		t.Fatalf("expected invalid_request, got %v", err)
	}
}

func TestMessagesCreate_PropagatesUpstreamError(t *testing.T) {
	ft := &fakeTransport{doFunc: func(context.Context, string, string, any) (*transport.Response, error) {
		return nil, apierror.New(apierror.KindRateLimit, "slow down")
	}}
	_, err := NewClient(ft).Messages().Create(context.Background(), validRequest())
	if !apierror.Is(err, apierror.KindRateLimit) {
		t.Fatalf("expected rate_limit, got %v", err)
	}
}

func TestMessagesCreateRaw_ExposesMetadata(t *testing.T) {
	ft := &fakeTransport{doFunc: func(context.Context, string, string, any) (*transport.Response, error) {
		resp := jsonResponse(200, models.Message{ID: "msg_2"})
		resp.Header.Set("x-request-id", "req_123")
		resp.Retries = 2
		return resp, nil
	}}
	raw, err := NewClient(ft).Messages().CreateRaw(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("CreateRaw: %v", err)
	}
	if raw.RequestID() != "req_123" || raw.RetriesTaken() != 2 {
		t.Fatalf("unexpected raw metadata: %+v", raw)
	}
}

func TestMessagesStream_ForcesStreamTrue(t *testing.T) {
	body := "event: message_start\ndata: {}\n\nevent: message_stop\ndata: {}\n\n"
	ft := &fakeTransport{doStreamingFunc: func(ctx context.Context, method, path string, reqBody any) (*transport.StreamResponse, error) {
		req, ok := reqBody.(*models.MessageRequest)
		if !ok || !req.Stream {
			t.Fatalf("expected a cloned request with Stream=true, got %#v", reqBody)
		}
		return &transport.StreamResponse{Status: 200, Header: http.Header{}, Body: io.NopCloser(strings.NewReader(body))}, nil
	}}
	stream, err := NewClient(ft).Messages().Stream(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	var types []string
	for stream.Next() {
		types = append(types, string(stream.Event().Type))
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if len(types) != 2 || types[0] != "message_start" || types[1] != "message_stop" {
		t.Fatalf("unexpected event sequence: %v", types)
	}
}

func TestMessagesStream_DoesNotMutateCallerRequest(t *testing.T) {
	req := validRequest()
	ft := &fakeTransport{doStreamingFunc: func(context.Context, string, string, any) (*transport.StreamResponse, error) {
		return &transport.StreamResponse{Status: 200, Header: http.Header{}, Body: io.NopCloser(strings.NewReader("event: message_stop\ndata: {}\n\n"))}, nil
	}}
	if _, err := NewClient(ft).Messages().Stream(context.Background(), req); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if req.Stream {
		t.Fatal("caller's request must not be mutated; Stream cloned it before setting Stream=true")
	}
}

func TestMessagesCountTokens(t *testing.T) {
	ft := &fakeTransport{doFunc: func(ctx context.Context, method, path string, body any) (*transport.Response, error) {
		if path != "/v1/messages/count_tokens" {
			t.Fatalf("unexpected path: %s", path)
		}
		return jsonResponse(200, map[string]int{"input_tokens": 42}), nil
	}}
	n, err := NewClient(ft).Messages().CountTokens(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("CountTokens: %v", err)
	}
	if n != 42 {
		t.Fatalf("expected 42 input tokens, got %d", n)
	}
}

func TestMessagesBatches_IsMemoized(t *testing.T) {
	c := NewClient(&fakeTransport{})
	a := c.Messages().Batches()
	b := c.Messages().Batches()
	if a != b {
		t.Fatal("Batches() must return the same instance across calls")
	}
}
