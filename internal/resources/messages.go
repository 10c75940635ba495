package resources

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/haasonsaas/claudekit/internal/apierror"
	"github.com/haasonsaas/claudekit/internal/sse"
	"github.com/haasonsaas/claudekit/pkg/models"
)

// Messages is the resource from spec.md §4.5: create, stream, count_tokens,
// and the Batches sub-resource.
type Messages struct {
	c *Client
}

// Batches returns the batches sub-resource, built once and memoized for
// the lifetime of the parent Client.
func (m *Messages) Batches() *Batches {
	return m.c.batchesResource()
}

// validate applies the local checks spec.md §4.5 requires before a
// request ever reaches the wire: non-empty model, max_tokens >= 1, and
// roles that strictly alternate starting with user.
func validate(req *models.MessageRequest) error {
	if req.Model == "" {
		return apierror.New(apierror.KindInvalidRequest, "model is required")
	}
	if req.MaxTokens < 1 {
		return apierror.New(apierror.KindInvalidRequest, "max_tokens must be >= 1")
	}
	if len(req.Messages) == 0 {
		return apierror.New(apierror.KindInvalidRequest, "messages must not be empty")
	}
	want := models.RoleUser
	for i, msg := range req.Messages {
		if msg.Role != want {
			return apierror.New(apierror.KindInvalidRequest,
				"messages must strictly alternate starting with user; mismatch at index "+strconv.Itoa(i))
		}
		if want == models.RoleUser {
			want = models.RoleAssistant
		} else {
			want = models.RoleUser
		}
	}
	return nil
}

// Create sends req and parses the resulting Message, per spec.md §4.5's
// messages.create operation.
func (m *Messages) Create(ctx context.Context, req *models.MessageRequest) (*models.Message, error) {
	raw, err := m.CreateRaw(ctx, req)
	if err != nil {
		return nil, err
	}
	return &raw.Parsed, nil
}

// CreateRaw is the with_raw_response variant of Create.
func (m *Messages) CreateRaw(ctx context.Context, req *models.MessageRequest) (*Raw[models.Message], error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	body := req.Clone()
	body.Stream = false

	resp, err := m.c.t.Do(ctx, "POST", "/v1/messages", body)
	if err != nil {
		return nil, err
	}
	var msg models.Message
	if err := json.Unmarshal(resp.Body, &msg); err != nil {
		return nil, apierror.Wrap(apierror.KindResponseValidation, err)
	}
	return &Raw[models.Message]{Parsed: msg, Status: resp.Status, Header: resp.Header, Retries: resp.Retries, Elapsed: resp.Elapsed}, nil
}

// MessageStream wraps an SSE reader over a /v1/messages streaming
// response, closing the underlying connection when the caller is done.
type MessageStream struct {
	r    *sse.Reader
	body interface{ Close() error }
}

// Next advances to the next event. It returns false at end-of-stream or
// on error; callers should check Err after a false return.
func (s *MessageStream) Next() bool { return s.r.Next() }

// Event returns the most recently read event.
func (s *MessageStream) Event() sse.Event { return s.r.Event() }

// Err returns the terminal error, if any.
func (s *MessageStream) Err() error { return s.r.Err() }

// Close releases the underlying connection.
func (s *MessageStream) Close() error { return s.body.Close() }

// Stream opens a streaming messages.create call and returns a reader over
// its SSE events, per spec.md §4.5's messages.stream operation.
func (m *Messages) Stream(ctx context.Context, req *models.MessageRequest) (*MessageStream, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	body := req.Clone()
	body.Stream = true

	resp, err := m.c.t.DoStreaming(ctx, "POST", "/v1/messages", body)
	if err != nil {
		return nil, err
	}
	return &MessageStream{r: sse.NewReader(resp.Body, sse.DefaultMaxLineBytes), body: resp.Body}, nil
}

// countTokensResponse is the wire shape of the count_tokens endpoint.
type countTokensResponse struct {
	InputTokens int `json:"input_tokens"`
}

// countTokensRequest mirrors MessageRequest but omits max_tokens, which
// the count_tokens endpoint neither accepts nor requires.
type countTokensRequest struct {
	Model        string                  `json:"model"`
	Messages     []models.RequestMessage `json:"messages"`
	System       string                  `json:"system,omitempty"`
	Tools        []models.ToolDescriptor `json:"tools,omitempty"`
	ToolChoice   *models.ToolChoice      `json:"tool_choice,omitempty"`
	Thinking     *models.ThinkingConfig  `json:"thinking,omitempty"`
}

// CountTokens estimates the input token count of req without starting a
// turn, per spec.md §4.5's messages.count_tokens operation.
func (m *Messages) CountTokens(ctx context.Context, req *models.MessageRequest) (int, error) {
	if req.Model == "" {
		return 0, apierror.New(apierror.KindInvalidRequest, "model is required")
	}
	if len(req.Messages) == 0 {
		return 0, apierror.New(apierror.KindInvalidRequest, "messages must not be empty")
	}
	body := countTokensRequest{
		Model:      req.Model,
		Messages:   req.Messages,
		System:     req.System,
		Tools:      req.Tools,
		ToolChoice: req.ToolChoice,
		Thinking:   req.Thinking,
	}
	resp, err := m.c.t.Do(ctx, "POST", "/v1/messages/count_tokens", body)
	if err != nil {
		return 0, err
	}
	var out countTokensResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return 0, apierror.Wrap(apierror.KindResponseValidation, err)
	}
	return out.InputTokens, nil
}
