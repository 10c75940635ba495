// Package agentsession implements the agent session (C8 -- spec.md §4.8):
// a client for a subprocess speaking line-delimited JSON on stdin/stdout.
package agentsession

import (
	"encoding/json"

	"github.com/haasonsaas/claudekit/pkg/models"
)

// EnvelopeType discriminates the top-level message envelope, per spec.md
// §4.8: "{type: user|assistant|system|result|stream_event, ...}".
type EnvelopeType string

const (
	EnvelopeUser         EnvelopeType = "user"
	EnvelopeAssistant    EnvelopeType = "assistant"
	EnvelopeSystem       EnvelopeType = "system"
	EnvelopeResult       EnvelopeType = "result"
	EnvelopeStreamEvent  EnvelopeType = "stream_event"
	EnvelopeControlReq   EnvelopeType = "control_request"
	EnvelopeControlResp  EnvelopeType = "control_response"
	EnvelopeControlCncl  EnvelopeType = "control_cancel_request"
)

// rawEnvelope is the shape every wire line decodes into far enough to
// dispatch on Type before unmarshaling the rest.
type rawEnvelope struct {
	Type      EnvelopeType    `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// EnvelopeMessage carries the nested `message` payload of a user/assistant
// envelope. Content is either a bare string (lifted to a single text
// block by NormalizeContent) or an array of content blocks, per spec.md
// §4.8.
type EnvelopeMessage struct {
	Content json.RawMessage `json:"content"`
	Model   string          `json:"model,omitempty"`
}

// UserEnvelope is a `user` top-level message.
type UserEnvelope struct {
	Type      EnvelopeType    `json:"type"`
	Message   EnvelopeMessage `json:"message"`
	SessionID string          `json:"session_id,omitempty"`
}

// AssistantEnvelope is an `assistant` top-level message.
type AssistantEnvelope struct {
	Type      EnvelopeType    `json:"type"`
	Message   EnvelopeMessage `json:"message"`
	SessionID string          `json:"session_id,omitempty"`
}

// SystemEnvelope carries diagnostic/lifecycle signals -- initialize,
// status, permission checks -- discriminated by Subtype.
type SystemEnvelope struct {
	Type      EnvelopeType    `json:"type"`
	Subtype   string          `json:"subtype"`
	Data      json.RawMessage `json:"data,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
}

// ResultEnvelope is the terminal marker for a query, per spec.md §4.8.
type ResultEnvelope struct {
	Type          EnvelopeType `json:"type"`
	Subtype       string       `json:"subtype"`
	IsError       bool         `json:"is_error"`
	DurationMS    int64        `json:"duration_ms"`
	DurationAPIMS int64        `json:"duration_api_ms"`
	NumTurns      int          `json:"num_turns"`
	SessionID     string       `json:"session_id"`
	TotalCostUSD  float64      `json:"total_cost_usd,omitempty"`
	Usage         *models.Usage `json:"usage,omitempty"`
	Result        string       `json:"result,omitempty"`
}

// StreamEventEnvelope mirrors a partial-message delta per §4.6, wrapped
// for subprocess transit per §4.8.
type StreamEventEnvelope struct {
	Type            EnvelopeType    `json:"type"`
	UUID            string          `json:"uuid"`
	SessionID       string          `json:"session_id"`
	Event           json.RawMessage `json:"event"`
	ParentToolUseID string          `json:"parent_tool_use_id,omitempty"`
}

// ControlRequest is a control-channel request such as a permission check,
// interrupt, or initialize handshake -- at most one outstanding at a
// time, per spec.md §4.8's concurrency model.
type ControlRequest struct {
	Type      EnvelopeType    `json:"type"`
	RequestID string          `json:"request_id"`
	Subtype   string          `json:"subtype"`
	Request   json.RawMessage `json:"request,omitempty"`
}

// ControlResponse answers a ControlRequest by RequestID.
type ControlResponse struct {
	Type      EnvelopeType    `json:"type"`
	RequestID string          `json:"request_id"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ControlCancelRequest cancels an outstanding control request (used by
// session.interrupt()).
type ControlCancelRequest struct {
	Type      EnvelopeType `json:"type"`
	RequestID string       `json:"request_id"`
}

// PermissionCheckRequest is the `request` payload of a control_request
// whose Subtype is "can_use_tool", per spec.md §4.8's permission
// evaluation section.
type PermissionCheckRequest struct {
	Tool       string          `json:"tool"`
	Input      json.RawMessage `json:"input"`
	Suggestion json.RawMessage `json:"suggestion,omitempty"`
}

// PermissionCheckResponse is the evaluator's verdict, written back as the
// `response` payload of the matching control_response.
type PermissionCheckResponse struct {
	Allow         bool            `json:"allow"`
	ModifiedInput json.RawMessage `json:"modified_input,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// NormalizeContent lifts a bare JSON string to a single text content
// block, or passes an array of blocks through unchanged, per spec.md
// §4.8: "String content is lifted to a single text block."
func NormalizeContent(raw json.RawMessage) ([]models.ContentBlock, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return []models.ContentBlock{models.NewTextBlock(asString)}, nil
	}
	var blocks []models.ContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}
