// Package models defines the wire-level value types shared by the
// transport, resource, tool-runner, and agent-session layers: messages,
// content blocks, requests, and the small set of supporting value types
// (usage, rate-limit snapshots, tool descriptors).
package models

import "encoding/json"

// Role is the author of a Message. Only user and assistant turns are
// ever persisted in a conversation; "system" is carried on MessageRequest
// separately, as the upstream API treats it.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopReason is the closed set of reasons a model turn can end.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopMaxTokens    StopReason = "max_tokens"
	StopSequence     StopReason = "stop_sequence"
	StopToolUse      StopReason = "tool_use"
)

// Usage reports token accounting for a turn.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// Message is an immutable record of a single conversation turn. Assistant
// messages are produced by the service; user messages are caller-built.
//
// Invariant: StopReason is one of the StopXxx constants, and is
// StopToolUse if and only if Content contains at least one tool_use block.
type Message struct {
	ID         string         `json:"id"`
	Role       Role           `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason StopReason     `json:"stop_reason,omitempty"`
	StopSequence *string      `json:"stop_sequence,omitempty"`
	Usage      Usage          `json:"usage"`
}

// HasToolUse reports whether any content block is a tool_use block.
func (m *Message) HasToolUse() bool {
	for _, b := range m.Content {
		if b.Type == ContentToolUse {
			return true
		}
	}
	return false
}

// Text concatenates all text blocks in document order. It is a
// convenience for callers who only care about the textual response.
func (m *Message) Text() string {
	var out string
	for _, b := range m.Content {
		if b.Type == ContentText {
			out += b.Text
		}
	}
	return out
}

// ContentBlockType discriminates the ContentBlock tagged union.
type ContentBlockType string

const (
	ContentText       ContentBlockType = "text"
	ContentImage      ContentBlockType = "image"
	ContentToolUse    ContentBlockType = "tool_use"
	ContentToolResult ContentBlockType = "tool_result"
	ContentThinking   ContentBlockType = "thinking"
	ContentDocument   ContentBlockType = "document"
)

// Citation is a reference attached to a text block.
type Citation struct {
	Type         string `json:"type"`
	DocumentIndex int   `json:"document_index,omitempty"`
	StartChar    int    `json:"start_char,omitempty"`
	EndChar      int    `json:"end_char,omitempty"`
	CitedText    string `json:"cited_text,omitempty"`
}

// ImageSource holds inline base64 image data.
type ImageSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// DocumentSource holds an inline or referenced document.
type DocumentSource struct {
	Type      string `json:"type"` // "base64" | "text" | "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// CacheControl marks a block as eligible for prompt caching.
type CacheControl struct {
	Type string `json:"type"` // "ephemeral"
}

// ContentBlock is the tagged-union variant described in spec.md §3:
// text, image, tool_use, tool_result, thinking, or document. Exactly the
// fields relevant to Type are populated; the rest are zero.
type ContentBlock struct {
	Type ContentBlockType `json:"type"`

	// text
	Text      string     `json:"text,omitempty"`
	Citations []Citation `json:"citations,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// thinking
	Signature string `json:"signature,omitempty"`
	Thinking  string `json:"thinking,omitempty"`

	// document
	DocumentSource *DocumentSource `json:"document_source,omitempty"`
	Title          string          `json:"title,omitempty"`

	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// NewTextBlock builds a plain text content block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

// NewToolUseBlock builds a tool_use content block.
func NewToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: ContentToolUse, ID: id, Name: name, Input: input}
}

// NewToolResultBlock builds a tool_result content block referencing the
// tool_use block with the given id.
func NewToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: ContentToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// ToolChoice constrains how the model selects among the offered tools.
type ToolChoice struct {
	Type string `json:"type"` // "auto" | "any" | "tool" | "none"
	Name string `json:"name,omitempty"`
}

// SystemBlock is one element of a cacheable system prompt.
type SystemBlock struct {
	Type         string        `json:"type"` // "text"
	Text         string        `json:"text"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// ThinkingConfig requests extended thinking with a token budget.
type ThinkingConfig struct {
	Type         string `json:"type"` // "enabled" | "disabled"
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// ToolDescriptor is the name/description/schema triple sent to the model.
// Invariant: Name matches [A-Za-z0-9_-]+ and InputSchema describes an
// object type (both checked by Validate).
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// MessageRequest is the caller-provided turn bundle described in
// spec.md §3. System may be a plain string (marshaled as-is) or, when
// SystemBlocks is set, a list of cacheable text blocks — callers choose
// one or the other.
type MessageRequest struct {
	Model         string           `json:"model"`
	MaxTokens     int              `json:"max_tokens"`
	Messages      []RequestMessage `json:"messages"`
	System        string           `json:"system,omitempty"`
	SystemBlocks  []SystemBlock    `json:"-"`
	Tools         []ToolDescriptor `json:"tools,omitempty"`
	ToolChoice    *ToolChoice      `json:"tool_choice,omitempty"`
	Temperature   *float64         `json:"temperature,omitempty"`
	TopK          *int             `json:"top_k,omitempty"`
	TopP          *float64         `json:"top_p,omitempty"`
	StopSequences []string         `json:"stop_sequences,omitempty"`
	Thinking      *ThinkingConfig  `json:"thinking,omitempty"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
	Stream        bool             `json:"stream,omitempty"`
}

// RequestMessage is one turn of the caller-supplied conversation: a role
// and its ordered content blocks.
type RequestMessage struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Clone returns a deep-enough copy for the tool runner to safely append
// to without aliasing the caller's slice backing arrays.
func (r *MessageRequest) Clone() *MessageRequest {
	clone := *r
	clone.Messages = make([]RequestMessage, len(r.Messages))
	for i, m := range r.Messages {
		clone.Messages[i] = RequestMessage{Role: m.Role, Content: append([]ContentBlock(nil), m.Content...)}
	}
	clone.Tools = append([]ToolDescriptor(nil), r.Tools...)
	return &clone
}
