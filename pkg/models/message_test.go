package models

import (
	"encoding/json"
	"testing"
)

func TestMessageHasToolUse(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		want bool
	}{
		{"no content", Message{}, false},
		{"text only", Message{Content: []ContentBlock{NewTextBlock("hi")}}, false},
		{"tool use", Message{Content: []ContentBlock{NewToolUseBlock("t1", "add", nil)}}, true},
		{"mixed", Message{Content: []ContentBlock{NewTextBlock("pre"), NewToolUseBlock("t1", "add", nil)}}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.msg.HasToolUse(); got != c.want {
				t.Errorf("HasToolUse() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestMessageText(t *testing.T) {
	msg := Message{Content: []ContentBlock{
		NewTextBlock("He"),
		NewToolUseBlock("t1", "add", nil),
		NewTextBlock("llo"),
	}}
	if got := msg.Text(); got != "Hello" {
		t.Errorf("Text() = %q, want %q", got, "Hello")
	}
}

func TestMessageRoundTrip(t *testing.T) {
	input := json.RawMessage(`{"a":1,"b":2}`)
	msg := Message{
		ID:         "msg_1",
		Role:       RoleAssistant,
		Model:      "claude-3-5-sonnet-20241022",
		StopReason: StopToolUse,
		Usage:      Usage{InputTokens: 10, OutputTokens: 5},
		Content: []ContentBlock{
			NewTextBlock("Hello"),
			NewToolUseBlock("tu_1", "add", input),
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.ID != msg.ID || got.Role != msg.Role || got.StopReason != msg.StopReason {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, msg)
	}
	if len(got.Content) != 2 || got.Content[1].Name != "add" {
		t.Errorf("content round trip mismatch: %+v", got.Content)
	}
}

func TestMessageRequestClone(t *testing.T) {
	req := &MessageRequest{
		Model:     "claude-3-5-sonnet-20241022",
		MaxTokens: 1024,
		Messages: []RequestMessage{
			{Role: RoleUser, Content: []ContentBlock{NewTextBlock("hi")}},
		},
		Tools: []ToolDescriptor{{Name: "add"}},
	}

	clone := req.Clone()
	clone.Messages[0].Content[0].Text = "mutated"
	clone.Tools[0].Name = "mutated"

	if req.Messages[0].Content[0].Text != "hi" {
		t.Errorf("clone mutation leaked into original message content")
	}
	if req.Tools[0].Name != "add" {
		t.Errorf("clone mutation leaked into original tools")
	}
}

func TestNewToolResultBlock(t *testing.T) {
	b := NewToolResultBlock("tu_1", "42", false)
	if b.Type != ContentToolResult || b.ToolUseID != "tu_1" || b.Content != "42" || b.IsError {
		t.Errorf("unexpected block: %+v", b)
	}
}
