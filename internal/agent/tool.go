// Package agent implements the tool-execution loop described in
// spec.md §4.7 (C7): a name→Tool registry and a deterministic state
// machine that interleaves model turns, local tool invocations, and
// tool-result injection until the model stops asking for tools or a
// configured turn bound is hit.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/claudekit/pkg/models"
)

// Tool is the local-tool contract of spec.md §3: a descriptor the model
// sees, plus an invoker the runner calls once the model asks for it.
// Implementations must be safe for concurrent use — the runner may call
// Invoke for several tool_use blocks from the same turn concurrently
// when it can preserve result ordering itself.
type Tool interface {
	// Descriptor returns the name/description/schema triple sent to the
	// model with every request. It must not change between iterations of
	// a single run; the runner treats a changing descriptor as a bug in
	// the caller, not something it guards against.
	Descriptor() models.ToolDescriptor

	// Invoke runs the tool against the model-supplied input and returns
	// its output, or a ToolError the runner turns into an is_error tool
	// result. Invoke must not panic; a panic aborts the whole run rather
	// than becoming a tool_result, unlike every other failure mode.
	Invoke(ctx context.Context, input json.RawMessage) (*ToolOutput, error)
}

// ToolOutput is the result of a successful Tool.Invoke, per spec.md §3's
// "ToolResult is one of: text, JSON value, or ordered list of content
// blocks." Exactly one of Text, JSON, or Blocks should be set; String
// renders whichever is present as the text the runner feeds back to the
// model.
type ToolOutput struct {
	Text   string
	JSON   json.RawMessage
	Blocks []models.ContentBlock
}

// NewTextOutput wraps a plain string result.
func NewTextOutput(text string) *ToolOutput { return &ToolOutput{Text: text} }

// NewJSONOutput wraps a JSON value result.
func NewJSONOutput(v json.RawMessage) *ToolOutput { return &ToolOutput{JSON: v} }

// String renders the output as the text content of a tool_result block.
func (o *ToolOutput) String() string {
	if o == nil {
		return ""
	}
	switch {
	case len(o.Blocks) > 0:
		var out string
		for _, b := range o.Blocks {
			if b.Type == models.ContentText {
				out += b.Text
			}
		}
		return out
	case len(o.JSON) > 0:
		return string(o.JSON)
	default:
		return o.Text
	}
}

// ToolError is the typed failure a Tool.Invoke may return. The runner
// never aborts the loop for a ToolError — it is reformatted as an
// is_error tool_result and fed back to the model, per spec.md §4.7/§7.
type ToolError struct {
	ToolName string
	Cause    error
}

func (e *ToolError) Error() string {
	if e.ToolName == "" {
		return e.Cause.Error()
	}
	return fmt.Sprintf("%s: %v", e.ToolName, e.Cause)
}

func (e *ToolError) Unwrap() error { return e.Cause }

// NewToolError wraps cause as a ToolError attributed to toolName.
func NewToolError(toolName string, cause error) *ToolError {
	return &ToolError{ToolName: toolName, Cause: cause}
}
