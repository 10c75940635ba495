package agentsession

import (
	"encoding/json"
	"testing"

	"github.com/haasonsaas/claudekit/pkg/models"
)

func TestNormalizeContent_String(t *testing.T) {
	blocks, err := NormalizeContent(json.RawMessage(`"hello"`))
	if err != nil {
		t.Fatalf("NormalizeContent: %v", err)
	}
	if len(blocks) != 1 || blocks[0].Type != models.ContentText || blocks[0].Text != "hello" {
		t.Fatalf("got %+v, want a single text block", blocks)
	}
}

func TestNormalizeContent_Blocks(t *testing.T) {
	raw := json.RawMessage(`[{"type":"text","text":"a"},{"type":"text","text":"b"}]`)
	blocks, err := NormalizeContent(raw)
	if err != nil {
		t.Fatalf("NormalizeContent: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
}

func TestNormalizeContent_Invalid(t *testing.T) {
	if _, err := NormalizeContent(json.RawMessage(`123`)); err == nil {
		t.Fatalf("expected error for a bare number")
	}
}
