package toolserver

import (
	"context"
	"encoding/json"
	"testing"
)

type echoInput struct {
	Text string `json:"text" jsonschema:"required,description=text to echo"`
}

type echoOutput struct {
	Echoed string `json:"echoed"`
}

func buildEchoServer(t *testing.T) *Server {
	t.Helper()
	b := NewBuilder()
	err := Register(b, "echo", "echoes its input", func(ctx context.Context, in echoInput) (echoOutput, error) {
		return echoOutput{Echoed: in.Text}, nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return b.Build()
}

func TestServer_Execute(t *testing.T) {
	s := buildEchoServer(t)

	out, err := s.Execute(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var decoded echoOutput
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if decoded.Echoed != "hi" {
		t.Errorf("Echoed = %q, want %q", decoded.Echoed, "hi")
	}
}

func TestServer_ExecuteUnknownTool(t *testing.T) {
	s := buildEchoServer(t)
	if _, err := s.Execute(context.Background(), "nope", nil); err == nil {
		t.Fatalf("expected an error for an unregistered tool")
	}
}

func TestServer_ExecuteInvalidInput(t *testing.T) {
	s := buildEchoServer(t)
	if _, err := s.Execute(context.Background(), "echo", json.RawMessage(`{"text":123}`)); err == nil {
		t.Fatalf("expected an error for a type-mismatched field")
	}
}

func TestServer_Has(t *testing.T) {
	s := buildEchoServer(t)
	if !s.Has("echo") {
		t.Errorf("Has(echo) = false, want true")
	}
	if s.Has("missing") {
		t.Errorf("Has(missing) = true, want false")
	}
}

func TestServer_AsTool(t *testing.T) {
	s := buildEchoServer(t)
	tool, ok := s.AsTool("echo")
	if !ok {
		t.Fatalf("AsTool(echo) not found")
	}
	d := tool.Descriptor()
	if d.Name != "echo" {
		t.Errorf("Descriptor().Name = %q, want echo", d.Name)
	}

	out, err := tool.Invoke(context.Background(), json.RawMessage(`{"text":"yo"}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out.String() == "" {
		t.Errorf("expected non-empty tool output")
	}
}

func TestServer_Descriptors(t *testing.T) {
	s := buildEchoServer(t)
	descs := s.Descriptors()
	if len(descs) != 1 || descs[0].Name != "echo" {
		t.Fatalf("Descriptors() = %+v, want a single echo descriptor", descs)
	}
}
