// Package toolserver implements the in-process tool server of spec.md
// §4.9 (C9): a builder over typed closures that produces an immutable
// server exposing execute(name, json_value) → json_value, with schema
// generation and input validation grounded on the third-party schema
// stack rather than hand-rolled reflection.
package toolserver

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	schemavalidate "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/claudekit/internal/agent"
	"github.com/haasonsaas/claudekit/internal/apierror"
	"github.com/haasonsaas/claudekit/pkg/models"
)

// Handler is a typed closure registered with a Builder. TIn is
// deserialized from the model-supplied input, TOut is serialized back
// as the tool's JSON result.
type Handler[TIn, TOut any] func(ctx context.Context, input TIn) (TOut, error)

// entry is the type-erased form of a registered Handler, carrying
// everything the built Server needs at dispatch time.
type entry struct {
	name        string
	description string
	schema      map[string]any
	validator   *schemavalidate.Schema
	invoke      func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error)
}

// Builder collects typed closures before producing an immutable Server.
// Grounded on kadirpekel-hector's functiontool.generateSchema (the
// invopop/jsonschema reflector usage) for schema generation and
// haasonsaas-nexus's pkg/pluginsdk.ValidateConfig for compiling and
// applying a santhosh-tekuri/jsonschema/v5 validator ahead of dispatch.
type Builder struct {
	entries []entry
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// reflector is shared across Register calls; ExpandedStruct/DoNotReference
// match the donor's ADK-compatible settings so generated schemas inline
// cleanly into a tool_use descriptor instead of carrying $ref/$schema/$id.
var reflector = &jsonschema.Reflector{
	RequiredFromJSONSchemaTags: true,
	ExpandedStruct:             true,
	DoNotReference:             true,
}

// Register adds a handler under name. If TIn's reflected schema cannot
// be compiled into a validator, Register falls back to a permissive
// object schema (`{"type":"object"}`), per spec.md §4.9: "otherwise a
// permissive object schema is used."
func Register[TIn, TOut any](b *Builder, name, description string, fn Handler[TIn, TOut]) error {
	schemaMap, validator, err := schemaFor[TIn](name)
	if err != nil {
		return err
	}

	invoke := func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		if validator != nil {
			var decoded any
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &decoded); err != nil {
					return nil, apierror.New(apierror.KindBadRequest, "invalid_input: "+err.Error())
				}
			} else {
				decoded = map[string]any{}
			}
			if err := validator.Validate(decoded); err != nil {
				return nil, apierror.New(apierror.KindBadRequest, "invalid_input: "+err.Error())
			}
		}

		var input TIn
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &input); err != nil {
				return nil, apierror.New(apierror.KindBadRequest, "invalid_input: "+err.Error())
			}
		}

		output, err := fn(ctx, input)
		if err != nil {
			return nil, agent.NewToolError(name, err)
		}

		data, err := json.Marshal(output)
		if err != nil {
			return nil, apierror.New(apierror.KindAPIError, "json: "+err.Error())
		}
		return data, nil
	}

	b.entries = append(b.entries, entry{
		name:        name,
		description: description,
		schema:      schemaMap,
		validator:   validator,
		invoke:      invoke,
	})
	return nil
}

func schemaFor[TIn any](name string) (map[string]any, *schemavalidate.Schema, error) {
	var zero TIn
	reflected := reflector.Reflect(&zero)

	data, err := json.Marshal(reflected)
	if err != nil {
		return permissiveSchema(), nil, nil
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return permissiveSchema(), nil, nil
	}
	delete(schemaMap, "$schema")
	delete(schemaMap, "$id")

	validator, err := schemavalidate.CompileString(name+".json", string(data))
	if err != nil {
		return permissiveSchema(), nil, nil
	}
	return schemaMap, validator, nil
}

func permissiveSchema() map[string]any {
	return map[string]any{"type": "object"}
}

// Server is the immutable, built form of a Builder's registered
// handlers. It is safe to share and call concurrently, per spec.md
// §4.9: "The server is immutable post-build and safe to share."
type Server struct {
	byName map[string]*entry
}

// Build finalizes b into a Server. The Builder may be discarded or
// reused afterward; Server holds its own copy of every entry.
func (b *Builder) Build() *Server {
	byName := make(map[string]*entry, len(b.entries))
	for i := range b.entries {
		e := b.entries[i]
		byName[e.name] = &e
	}
	return &Server{byName: byName}
}

// Execute runs the named tool against a raw JSON input value and
// returns its raw JSON output, per spec.md §4.9's
// `execute(name, json_value) → json_value`.
func (s *Server) Execute(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error) {
	e, ok := s.byName[name]
	if !ok {
		return nil, apierror.New(apierror.KindNotFound, "toolserver: no tool named "+name)
	}
	return e.invoke(ctx, input)
}

// Has reports whether name is registered, letting a dispatcher consult
// this server before falling back to a child process, per spec.md
// §4.9's "tool dispatch consults the registered servers before
// consulting the child process."
func (s *Server) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Descriptors returns the models.ToolDescriptor for every registered
// tool, suitable for attaching to a MessageRequest or an agent.Tool
// registry.
func (s *Server) Descriptors() []models.ToolDescriptor {
	out := make([]models.ToolDescriptor, 0, len(s.byName))
	for _, e := range s.byName {
		schema, _ := json.Marshal(e.schema)
		out = append(out, models.ToolDescriptor{
			Name:        e.name,
			Description: e.description,
			InputSchema: schema,
		})
	}
	return out
}

// AsTool adapts one registered entry to the agent.Tool interface (C7's
// registry), so a toolserver.Server's tools can be registered directly
// alongside hand-written agent.Tool implementations.
func (s *Server) AsTool(name string) (agent.Tool, bool) {
	e, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return &serverTool{server: s, entry: e}, true
}

// Tools returns every registered entry adapted to agent.Tool, for
// bulk-registering a Server's whole surface with a agent.ToolRegistry.
func (s *Server) Tools() []agent.Tool {
	out := make([]agent.Tool, 0, len(s.byName))
	for name := range s.byName {
		t, _ := s.AsTool(name)
		out = append(out, t)
	}
	return out
}

type serverTool struct {
	server *Server
	entry  *entry
}

func (t *serverTool) Descriptor() models.ToolDescriptor {
	schema, _ := json.Marshal(t.entry.schema)
	return models.ToolDescriptor{
		Name:        t.entry.name,
		Description: t.entry.description,
		InputSchema: schema,
	}
}

func (t *serverTool) Invoke(ctx context.Context, input json.RawMessage) (*agent.ToolOutput, error) {
	out, err := t.server.Execute(ctx, t.entry.name, input)
	if err != nil {
		return nil, err
	}
	return agent.NewJSONOutput(out), nil
}
